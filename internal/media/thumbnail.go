package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// DefaultThumbnailOffset is the default seek position for thumbnails.
const DefaultThumbnailOffset = 1.5

// Extractor rasterizes a single frame of a video file into a JPEG.
type Extractor struct {
	// BinPath is the ffmpeg binary; empty means "ffmpeg" on PATH.
	BinPath string
}

// NewExtractor creates an Extractor using the given ffmpeg binary path.
func NewExtractor(binPath string) *Extractor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Extractor{BinPath: binPath}
}

// Extract seeks to offset seconds and returns the frame there as JPEG bytes.
// Thumbnails are a best-effort enrichment: callers are expected to log and
// continue on error, never abort the upload.
func (e *Extractor) Extract(ctx context.Context, path string, offset float64) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("thumbnail: empty path")
	}
	if offset < 0 {
		offset = 0
	}

	cmd := exec.CommandContext(ctx, e.BinPath,
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w (stderr: %s)", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at offset %.3f", offset)
	}
	return stdout.Bytes(), nil
}

// ClampOffset limits the seek offset to half the clip duration when the
// duration is known, so short clips still have a decodable frame there.
func ClampOffset(offset float64, duration *int) float64 {
	if offset < 0 {
		offset = 0
	}
	if duration == nil {
		return offset
	}
	half := float64(*duration) / 2
	if offset > half {
		return half
	}
	return offset
}
