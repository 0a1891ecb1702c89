// Package media extracts playback metadata and thumbnails from local video
// files using the ffprobe/ffmpeg command line tools.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// probeOutput is the subset of ffprobe JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober reads playable duration from a video file via ffprobe.
type Prober struct {
	// BinPath is the ffprobe binary; empty means "ffprobe" on PATH.
	BinPath string
}

// NewProber creates a Prober using the given ffprobe binary path.
func NewProber(binPath string) *Prober {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &Prober{BinPath: binPath}
}

// Duration returns the playable duration of the file in whole seconds.
// The caller treats any error as "duration unknown", not as a rejection.
func (p *Prober) Duration(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("probe: empty path")
	}

	cmd := exec.CommandContext(ctx, p.BinPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w (stderr: %s)", err, stderr.String())
	}
	return parseDuration(stdout.Bytes())
}

// parseDuration extracts format.duration from ffprobe JSON output and rounds
// it to whole seconds.
func parseDuration(raw []byte) (int, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if out.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe output has no duration")
	}
	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %q", out.Format.Duration)
	}
	return int(math.Round(seconds)), nil
}
