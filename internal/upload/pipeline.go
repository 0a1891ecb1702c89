// Package upload implements the clip upload pipeline: local validation and
// thumbnail extraction, provisional record creation, broker credential
// acquisition, direct payload transfer, and finalization with
// rollback-on-failure.
package upload

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstash/backend/internal/media"
	"github.com/clipstash/backend/internal/models"
)

// Progress checkpoints reported at pipeline stage boundaries. The video
// transfer fills the gap between checkpointVideoStart and checkpointVideoDone
// with incremental updates.
const (
	checkpointStart      = 0
	checkpointValidated  = 15
	checkpointRecord     = 25
	checkpointCreds      = 35
	checkpointVideoStart = 45
	checkpointVideoDone  = 80
	checkpointThumbnail  = 95
	checkpointDone       = 100
)

// ClipStore is the metadata record manager consumed by the pipeline. Each
// method is a single atomic write; Delete must be an idempotent no-op on a
// missing id.
type ClipStore interface {
	Create(ctx context.Context, clip *models.Clip) error
	Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MediaProber yields a file's playable duration in whole seconds.
type MediaProber interface {
	Duration(ctx context.Context, path string) (int, error)
}

// ThumbnailExtractor yields one compressed frame at the given offset.
type ThumbnailExtractor interface {
	Extract(ctx context.Context, path string, offset float64) ([]byte, error)
}

// CredentialIssuer mints a fresh upload credential pair for one clip.
type CredentialIssuer interface {
	RequestCredentials(ctx context.Context, req CredentialRequest) (*Credentials, error)
}

// Transferrer performs one direct payload transfer.
type Transferrer interface {
	Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress ProgressFunc) error
}

// Config holds pipeline policy and the public object URL base
// (https://{bucket}.{objectStoreHost}, joined with the object key).
type Config struct {
	Policy          Policy
	ThumbnailOffset float64
	PublicBaseURL   string
}

// Pipeline coordinates one clip upload from a local file to a finalized
// record. It owns the clip row's lifecycle for the duration of a run: any
// fatal failure between record creation and a stored video deletes the row
// before the error is surfaced. Runs for distinct clips are independent and
// may execute concurrently.
type Pipeline struct {
	store    ClipStore
	prober   MediaProber
	thumbs   ThumbnailExtractor
	broker   CredentialIssuer
	transfer Transferrer
	cfg      Config
	logger   *zap.Logger
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(store ClipStore, prober MediaProber, thumbs ThumbnailExtractor, broker CredentialIssuer, transfer Transferrer, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.ThumbnailOffset <= 0 {
		cfg.ThumbnailOffset = media.DefaultThumbnailOffset
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		prober:   prober,
		thumbs:   thumbs,
		broker:   broker,
		transfer: transfer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Request describes one clip upload.
type Request struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	IsPublic    bool
	FilePath    string // local spool file holding the raw video payload
	FileSize    int64
	FileType    string // media type of the payload, e.g. video/mp4
}

// Result is a successful pipeline outcome.
type Result struct {
	Clip             *models.Clip
	ThumbnailSkipped bool
}

// Run executes the upload saga. On success the returned clip is finalized
// with a non-empty video URL; the thumbnail URL may be empty. On failure the
// returned error is a *PipelineError carrying the failing stage and whether
// the provisional record was rolled back.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	report := func(percent int) {
		if progress != nil {
			progress(percent)
		}
	}
	report(checkpointStart)

	// Probe duration. Failure means the duration is unknown, not that the
	// clip is rejected: duration policy simply cannot be enforced for it.
	var duration *int
	if seconds, err := p.prober.Duration(ctx, req.FilePath); err != nil {
		p.logger.Warn("duration probe failed, continuing without duration",
			zap.String("file", req.FilePath), zap.Error(err))
	} else {
		duration = &seconds
	}

	// Policy runs before any network call so oversized or over-long media
	// never consumes broker quota or storage bandwidth.
	if err := p.cfg.Policy.Validate(req.FileSize, duration); err != nil {
		return nil, &PipelineError{Stage: StageValidation, Err: err}
	}

	// Opportunistic thumbnail. Its failure never blocks the upload.
	var thumbnail []byte
	offset := media.ClampOffset(p.cfg.ThumbnailOffset, duration)
	if frame, err := p.thumbs.Extract(ctx, req.FilePath, offset); err != nil {
		p.logger.Warn("thumbnail extraction failed, uploading without thumbnail",
			zap.String("file", req.FilePath), zap.Error(err))
	} else {
		thumbnail = frame
	}
	report(checkpointValidated)

	clip := &models.Clip{
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		Duration:    duration,
		FileSize:    req.FileSize,
		FileType:    req.FileType,
	}
	if err := p.store.Create(ctx, clip); err != nil {
		// Nothing to roll back: no row, no credentials, no stored bytes.
		return nil, &PipelineError{Stage: StageMetadataCreate, Err: err}
	}
	report(checkpointRecord)
	p.logger.Info("provisional clip created",
		zap.String("clip_id", clip.ID.String()),
		zap.String("owner_id", clip.OwnerID.String()),
		zap.Int64("file_size", clip.FileSize),
	)

	creds, err := p.broker.RequestCredentials(ctx, CredentialRequest{
		ClipID:   clip.ID,
		OwnerID:  clip.OwnerID,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	if err != nil {
		return nil, p.fail(ctx, clip.ID, StageBroker, err)
	}
	report(checkpointCreds)

	video, err := os.Open(req.FilePath)
	if err != nil {
		return nil, p.fail(ctx, clip.ID, StageVideoTransfer, err)
	}
	defer video.Close()

	report(checkpointVideoStart)
	err = p.transfer.Put(ctx, creds.VideoUploadURL, req.FileType, video, req.FileSize, func(percent int) {
		report(checkpointVideoStart + percent*(checkpointVideoDone-checkpointVideoStart)/100)
	})
	if err != nil {
		return nil, p.fail(ctx, clip.ID, StageVideoTransfer, err)
	}
	report(checkpointVideoDone)

	// Thumbnail transfer is attempted only when both a frame and a
	// credential exist, and its failure is downgraded to "skipped".
	thumbnailURL := ""
	thumbnailSkipped := true
	if thumbnail != nil && creds.HasThumbnail() {
		err := p.transfer.Put(ctx, creds.ThumbnailUploadURL, "image/jpeg", bytes.NewReader(thumbnail), int64(len(thumbnail)), nil)
		if err != nil {
			p.logger.Warn("thumbnail transfer failed, finalizing without thumbnail",
				zap.String("clip_id", clip.ID.String()), zap.Error(err))
		} else {
			thumbnailURL = p.cfg.PublicBaseURL + "/" + creds.ThumbnailKey
			thumbnailSkipped = false
		}
	}
	report(checkpointThumbnail)

	videoURL := p.cfg.PublicBaseURL + "/" + creds.VideoKey
	if err := p.store.Finalize(ctx, clip.ID, videoURL, thumbnailURL); err != nil {
		// The video object already exists in storage; deleting the row here
		// would orphan it silently. Surface a distinct error instead.
		p.logger.Error("finalization failed after stored video",
			zap.String("clip_id", clip.ID.String()),
			zap.String("video_url", videoURL),
			zap.Error(err))
		return nil, &PipelineError{
			Stage:        StageFinalize,
			Err:          err,
			ClipID:       clip.ID,
			VideoURL:     videoURL,
			ThumbnailURL: thumbnailURL,
		}
	}
	clip.VideoURL = videoURL
	clip.ThumbnailURL = thumbnailURL
	report(checkpointDone)

	p.logger.Info("clip finalized",
		zap.String("clip_id", clip.ID.String()),
		zap.String("video_url", videoURL),
		zap.Bool("thumbnail_skipped", thumbnailSkipped),
	)
	return &Result{Clip: clip, ThumbnailSkipped: thumbnailSkipped}, nil
}

// fail rolls the provisional record back and wraps the stage error.
func (p *Pipeline) fail(ctx context.Context, clipID uuid.UUID, stage Stage, cause error) *PipelineError {
	rolledBack := true
	if err := p.store.Delete(ctx, clipID); err != nil {
		rolledBack = false
		p.logger.Error("rollback delete failed, provisional clip orphaned",
			zap.String("clip_id", clipID.String()), zap.Error(err))
	} else {
		p.logger.Info("provisional clip rolled back",
			zap.String("clip_id", clipID.String()), zap.String("stage", string(stage)))
	}
	return &PipelineError{Stage: stage, Err: cause, ClipID: clipID, RolledBack: rolledBack}
}
