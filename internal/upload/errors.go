package upload

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage identifies where in the pipeline a failure occurred. The stage
// determines the compensation: failures after record creation and before a
// stored video roll the provisional row back; a finalization failure must
// never roll back because the video object is already durable.
type Stage string

const (
	StageValidation     Stage = "validation"
	StageMetadataCreate Stage = "metadata_create"
	StageBroker         Stage = "broker"
	StageVideoTransfer  Stage = "video_transfer"
	StageFinalize       Stage = "finalize"
)

// PipelineError is the single error type surfaced by a pipeline run. It
// carries the failing stage and whether the provisional record was rolled
// back before returning.
type PipelineError struct {
	Stage      Stage
	Err        error
	ClipID     uuid.UUID
	RolledBack bool

	// VideoURL and ThumbnailURL are set for finalization failures: the
	// object URLs that were stored but never linked, so a caller can retry
	// the metadata write later.
	VideoURL     string
	ThumbnailURL string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Stored reports whether the video payload is durably stored despite the
// failure ("stored but unlinked"). True only for finalization failures.
func (e *PipelineError) Stored() bool {
	return e.Stage == StageFinalize
}

// Message returns the human-readable failure text for API responses.
// Validation rejections surface their policy message verbatim.
func (e *PipelineError) Message() string {
	if e.Stage == StageValidation {
		return e.Err.Error()
	}
	if e.Stage == StageFinalize {
		return "clip stored but not finalized"
	}
	return "upload failed"
}
