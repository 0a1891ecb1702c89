package upload

import "fmt"

// RejectReason classifies why a clip was rejected by policy.
type RejectReason string

const (
	ReasonFileTooLarge RejectReason = "file_too_large"
	ReasonTooLong      RejectReason = "duration_too_long"
)

// ValidationError is a policy rejection. It is recovered locally as a user
// facing rejection with no side effects to clean up.
type ValidationError struct {
	Reason  RejectReason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Policy holds the upload constraints enforced before any network call.
type Policy struct {
	MaxFileSize int64 // bytes
	MaxDuration int   // seconds
}

// Validate checks a clip's size and, when known, its duration against the
// policy. An unknown duration only skips the duration check; it never
// rejects the clip on its own.
func (p Policy) Validate(fileSize int64, duration *int) error {
	if p.MaxFileSize > 0 && fileSize > p.MaxFileSize {
		return &ValidationError{
			Reason:  ReasonFileTooLarge,
			Message: fmt.Sprintf("File size exceeds %dMB limit.", p.MaxFileSize/(1024*1024)),
		}
	}
	if duration != nil && p.MaxDuration > 0 && *duration > p.MaxDuration {
		return &ValidationError{
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("Video duration exceeds %d second limit.", p.MaxDuration),
		}
	}
	return nil
}
