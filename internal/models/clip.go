package models

import (
	"time"

	"github.com/google/uuid"
)

// Clip is one uploaded short video and its derived thumbnail.
//
// A clip row is created before its payloads are confirmed stored
// (provisional: both URLs empty) and finalized once the video object is
// durable. A finalized clip always has a video URL; the thumbnail URL may
// legitimately stay empty since thumbnail generation is best-effort.
type Clip struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	IsPublic     bool      `json:"is_public"`
	VideoURL     string    `json:"video_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Duration     *int      `json:"duration,omitempty"` // seconds; nil when probing failed
	FileSize     int64     `json:"file_size"`
	FileType     string    `json:"file_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Finalized reports whether the clip's video payload has been linked.
func (c *Clip) Finalized() bool {
	return c.VideoURL != ""
}
