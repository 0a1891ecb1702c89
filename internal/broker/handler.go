// Package broker implements the upload broker: it mints short-lived,
// single-use write URLs for clip payloads in the object store.
package broker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstash/backend/pkg/storage"
)

// Presigner is the storage surface the broker needs. *storage.S3 satisfies it.
type Presigner interface {
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// CredentialRequest is the broker request body.
type CredentialRequest struct {
	Action   string    `json:"action"`
	ClipID   uuid.UUID `json:"clipId"`
	OwnerID  uuid.UUID `json:"ownerId"`
	FileType string    `json:"fileType"`
	FileSize int64     `json:"fileSize"`
}

// CredentialResponse is the broker response body. Field names are part of
// the wire contract with upload clients.
type CredentialResponse struct {
	Success            bool   `json:"success"`
	VideoUploadURL     string `json:"videoUploadUrl,omitempty"`
	ThumbnailUploadURL string `json:"thumbnailUploadUrl,omitempty"`
	VideoKey           string `json:"videoKey,omitempty"`
	ThumbnailKey       string `json:"thumbnailKey,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Handler handles broker HTTP endpoints.
type Handler struct {
	store       Presigner
	maxFileSize int64
	logger      *zap.Logger
}

// NewHandler creates a broker handler. maxFileSize is the server-side size
// cap in bytes; clients enforce the same policy locally but the broker does
// not trust them.
func NewHandler(store Presigner, maxFileSize int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, maxFileSize: maxFileSize, logger: logger}
}

// IssueCredentials handles POST /broker: validates the request and mints one
// presigned PUT URL per payload (video + thumbnail), scoped to the clip id.
// Credentials are freshly minted on every call and never reused.
func (h *Handler) IssueCredentials(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "invalid request body"})
		return
	}
	if req.Action != "upload" {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "unsupported action"})
		return
	}
	if req.ClipID == uuid.Nil || req.OwnerID == uuid.Nil {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "missing clip or owner id"})
		return
	}
	if !storage.ValidVideoType(req.FileType) {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "unsupported file type"})
		return
	}
	if req.FileSize <= 0 || (h.maxFileSize > 0 && req.FileSize > h.maxFileSize) {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "file size out of bounds"})
		return
	}

	ctx := c.Request.Context()
	expire := h.store.PresignExpire()
	videoKey := storage.VideoKey(req.OwnerID.String(), req.ClipID.String(), req.FileType)
	thumbKey := storage.ThumbnailKey(req.OwnerID.String(), req.ClipID.String())

	videoURL, err := h.store.GeneratePresignedUploadURL(ctx, videoKey, req.FileType, expire)
	if err != nil {
		h.logger.Error("presign video upload failed", zap.Error(err), zap.String("clip_id", req.ClipID.String()))
		c.JSON(http.StatusInternalServerError, CredentialResponse{Success: false, Error: "failed to issue upload credentials"})
		return
	}
	// Thumbnail credential is best-effort: a clip can be uploaded without one.
	thumbURL, err := h.store.GeneratePresignedUploadURL(ctx, thumbKey, "image/jpeg", expire)
	if err != nil {
		h.logger.Warn("presign thumbnail upload failed", zap.Error(err), zap.String("clip_id", req.ClipID.String()))
		thumbURL, thumbKey = "", ""
	}

	h.logger.Info("upload credentials issued",
		zap.String("clip_id", req.ClipID.String()),
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("video_key", videoKey),
	)
	c.JSON(http.StatusOK, CredentialResponse{
		Success:            true,
		VideoUploadURL:     videoURL,
		ThumbnailUploadURL: thumbURL,
		VideoKey:           videoKey,
		ThumbnailKey:       thumbKey,
	})
}

// ProxyUpload handles PUT /broker/objects/*key: streams the request body
// into the object store server-side, for callers that cannot PUT to the
// presigned URL directly (e.g. cross-origin restrictions).
func (h *Handler) ProxyUpload(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, CredentialResponse{Success: false, Error: "missing object key"})
		return
	}
	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := h.store.Upload(c.Request.Context(), key, contentType, c.Request.Body)
	if err != nil {
		h.logger.Error("proxy upload failed", zap.Error(err), zap.String("key", key))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}
