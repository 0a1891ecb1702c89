package clips

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstash/backend/internal/middleware"
	"github.com/clipstash/backend/internal/models"
	"github.com/clipstash/backend/internal/progress"
	"github.com/clipstash/backend/internal/upload"
	"github.com/clipstash/backend/pkg/queue"
	"github.com/clipstash/backend/pkg/response"
	"github.com/clipstash/backend/pkg/storage"
)

// FeedLimit caps the public feed page size.
const FeedLimit = 50

// Store is the clip read/delete surface the handler needs. *Repository
// satisfies it; writes during an upload go through the pipeline.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clip, error)
	ListPublic(ctx context.Context, limit int) ([]models.Clip, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FinalizeQueue accepts finalize retry jobs. *queue.Queue satisfies it.
type FinalizeQueue interface {
	EnqueueClipFinalize(ctx context.Context, payload queue.ClipFinalizePayload) error
}

// Handler handles clip HTTP endpoints.
type Handler struct {
	repo     Store
	pipeline *upload.Pipeline
	hub      *progress.Hub
	queue    FinalizeQueue // optional: finalize retry jobs; nil disables
	tempDir  string
	logger   *zap.Logger
}

// NewHandler creates a clips handler. tempDir is the spool directory for
// incoming files; empty means os.TempDir().
func NewHandler(repo Store, pipeline *upload.Pipeline, hub *progress.Hub, q FinalizeQueue, tempDir string, logger *zap.Logger) *Handler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, pipeline: pipeline, hub: hub, queue: q, tempDir: tempDir, logger: logger}
}

// Upload handles POST /api/clips: spools the multipart payload to disk and
// runs one upload pipeline invocation. The caller sees either the finalized
// clip or a single failure message.
func (h *Handler) Upload(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	title := c.PostForm("title")
	if title == "" {
		response.BadRequest(c, "missing title")
		return
	}
	isPublic := c.PostForm("is_public") == "true"
	// The upload id names the spool file and the progress stream. Anything
	// that is not a UUID is replaced so form input never shapes a filesystem
	// path.
	uploadID := c.PostForm("upload_id")
	if parsed, err := uuid.Parse(uploadID); err != nil {
		uploadID = uuid.New().String()
	} else {
		uploadID = parsed.String()
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	spool := filepath.Join(h.tempDir, "clip-"+uploadID+spoolExt(contentType))
	if err := c.SaveUploadedFile(file, spool); err != nil {
		h.logger.Error("spool upload failed", zap.Error(err), zap.String("upload_id", uploadID))
		response.Internal(c, "failed to read upload")
		return
	}
	defer func() { _ = os.Remove(spool) }()

	lastPercent := 0
	sink := func(percent int) {
		lastPercent = percent
		if h.hub != nil {
			h.hub.Publish(uploadID, percent)
		}
	}

	result, err := h.pipeline.Run(c.Request.Context(), upload.Request{
		OwnerID:     ownerID,
		Title:       title,
		Description: c.PostForm("description"),
		IsPublic:    isPublic,
		FilePath:    spool,
		FileSize:    file.Size,
		FileType:    contentType,
	}, sink)
	if err != nil {
		h.finishWithError(c, uploadID, lastPercent, err)
		return
	}

	if h.hub != nil {
		h.hub.Finish(uploadID, 100, "")
	}
	response.Created(c, gin.H{"clip": result.Clip, "upload_id": uploadID})
}

// spoolExt maps the payload content type to a spool file extension. The
// client-supplied filename never reaches the filesystem.
func spoolExt(contentType string) string {
	if ext, ok := storage.AllowedVideoTypes[strings.ToLower(contentType)]; ok {
		return ext
	}
	return ".mp4"
}

// finishWithError maps a pipeline failure to an API response and closes the
// progress stream.
func (h *Handler) finishWithError(c *gin.Context, uploadID string, percent int, err error) {
	var pipeErr *upload.PipelineError
	if !errors.As(err, &pipeErr) {
		h.logger.Error("upload failed", zap.Error(err), zap.String("upload_id", uploadID))
		if h.hub != nil {
			h.hub.Finish(uploadID, percent, "upload failed")
		}
		response.Internal(c, "upload failed")
		return
	}

	msg := pipeErr.Message()
	if h.hub != nil {
		h.hub.Finish(uploadID, percent, msg)
	}

	switch pipeErr.Stage {
	case upload.StageValidation:
		response.BadRequest(c, msg)
	case upload.StageFinalize:
		// Video object is stored but unlinked. Hand the metadata write to
		// the reconciliation worker instead of rolling back.
		if h.queue != nil {
			qErr := h.queue.EnqueueClipFinalize(c.Request.Context(), queue.ClipFinalizePayload{
				ClipID:       pipeErr.ClipID,
				VideoURL:     pipeErr.VideoURL,
				ThumbnailURL: pipeErr.ThumbnailURL,
			})
			if qErr != nil {
				h.logger.Error("enqueue finalize retry failed", zap.Error(qErr),
					zap.String("clip_id", pipeErr.ClipID.String()))
			}
		}
		response.BadGateway(c, msg)
	default:
		h.logger.Error("upload failed", zap.Error(pipeErr),
			zap.String("upload_id", uploadID),
			zap.String("stage", string(pipeErr.Stage)),
			zap.Bool("rolled_back", pipeErr.RolledBack))
		response.Internal(c, msg)
	}
}

// WatchProgress handles GET /api/uploads/:id/progress: upgrades to WebSocket
// and streams progress events for one upload.
func (h *Handler) WatchProgress(c *gin.Context) {
	uploadID := c.Param("id")
	if uploadID == "" {
		response.BadRequest(c, "missing upload id")
		return
	}
	h.hub.Serve(c.Writer, c.Request, uploadID)
}

// Get handles GET /api/clips/:id. Private and still-provisional clips are
// visible to their owner only.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "clip not found")
			return
		}
		h.logger.Error("get clip failed", zap.Error(err), zap.String("clip_id", id.String()))
		response.Internal(c, "failed to load clip")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if clip.OwnerID != userID {
		// A provisional row has no playable object yet; to anyone but its
		// owner it does not exist.
		if !clip.Finalized() {
			response.NotFound(c, "clip not found")
			return
		}
		if !clip.IsPublic {
			response.Forbidden(c, "not authorized to view this clip")
			return
		}
	}
	response.OK(c, clip)
}

// ListMine handles GET /api/clips: the authenticated user's finalized clips.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list clips failed", zap.Error(err), zap.String("owner_id", userID.String()))
		response.Internal(c, "failed to list clips")
		return
	}
	response.OK(c, list)
}

// Feed handles GET /api/feed: latest finalized public clips.
func (h *Handler) Feed(c *gin.Context) {
	list, err := h.repo.ListPublic(c.Request.Context(), FeedLimit)
	if err != nil {
		h.logger.Error("feed failed", zap.Error(err))
		response.Internal(c, "failed to load feed")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /api/clips/:id. Owner only. Removes the metadata
// row; object cleanup is a storage lifecycle concern.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	clip, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "clip not found")
			return
		}
		response.Internal(c, "failed to load clip")
		return
	}
	if clip.OwnerID != userID {
		response.Forbidden(c, "not authorized to delete this clip")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete clip failed", zap.Error(err), zap.String("clip_id", id.String()))
		response.Internal(c, "failed to delete clip")
		return
	}
	response.NoContent(c)
}
