package clips

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/backend/internal/middleware"
	"github.com/clipstash/backend/internal/models"
	"github.com/clipstash/backend/internal/upload"
	"github.com/clipstash/backend/pkg/queue"
)

// Pipeline collaborator stubs. The pipeline's own behavior is covered in its
// package; here it only carries requests through to the failure branches the
// handler has to map.

type pipeStoreStub struct {
	clipID      uuid.UUID
	finalizeErr error
}

func (s *pipeStoreStub) Create(ctx context.Context, clip *models.Clip) error {
	clip.ID = s.clipID
	return nil
}

func (s *pipeStoreStub) Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error {
	return s.finalizeErr
}

func (s *pipeStoreStub) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type proberStub struct {
	seconds int
	err     error
}

func (p proberStub) Duration(ctx context.Context, path string) (int, error) {
	return p.seconds, p.err
}

type extractorStub struct{}

func (extractorStub) Extract(ctx context.Context, path string, offset float64) ([]byte, error) {
	return nil, errors.New("no frame")
}

type brokerStub struct {
	creds *upload.Credentials
	err   error
}

func (b brokerStub) RequestCredentials(ctx context.Context, req upload.CredentialRequest) (*upload.Credentials, error) {
	return b.creds, b.err
}

type transferStub struct{}

func (transferStub) Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress upload.ProgressFunc) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

type storeStub struct {
	clip *models.Clip
	err  error
}

func (s storeStub) GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	return s.clip, s.err
}

func (s storeStub) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clip, error) {
	return nil, nil
}

func (s storeStub) ListPublic(ctx context.Context, limit int) ([]models.Clip, error) {
	return nil, nil
}

func (s storeStub) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type queueStub struct {
	enqueued []queue.ClipFinalizePayload
}

func (q *queueStub) EnqueueClipFinalize(ctx context.Context, payload queue.ClipFinalizePayload) error {
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func uploadRouter(h *Handler, ownerID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	authed := func(c *gin.Context) {
		c.Set(middleware.ContextUserID, ownerID)
	}
	router.POST("/api/clips", authed, h.Upload)
	router.GET("/api/clips/:id", authed, h.Get)
	return router
}

func clipForm(t *testing.T, uploadID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("mp4 payload bytes"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("title", "My clip"))
	if uploadID != "" {
		require.NoError(t, w.WriteField("upload_id", uploadID))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload_SpoolPathIgnoresTraversalUploadID(t *testing.T) {
	root := t.TempDir()
	spoolDir := filepath.Join(root, "spool")
	outsideDir := filepath.Join(root, "outside")
	require.NoError(t, os.MkdirAll(spoolDir, 0o755))
	require.NoError(t, os.MkdirAll(outsideDir, 0o755))
	victim := filepath.Join(outsideDir, "victim.mp4")
	require.NoError(t, os.WriteFile(victim, []byte("precious data"), 0o644))

	// Policy rejects the payload, so the request fails fast; the point of
	// the test is where the spool file lands, not the pipeline outcome.
	pipeline := upload.NewPipeline(
		&pipeStoreStub{clipID: uuid.New()},
		proberStub{seconds: 5},
		extractorStub{},
		brokerStub{},
		transferStub{},
		upload.Config{Policy: upload.Policy{MaxFileSize: 1, MaxDuration: 45}},
		nil,
	)
	h := NewHandler(storeStub{}, pipeline, nil, nil, spoolDir, nil)
	router := uploadRouter(h, uuid.New())

	body, contentType := clipForm(t, "x/../../outside/victim")
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	data, err := os.ReadFile(victim)
	require.NoError(t, err, "file outside the spool dir must survive the request")
	require.Equal(t, "precious data", string(data))

	entries, err := os.ReadDir(outsideDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "nothing may be written outside the spool dir")
}

func TestUpload_FinalizeFailureEnqueuesRetry(t *testing.T) {
	clipID := uuid.New()
	q := &queueStub{}
	pipeline := upload.NewPipeline(
		&pipeStoreStub{clipID: clipID, finalizeErr: errors.New("db down")},
		proberStub{seconds: 5},
		extractorStub{},
		brokerStub{creds: &upload.Credentials{
			VideoUploadURL: "http://broker.local/put/video",
			VideoKey:       "videos/o/c.mp4",
		}},
		transferStub{},
		upload.Config{
			Policy:        upload.Policy{MaxFileSize: 100 << 20, MaxDuration: 45},
			PublicBaseURL: "https://clips.example.com",
		},
		nil,
	)
	h := NewHandler(storeStub{}, pipeline, nil, q, t.TempDir(), nil)
	router := uploadRouter(h, uuid.New())

	body, contentType := clipForm(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/clips", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "stored but not finalized")
	require.Len(t, q.enqueued, 1)
	require.Equal(t, clipID, q.enqueued[0].ClipID)
	require.Equal(t, "https://clips.example.com/videos/o/c.mp4", q.enqueued[0].VideoURL)
	require.Empty(t, q.enqueued[0].ThumbnailURL)
}

func TestGet_ProvisionalClipVisibility(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	provisional := &models.Clip{ID: uuid.New(), OwnerID: owner, Title: "draft", IsPublic: true}
	finalized := &models.Clip{ID: uuid.New(), OwnerID: owner, Title: "done", VideoURL: "https://clips.example.com/v.mp4"}

	cases := []struct {
		name     string
		clip     *models.Clip
		caller   uuid.UUID
		wantCode int
	}{
		{"provisional hidden from non-owner", provisional, stranger, http.StatusNotFound},
		{"provisional visible to owner", provisional, owner, http.StatusOK},
		{"private finalized forbidden to non-owner", finalized, stranger, http.StatusForbidden},
		{"private finalized visible to owner", finalized, owner, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(storeStub{clip: tc.clip}, nil, nil, nil, "", nil)
			router := uploadRouter(h, tc.caller)

			req := httptest.NewRequest(http.MethodGet, "/api/clips/"+tc.clip.ID.String(), nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestSpoolExt(t *testing.T) {
	require.Equal(t, ".mov", spoolExt("video/quicktime"))
	require.Equal(t, ".webm", spoolExt(strings.ToUpper("video/webm")))
	require.Equal(t, ".mp4", spoolExt("application/octet-stream"))
}
