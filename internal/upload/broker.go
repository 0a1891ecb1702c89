package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CredentialRequest is the broker request body for one clip upload.
type CredentialRequest struct {
	Action   string    `json:"action"`
	ClipID   uuid.UUID `json:"clipId"`
	OwnerID  uuid.UUID `json:"ownerId"`
	FileType string    `json:"fileType"`
	FileSize int64     `json:"fileSize"`
}

// Credentials is one broker-issued pair of short-lived write URLs, scoped to
// a single clip. The thumbnail URL/key may be absent. Credentials are used
// once and discarded; they are never cached across clips or retries.
type Credentials struct {
	VideoUploadURL     string
	ThumbnailUploadURL string
	VideoKey           string
	ThumbnailKey       string
}

// HasThumbnail reports whether a thumbnail write was issued.
func (c *Credentials) HasThumbnail() bool {
	return c.ThumbnailUploadURL != "" && c.ThumbnailKey != ""
}

type brokerResponse struct {
	Success            bool   `json:"success"`
	VideoUploadURL     string `json:"videoUploadUrl"`
	ThumbnailUploadURL string `json:"thumbnailUploadUrl"`
	VideoKey           string `json:"videoKey"`
	ThumbnailKey       string `json:"thumbnailKey"`
	Error              string `json:"error"`
}

// BrokerClient requests upload credentials from the broker service.
type BrokerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBrokerClient creates a broker client for the given endpoint.
func NewBrokerClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *BrokerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrokerClient{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// RequestCredentials asks the broker for a fresh credential pair for one
// clip. A non-2xx status, success=false, or a success response missing the
// video URL or key is an error.
func (b *BrokerClient) RequestCredentials(ctx context.Context, req CredentialRequest) (*Credentials, error) {
	req.Action = "upload"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal broker request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create broker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broker request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read broker response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("broker status %d: %s", resp.StatusCode, raw)
	}

	var out brokerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse broker response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("broker rejected request: %s", out.Error)
	}
	if out.VideoUploadURL == "" || out.VideoKey == "" {
		return nil, fmt.Errorf("malformed broker response: missing video upload URL or key")
	}

	b.logger.Debug("upload credentials issued",
		zap.String("clip_id", req.ClipID.String()),
		zap.String("video_key", out.VideoKey),
		zap.Bool("has_thumbnail", out.ThumbnailUploadURL != ""),
	)
	return &Credentials{
		VideoUploadURL:     out.VideoUploadURL,
		ThumbnailUploadURL: out.ThumbnailUploadURL,
		VideoKey:           out.VideoKey,
		ThumbnailKey:       out.ThumbnailKey,
	}, nil
}
