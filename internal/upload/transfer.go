package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc receives upload progress as a 0-100 percentage.
type ProgressFunc func(percent int)

// Transfer performs direct HTTP PUTs against broker-issued upload URLs.
type Transfer struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTransfer creates an uploader. The zero-timeout default client is
// deliberate: transfer deadlines come from the caller's context.
func NewTransfer(httpClient *http.Client, logger *zap.Logger) *Transfer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transfer{httpClient: httpClient, logger: logger}
}

// Put uploads body to url with a single HTTP PUT. A non-2xx response or
// network failure is a transfer failure. Progress, when non-nil, receives
// incremental 0-100 updates as bytes are sent.
func (t *Transfer) Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress ProgressFunc) error {
	var reader io.Reader = body
	if progress != nil && size > 0 {
		reader = &progressReader{r: body, total: size, report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, reader)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload status %d", resp.StatusCode)
	}
	if progress != nil {
		progress(100)
	}
	t.logger.Debug("payload uploaded",
		zap.String("content_type", contentType),
		zap.Int64("size", size),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// progressReader counts bytes read by the HTTP transport and reports percent
// changes to the sink.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		percent := int(p.sent * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.report(percent)
		}
	}
	return n, err
}
