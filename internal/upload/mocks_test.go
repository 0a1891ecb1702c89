package upload

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/clipstash/backend/internal/models"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, clip *models.Clip) error {
	args := m.Called(ctx, clip)
	return args.Error(0)
}

func (m *StoreMock) Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error {
	args := m.Called(ctx, id, videoURL, thumbnailURL)
	return args.Error(0)
}

func (m *StoreMock) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type ProberMock struct {
	mock.Mock
}

func (m *ProberMock) Duration(ctx context.Context, path string) (int, error) {
	args := m.Called(ctx, path)
	return args.Int(0), args.Error(1)
}

type ExtractorMock struct {
	mock.Mock
}

func (m *ExtractorMock) Extract(ctx context.Context, path string, offset float64) ([]byte, error) {
	args := m.Called(ctx, path, offset)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type BrokerMock struct {
	mock.Mock
}

func (m *BrokerMock) RequestCredentials(ctx context.Context, req CredentialRequest) (*Credentials, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*Credentials), args.Error(1)
	}
	return nil, args.Error(1)
}

type TransferMock struct {
	mock.Mock
}

func (m *TransferMock) Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress ProgressFunc) error {
	args := m.Called(ctx, url, contentType, body, size, progress)
	return args.Error(0)
}
