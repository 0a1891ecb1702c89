package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/backend/internal/clips"
	"github.com/clipstash/backend/pkg/queue"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error {
	args := m.Called(ctx, id, videoURL, thumbnailURL)
	return args.Error(0)
}

func (m *StoreMock) DeleteProvisionalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type QueueMock struct {
	mock.Mock
}

func (m *QueueMock) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*queue.Job), args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

func (m *QueueMock) Retry(ctx context.Context, job *queue.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func finalizeJob(t *testing.T, payload queue.ClipFinalizePayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{
		ID:        uuid.New().String(),
		Type:      queue.JobTypeClipFinalize,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

func TestProcess_FinalizesClip(t *testing.T) {
	store := new(StoreMock)
	payload := queue.ClipFinalizePayload{
		ClipID:       uuid.New(),
		VideoURL:     "https://clips.example.com/videos/o/c.mp4",
		ThumbnailURL: "https://clips.example.com/thumbnails/o/c.jpg",
	}
	store.On("Finalize", mock.Anything, payload.ClipID, payload.VideoURL, payload.ThumbnailURL).Return(nil).Once()

	r := NewReconciler(store, new(QueueMock), time.Minute, time.Hour, nil)
	err := r.Process(context.Background(), finalizeJob(t, payload))

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestProcess_MissingRowCompletesJob(t *testing.T) {
	// The clip row was deleted or swept after the video object was stored.
	// The object is orphaned; the job must not be retried.
	store := new(StoreMock)
	payload := queue.ClipFinalizePayload{
		ClipID:   uuid.New(),
		VideoURL: "https://clips.example.com/videos/o/c.mp4",
	}
	store.On("Finalize", mock.Anything, payload.ClipID, payload.VideoURL, "").Return(clips.ErrNotFound).Once()

	r := NewReconciler(store, new(QueueMock), time.Minute, time.Hour, nil)
	err := r.Process(context.Background(), finalizeJob(t, payload))

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestProcess_StoreFailurePropagates(t *testing.T) {
	store := new(StoreMock)
	payload := queue.ClipFinalizePayload{ClipID: uuid.New(), VideoURL: "https://clips.example.com/v.mp4"}
	store.On("Finalize", mock.Anything, payload.ClipID, payload.VideoURL, "").Return(errors.New("connection refused")).Once()

	r := NewReconciler(store, new(QueueMock), time.Minute, time.Hour, nil)
	err := r.Process(context.Background(), finalizeJob(t, payload))

	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestProcess_UnknownJobType(t *testing.T) {
	r := NewReconciler(new(StoreMock), new(QueueMock), time.Minute, time.Hour, nil)
	err := r.Process(context.Background(), &queue.Job{ID: "j1", Type: "resize_avatar"})
	require.Error(t, err)
}

func TestProcess_InvalidPayload(t *testing.T) {
	r := NewReconciler(new(StoreMock), new(QueueMock), time.Minute, time.Hour, nil)
	err := r.Process(context.Background(), &queue.Job{
		ID:      "j1",
		Type:    queue.JobTypeClipFinalize,
		Payload: []byte("{not json"),
	})
	require.Error(t, err)
}

func TestRun_FailedJobIsRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := new(StoreMock)
	q := new(QueueMock)
	payload := queue.ClipFinalizePayload{ClipID: uuid.New(), VideoURL: "https://clips.example.com/v.mp4"}
	job := finalizeJob(t, payload)

	q.On("Dequeue", mock.Anything).Return(job, queue.QueueFinalize, nil).Once()
	store.On("Finalize", mock.Anything, payload.ClipID, payload.VideoURL, "").Return(errors.New("db down")).Once()
	// Cancelling here ends the backoff wait and the loop on the next turn.
	q.On("Retry", mock.Anything, job).Run(func(mock.Arguments) { cancel() }).Return(nil).Once()

	r := NewReconciler(store, q, time.Minute, time.Hour, nil)
	r.Run(ctx)

	q.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRun_ExhaustedJobStillHandedToQueue(t *testing.T) {
	// The attempt counting and DLQ cutoff live in the queue; the worker hands
	// over every failed job regardless of how many attempts it carries.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := new(StoreMock)
	q := new(QueueMock)
	payload := queue.ClipFinalizePayload{ClipID: uuid.New(), VideoURL: "https://clips.example.com/v.mp4"}
	job := finalizeJob(t, payload)
	job.Attempt = queue.MaxRetries - 1

	q.On("Dequeue", mock.Anything).Return(job, queue.QueueFinalize, nil).Once()
	store.On("Finalize", mock.Anything, payload.ClipID, payload.VideoURL, "").Return(errors.New("db down")).Once()
	q.On("Retry", mock.Anything, job).Run(func(mock.Arguments) { cancel() }).Return(nil).Once()

	r := NewReconciler(store, q, time.Minute, time.Hour, nil)
	r.Run(ctx)

	q.AssertExpectations(t)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := new(QueueMock)
	q.On("Dequeue", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, "", nil)

	r := NewReconciler(new(StoreMock), q, time.Minute, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}

func TestRunSweep_DeletesStaleProvisionals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := new(StoreMock)
	store.On("DeleteProvisionalBefore", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) { cancel() }).
		Return(int64(2), nil).Once()

	r := NewReconciler(store, new(QueueMock), 5*time.Millisecond, time.Hour, nil)
	r.RunSweep(ctx)

	store.AssertExpectations(t)
}
