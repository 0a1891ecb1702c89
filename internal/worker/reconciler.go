// Package worker runs clip reconciliation: retrying failed finalizations and
// sweeping abandoned provisional rows. Both cover failure windows the upload
// pipeline cannot close on its own (process killed mid-run, metadata store
// down at finalize time).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstash/backend/internal/clips"
	"github.com/clipstash/backend/pkg/queue"
)

// ClipStore is the metadata surface the reconciler needs. *clips.Repository
// satisfies it.
type ClipStore interface {
	Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error
	DeleteProvisionalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobQueue is the queue surface the reconciler consumes. *queue.Queue
// satisfies it; Retry owns the attempt counting and the DLQ cutoff.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Reconciler processes finalize retry jobs and sweeps provisional clips.
type Reconciler struct {
	store          ClipStore
	queue          JobQueue
	sweepInterval  time.Duration
	provisionalTTL time.Duration
	logger         *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store ClipStore, q JobQueue, sweepInterval, provisionalTTL time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:          store,
		queue:          q,
		sweepInterval:  sweepInterval,
		provisionalTTL: provisionalTTL,
		logger:         logger,
	}
}

// Process executes one finalize retry job: a pure metadata write linking
// already-stored objects. A missing row means the clip was deleted or swept
// meanwhile; the job is then complete, not failed.
func (r *Reconciler) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeClipFinalize {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ClipFinalizePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	err := r.store.Finalize(ctx, payload.ClipID, payload.VideoURL, payload.ThumbnailURL)
	if errors.Is(err, clips.ErrNotFound) {
		r.logger.Warn("finalize retry: clip row gone, stored object is orphaned",
			zap.String("clip_id", payload.ClipID.String()),
			zap.String("video_url", payload.VideoURL))
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize clip %s: %w", payload.ClipID, err)
	}
	r.logger.Info("clip finalized by reconciler", zap.String("clip_id", payload.ClipID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		default:
		}

		job, _, err := r.queue.Dequeue(ctx)
		if err != nil {
			r.logger.Warn("dequeue error", zap.Error(err))
			r.backoff(ctx)
			continue
		}
		if job == nil {
			continue
		}

		r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := r.Process(ctx, job); err != nil {
			r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := r.queue.Retry(ctx, job); reErr != nil {
				r.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			r.backoff(ctx)
			continue
		}
	}
}

// backoff waits one retry interval, cut short when ctx is cancelled.
func (r *Reconciler) backoff(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(queue.RetryBackoff):
	}
}

// RunSweep periodically deletes provisional rows older than the TTL. These
// are uploads whose process died between record creation and rollback, so no
// compensating delete ever ran.
func (r *Reconciler) RunSweep(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweep stopping")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.provisionalTTL)
			removed, err := r.store.DeleteProvisionalBefore(ctx, cutoff)
			if err != nil {
				r.logger.Error("provisional sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				r.logger.Info("swept provisional clips",
					zap.Int64("removed", removed),
					zap.Time("cutoff", cutoff))
			}
		}
	}
}
