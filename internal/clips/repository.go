package clips

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipstash/backend/internal/models"
)

// ErrNotFound is returned when a clip does not exist.
var ErrNotFound = errors.New("clip not found")

// Repository handles clip persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clips repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a provisional clip row (empty URLs). The generated id and
// timestamps are written back into the clip.
func (r *Repository) Create(ctx context.Context, clip *models.Clip) error {
	const q = `INSERT INTO clips (id, owner_id, title, description, is_public, video_url, thumbnail_url, duration, file_size, file_type)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, '', '', $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, clip.OwnerID, clip.Title, clip.Description, clip.IsPublic, clip.Duration, clip.FileSize, clip.FileType).
		Scan(&clip.ID, &clip.CreatedAt, &clip.UpdatedAt)
}

// Finalize writes the durable object URLs into the clip row in one atomic
// update. The thumbnail URL may be empty. Returns ErrNotFound if the row is
// gone (e.g. swept or deleted concurrently).
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, videoURL, thumbnailURL string) error {
	const q = `UPDATE clips SET video_url = $2, thumbnail_url = $3, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, videoURL, thumbnailURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a clip row. It is the rollback action for a failed upload
// and must stay an idempotent no-op when the row is already gone.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM clips WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// GetByID returns a clip by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	const q = `SELECT id, owner_id, title, description, is_public, video_url, thumbnail_url, duration, file_size, file_type, created_at, updated_at
		FROM clips WHERE id = $1`
	clip := &models.Clip{}
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&clip.ID, &clip.OwnerID, &clip.Title, &clip.Description, &clip.IsPublic,
		&clip.VideoURL, &clip.ThumbnailURL, &clip.Duration, &clip.FileSize, &clip.FileType,
		&clip.CreatedAt, &clip.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// ListByOwner returns all finalized clips of one owner, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Clip, error) {
	const q = `SELECT id, owner_id, title, description, is_public, video_url, thumbnail_url, duration, file_size, file_type, created_at, updated_at
		FROM clips WHERE owner_id = $1 AND video_url <> '' ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClips(rows)
}

// ListPublic returns finalized public clips, newest first, up to limit.
func (r *Repository) ListPublic(ctx context.Context, limit int) ([]models.Clip, error) {
	const q = `SELECT id, owner_id, title, description, is_public, video_url, thumbnail_url, duration, file_size, file_type, created_at, updated_at
		FROM clips WHERE is_public AND video_url <> '' ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClips(rows)
}

// DeleteProvisionalBefore removes provisional rows (no video URL) created
// before cutoff. Used by the reconciliation sweep; returns rows removed.
func (r *Repository) DeleteProvisionalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM clips WHERE video_url = '' AND created_at < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanClips(rows pgx.Rows) ([]models.Clip, error) {
	var out []models.Clip
	for rows.Next() {
		var clip models.Clip
		if err := rows.Scan(
			&clip.ID, &clip.OwnerID, &clip.Title, &clip.Description, &clip.IsPublic,
			&clip.VideoURL, &clip.ThumbnailURL, &clip.Duration, &clip.FileSize, &clip.FileType,
			&clip.CreatedAt, &clip.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, clip)
	}
	return out, rows.Err()
}
