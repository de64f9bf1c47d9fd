package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const videoColumns = `id, uploader_id, title, thumbnail, thumbnail_ref, custom_thumbnail, duration,
		original_path, processed_variants, remote_id,
		processing_status, processing_error, created_at, updated_at`

// VideoRepository implements repository.VideoRepository using PostgreSQL.
type VideoRepository struct {
	db DBTX
}

// NewVideoRepository creates a new VideoRepository instance.
func NewVideoRepository(db DBTX) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create persists a new video entity.
func (r *VideoRepository) Create(ctx context.Context, video *model.Video) error {
	const query = `
		INSERT INTO videos (` + videoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	variants, err := marshalVariants(video.VideoFile.ProcessedVariants)
	if err != nil {
		return err
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableVideos).Inc()
	_, err = r.db.Exec(ctx, query,
		video.ID,
		video.UploaderID,
		video.Title,
		video.Thumbnail,
		nullString(video.ThumbnailRef),
		video.CustomThumbnail,
		video.Duration,
		nullString(video.VideoFile.OriginalPath),
		variants,
		nullString(video.VideoFile.RemoteID),
		video.ProcessingStatus.String(),
		nullString(video.ProcessingError),
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateVideo
		}
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// GetByID retrieves a video by its unique identifier.
func (r *VideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error) {
	const query = `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableVideos).Inc()
	video, err := scanVideo(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video by ID: %w", err)
	}

	return video, nil
}

// Update persists the full entity if the stored status still equals expected.
func (r *VideoRepository) Update(ctx context.Context, video *model.Video, expected model.ProcessingStatus) error {
	const query = `
		UPDATE videos
		SET title = $2, thumbnail = $3, thumbnail_ref = $4, duration = $5,
			original_path = $6, processed_variants = $7, remote_id = $8,
			processing_status = $9, processing_error = $10, updated_at = $11
		WHERE id = $1 AND processing_status = $12
	`

	variants, err := marshalVariants(video.VideoFile.ProcessedVariants)
	if err != nil {
		return err
	}

	video.UpdatedAt = time.Now()

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableVideos).Inc()
	tag, err := r.db.Exec(ctx, query,
		video.ID,
		video.Title,
		video.Thumbnail,
		nullString(video.ThumbnailRef),
		video.Duration,
		nullString(video.VideoFile.OriginalPath),
		variants,
		nullString(video.VideoFile.RemoteID),
		video.ProcessingStatus.String(),
		nullString(video.ProcessingError),
		video.UpdatedAt,
		expected.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, video.ID); err != nil {
			return err
		}
		return repository.ErrVideoNotUpdatable
	}

	return nil
}

// UpdateFields writes the supplied processing fields.
// Rows already in a terminal status are left untouched.
func (r *VideoRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields model.VideoFields) error {
	if fields.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args = []any{id}
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.ProcessingStatus != nil {
		add("processing_status", fields.ProcessingStatus.String())
	}
	if fields.ProcessingError != nil {
		add("processing_error", nullString(*fields.ProcessingError))
	}
	if fields.Duration != nil {
		add("duration", *fields.Duration)
	}
	if fields.Thumbnail != nil {
		add("thumbnail", *fields.Thumbnail)
	}
	if fields.ThumbnailRef != nil {
		add("thumbnail_ref", nullString(*fields.ThumbnailRef))
	}
	if fields.OriginalPath != nil {
		add("original_path", nullString(*fields.OriginalPath))
	}
	if fields.ProcessedVariants != nil {
		variants, err := marshalVariants(fields.ProcessedVariants)
		if err != nil {
			return err
		}
		add("processed_variants", variants)
	}
	if fields.RemoteID != nil {
		add("remote_id", nullString(*fields.RemoteID))
	}
	add("updated_at", time.Now())

	query := fmt.Sprintf(`
		UPDATE videos
		SET %s
		WHERE id = $1 AND processing_status IN ('uploading', 'processing')
	`, strings.Join(sets, ", "))

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableVideos).Inc()
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update video fields: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from one that already reached a terminal status.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrVideoNotUpdatable
	}

	return nil
}

// ListStaleProcessing returns non-terminal videos not updated since olderThan, oldest first.
func (r *VideoRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*model.Video, error) {
	const query = `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE processing_status IN ('uploading', 'processing') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableVideos).Inc()
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale videos: %w", err)
	}
	defer rows.Close()

	var videos []*model.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating videos: %w", err)
	}

	return videos, nil
}

// scanVideo scans a single row into a Video model. pgx.Rows satisfies pgx.Row.
func scanVideo(row pgx.Row) (*model.Video, error) {
	var (
		video           model.Video
		status          string
		thumbnailRef    *string
		originalPath    *string
		variants        []byte
		remoteID        *string
		processingError *string
	)

	err := row.Scan(
		&video.ID,
		&video.UploaderID,
		&video.Title,
		&video.Thumbnail,
		&thumbnailRef,
		&video.CustomThumbnail,
		&video.Duration,
		&originalPath,
		&variants,
		&remoteID,
		&status,
		&processingError,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.ProcessingStatus = model.ProcessingStatus(status)
	video.ThumbnailRef = derefString(thumbnailRef)
	video.VideoFile.OriginalPath = derefString(originalPath)
	video.VideoFile.RemoteID = derefString(remoteID)
	video.ProcessingError = derefString(processingError)

	video.VideoFile.ProcessedVariants = map[string]string{}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &video.VideoFile.ProcessedVariants); err != nil {
			return nil, fmt.Errorf("decode processed_variants: %w", err)
		}
	}

	return &video, nil
}

func marshalVariants(variants map[string]string) ([]byte, error) {
	if variants == nil {
		variants = map[string]string{}
	}
	b, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("encode processed_variants: %w", err)
	}
	return b, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time verification that VideoRepository implements repository.VideoRepository.
var _ repository.VideoRepository = (*VideoRepository)(nil)
