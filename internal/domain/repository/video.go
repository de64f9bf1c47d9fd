package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
)

// VideoRepository defines the interface for video persistence operations.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type VideoRepository interface {
	// Create persists a new video entity.
	// Returns ErrDuplicateVideo if the video already exists.
	Create(ctx context.Context, video *model.Video) error

	// GetByID retrieves a video by its unique identifier.
	// Returns nil and ErrVideoNotFound if the video does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error)

	// Update persists the full entity only while the stored status equals
	// expected. Reserved for operator actions such as re-triggering a failed video.
	// Returns ErrVideoNotFound if the video does not exist and
	// ErrVideoNotUpdatable if its status changed since it was read.
	Update(ctx context.Context, video *model.Video, expected model.ProcessingStatus) error

	// UpdateFields writes only the non-nil fields, last-write-wins.
	// The write is applied only while the video is uploading or processing;
	// otherwise ErrVideoNotUpdatable is returned. An empty update is a no-op.
	UpdateFields(ctx context.Context, id uuid.UUID, fields model.VideoFields) error

	// ListStaleProcessing returns videos still uploading or processing whose
	// last update is older than olderThan.
	ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*model.Video, error)
}
