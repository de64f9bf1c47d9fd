package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/vidproc/internal/domain/model"
)

// VideoCache defines the interface for caching video records between status polls.
// Implementations should handle serialization/deserialization transparently.
type VideoCache interface {
	// Get retrieves a video from cache by ID.
	// Returns nil, nil if the video is not found in cache (cache miss).
	Get(ctx context.Context, videoID uuid.UUID) (*model.Video, error)

	// Set stores a video in cache with the specified TTL.
	Set(ctx context.Context, video *model.Video, ttl time.Duration) error

	// Delete removes a video from cache by ID.
	// Returns nil if the video was not in cache.
	Delete(ctx context.Context, videoID uuid.UUID) error
}

// Invalidator drops cached copies of a video after its processing fields change.
type Invalidator interface {
	Delete(ctx context.Context, videoID uuid.UUID) error
}

// NoopCache satisfies VideoCache without storing anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID) (*model.Video, error) { return nil, nil }
func (NoopCache) Set(context.Context, *model.Video, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, uuid.UUID) error { return nil }

var _ VideoCache = NoopCache{}
