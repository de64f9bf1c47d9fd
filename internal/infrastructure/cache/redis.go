package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
)

const (
	// videoCacheKeyPrefix is the prefix for video cache keys in Redis.
	videoCacheKeyPrefix = "vidproc:video:"
)

// videoJSON is the JSON representation of a Video for caching.
// Using explicit struct avoids coupling the domain model to a wire format.
type videoJSON struct {
	ID                string            `json:"id"`
	UploaderID        string            `json:"uploader_id"`
	Title             string            `json:"title"`
	Thumbnail         string            `json:"thumbnail"`
	ThumbnailRef      string            `json:"thumbnail_ref,omitempty"`
	CustomThumbnail   bool              `json:"custom_thumbnail,omitempty"`
	Duration          float64           `json:"duration"`
	ProcessedVariants map[string]string `json:"processed_variants"`
	RemoteID          string            `json:"remote_id,omitempty"`
	ProcessingStatus  string            `json:"processing_status"`
	ProcessingError   string            `json:"processing_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// RedisVideoCache implements VideoCache using Redis as the backing store.
type RedisVideoCache struct {
	client redis.Cmdable
}

var _ VideoCache = (*RedisVideoCache)(nil)

// NewRedisVideoCache creates a new Redis-backed video cache.
func NewRedisVideoCache(client redis.Cmdable) *RedisVideoCache {
	return &RedisVideoCache{
		client: client,
	}
}

// Get retrieves a video from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisVideoCache) Get(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	data, err := c.client.Get(ctx, buildKey(videoID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil // Cache miss
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	video, err := deserialize(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize video: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return video, nil
}

// Set stores a video in Redis cache with the specified TTL.
func (c *RedisVideoCache) Set(ctx context.Context, video *model.Video, ttl time.Duration) error {
	data, err := serialize(video)
	if err != nil {
		return fmt.Errorf("serialize video: %w", err)
	}

	if err := c.client.Set(ctx, buildKey(video.ID), data, ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a video from Redis cache.
func (c *RedisVideoCache) Delete(ctx context.Context, videoID uuid.UUID) error {
	if err := c.client.Del(ctx, buildKey(videoID)).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// buildKey constructs the Redis key for a video.
func buildKey(videoID uuid.UUID) string {
	return videoCacheKeyPrefix + videoID.String()
}

func serialize(video *model.Video) ([]byte, error) {
	return json.Marshal(videoJSON{
		ID:                video.ID.String(),
		UploaderID:        video.UploaderID.String(),
		Title:             video.Title,
		Thumbnail:         video.Thumbnail,
		ThumbnailRef:      video.ThumbnailRef,
		CustomThumbnail:   video.CustomThumbnail,
		Duration:          video.Duration,
		ProcessedVariants: video.VideoFile.ProcessedVariants,
		RemoteID:          video.VideoFile.RemoteID,
		ProcessingStatus:  string(video.ProcessingStatus),
		ProcessingError:   video.ProcessingError,
		CreatedAt:         video.CreatedAt,
		UpdatedAt:         video.UpdatedAt,
	})
}

func deserialize(data []byte) (*model.Video, error) {
	var v videoJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse video ID: %w", err)
	}

	uploaderID, err := uuid.Parse(v.UploaderID)
	if err != nil {
		return nil, fmt.Errorf("parse uploader ID: %w", err)
	}

	status := model.ProcessingStatus(v.ProcessingStatus)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid processing status %q", v.ProcessingStatus)
	}

	variants := v.ProcessedVariants
	if variants == nil {
		variants = map[string]string{}
	}

	return &model.Video{
		ID:              id,
		UploaderID:      uploaderID,
		Title:           v.Title,
		Thumbnail:       v.Thumbnail,
		ThumbnailRef:    v.ThumbnailRef,
		CustomThumbnail: v.CustomThumbnail,
		Duration:        v.Duration,
		VideoFile: model.VideoFile{
			ProcessedVariants: variants,
			RemoteID:          v.RemoteID,
		},
		ProcessingStatus: status,
		ProcessingError:  v.ProcessingError,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}, nil
}
