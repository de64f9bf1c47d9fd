package usecase

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/infrastructure/cache"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedVideoServiceConfig holds configuration for CachedVideoService.
type CachedVideoServiceConfig struct {
	// CacheTTL is the TTL for cached video records. Keep it short: status
	// polls are the main readers and the worker invalidates on every terminal write.
	CacheTTL time.Duration
	// MediaBaseURL is the public origin serving the local videos and thumbnails directories.
	MediaBaseURL string
}

// DefaultCachedVideoServiceConfig returns the default configuration.
func DefaultCachedVideoServiceConfig() CachedVideoServiceConfig {
	return CachedVideoServiceConfig{
		CacheTTL:     30 * time.Second,
		MediaBaseURL: "http://localhost:8080/media",
	}
}

// cachedVideoService wraps VideoService with caching capabilities.
// It implements the decorator pattern to add caching without modifying the original service.
type cachedVideoService struct {
	delegate VideoService
	cache    cache.VideoCache
	sfGroup  singleflight.Group

	cacheTTL     time.Duration
	mediaBaseURL string
}

// NewCachedVideoService creates a new CachedVideoService wrapping the provided VideoService.
func NewCachedVideoService(
	delegate VideoService,
	videoCache cache.VideoCache,
	cfg CachedVideoServiceConfig,
) VideoService {
	return &cachedVideoService{
		delegate:     delegate,
		cache:        videoCache,
		cacheTTL:     cfg.CacheTTL,
		mediaBaseURL: strings.TrimRight(cfg.MediaBaseURL, "/"),
	}
}

// CreateVideo delegates to the underlying service.
// No caching for create operations - the video is immediately returned.
func (s *cachedVideoService) CreateVideo(ctx context.Context, input CreateVideoInput) (*CreateVideoOutput, error) {
	out, err := s.delegate.CreateVideo(ctx, input)
	if err != nil {
		return nil, err
	}
	return &CreateVideoOutput{Video: s.enrichWithMediaURLs(out.Video)}, nil
}

// Reprocess invalidates the cache around the delegate call so a poll never
// sees the previous terminal status after the re-trigger was accepted.
func (s *cachedVideoService) Reprocess(ctx context.Context, input ReprocessInput) (*model.Video, error) {
	s.invalidate(ctx, input.VideoID)
	video, err := s.delegate.Reprocess(ctx, input)
	s.invalidate(ctx, input.VideoID)
	if err != nil {
		return nil, err
	}
	return s.enrichWithMediaURLs(video), nil
}

// GetVideo retrieves video information with caching and media URL enrichment.
// Uses singleflight to prevent cache stampede on concurrent requests for the same video.
func (s *cachedVideoService) GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	// Use singleflight to coalesce concurrent requests
	key := videoID.String()
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.getVideoWithCache(ctx, videoID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	video := result.(*model.Video)
	return s.enrichWithMediaURLs(video), nil
}

// getVideoWithCache implements the cache-aside pattern.
func (s *cachedVideoService) getVideoWithCache(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	video, err := s.cache.Get(ctx, videoID)
	if err != nil {
		slog.Warn("cache get failed, falling back to database",
			"video_id", videoID,
			"error", err,
		)
	}

	if video != nil {
		return video, nil // Cache hit
	}

	video, err = s.delegate.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, video, s.cacheTTL); err != nil {
		slog.Warn("failed to cache video",
			"video_id", videoID,
			"error", err,
		)
	}

	return video, nil
}

func (s *cachedVideoService) invalidate(ctx context.Context, videoID uuid.UUID) {
	if err := s.cache.Delete(ctx, videoID); err != nil {
		slog.Warn("failed to invalidate cache",
			"video_id", videoID,
			"error", err,
		)
	}
}

// enrichWithMediaURLs turns local filenames into public URLs.
// Remote URLs are left alone. Returns a copy to avoid mutating cached data.
func (s *cachedVideoService) enrichWithMediaURLs(video *model.Video) *model.Video {
	enriched := *video

	if video.Thumbnail != model.DefaultThumbnail {
		enriched.Thumbnail = s.mediaURL("thumbnails", video.Thumbnail)
	}

	if len(video.VideoFile.ProcessedVariants) > 0 {
		variants := maps.Clone(video.VideoFile.ProcessedVariants)
		for label, ref := range variants {
			variants[label] = s.mediaURL("videos", ref)
		}
		enriched.VideoFile.ProcessedVariants = variants
	}

	return &enriched
}

// mediaURL builds {MediaBaseURL}/{dir}/{filename} for local references.
func (s *cachedVideoService) mediaURL(dir, ref string) string {
	if ref == "" || isRemoteURL(ref) {
		return ref
	}
	return s.mediaBaseURL + "/" + dir + "/" + ref
}

func isRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
