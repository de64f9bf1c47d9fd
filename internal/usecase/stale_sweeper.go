package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/cache"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
)

// StaleProcessingError is written to videos the sweeper gives up on.
const StaleProcessingError = "processing timed out"

// StaleSweeperConfig holds configuration for StaleSweeper.
type StaleSweeperConfig struct {
	// StaleAfter is how long a video may sit in processing without an update.
	StaleAfter time.Duration
	// BatchSize bounds the records handled per sweep.
	BatchSize int
}

// DefaultStaleSweeperConfig returns the default configuration.
func DefaultStaleSweeperConfig() StaleSweeperConfig {
	return StaleSweeperConfig{
		StaleAfter: 6 * time.Hour,
		BatchSize:  100,
	}
}

// StaleSweeper fails videos whose job died before reaching a terminal status.
type StaleSweeper struct {
	repo     repository.VideoRepository
	activity repository.ActivityChecker
	cache    cache.Invalidator

	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewStaleSweeper creates a new StaleSweeper.
func NewStaleSweeper(
	repo repository.VideoRepository,
	activity repository.ActivityChecker,
	invalidator cache.Invalidator,
	cfg StaleSweeperConfig,
) *StaleSweeper {
	if invalidator == nil {
		invalidator = cache.NoopCache{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultStaleSweeperConfig().BatchSize
	}
	return &StaleSweeper{
		repo:       repo,
		activity:   activity,
		cache:      invalidator,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
}

// Sweep marks stale videos failed and returns how many it changed.
// Videos with an active job are left alone however old their last update is.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	videos, err := s.repo.ListStaleProcessing(ctx, s.now().Add(-s.staleAfter), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale videos: %w", err)
	}

	status := model.StatusFailed
	msg := StaleProcessingError

	var swept int
	for _, video := range videos {
		if s.activity.IsActive(ctx, video.ID) {
			continue
		}

		err := s.repo.UpdateFields(ctx, video.ID, model.VideoFields{
			ProcessingStatus: &status,
			ProcessingError:  &msg,
		})
		if err != nil {
			if errors.Is(err, repository.ErrVideoNotUpdatable) || errors.Is(err, repository.ErrVideoNotFound) {
				continue
			}
			return swept, fmt.Errorf("fail stale video %s: %w", video.ID, err)
		}

		if err := s.cache.Delete(ctx, video.ID); err != nil {
			slog.Warn("failed to invalidate video cache", "video_id", video.ID, "error", err)
		}
		metrics.StaleVideosFailedTotal.Inc()
		slog.Warn("failed stale video",
			"video_id", video.ID,
			"updated_at", video.UpdatedAt,
		)
		swept++
	}

	return swept, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *StaleSweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("stale sweep failed", "error", err)
			}
		}
	}
}
