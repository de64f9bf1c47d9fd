package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
)

// JobSubmitter hands processing jobs to background execution.
// SubmitProcessingJob returns as soon as the job is accepted; it never waits for completion.
type JobSubmitter interface {
	SubmitProcessingJob(ctx context.Context, videoID uuid.UUID, sourcePath string, useRemoteStore bool) error
}

// JobQueue defines the interface for a durable processing job transport.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type JobQueue interface {
	JobSubmitter

	// PublishProcessingJob sends a job to the queue.
	PublishProcessingJob(ctx context.Context, job model.ProcessingJob) error

	// ConsumeProcessingJobs delivers jobs to handler until ctx is cancelled.
	// Used by the worker service.
	ConsumeProcessingJobs(ctx context.Context, handler func(ctx context.Context, job model.ProcessingJob) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}

// VideoLocker guards a video against concurrent processing across processes.
type VideoLocker interface {
	// TryLock acquires the lock for videoID without waiting.
	// Returns ErrLockNotAcquired if another holder owns it. release must be called exactly once.
	TryLock(ctx context.Context, videoID uuid.UUID) (release func(), err error)

	// IsLocked reports whether any holder currently owns the lock.
	IsLocked(ctx context.Context, videoID uuid.UUID) (bool, error)
}

// ActivityChecker reports whether a processing job is currently active for a video.
type ActivityChecker interface {
	IsActive(ctx context.Context, videoID uuid.UUID) bool
}
