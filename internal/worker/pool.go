// Package worker runs processing jobs on a bounded goroutine pool with
// per-video exclusivity.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
)

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, job model.ProcessingJob) error
}

// Config holds configuration for Pool.
type Config struct {
	// Concurrency is the number of jobs run at once. Zero means one per CPU.
	Concurrency int
	// QueueSize bounds the jobs accepted but not yet running.
	QueueSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: runtime.NumCPU(),
		QueueSize:   64,
	}
}

// enqueueRetryInterval bounds how long Enqueue sleeps before re-checking a full queue.
const enqueueRetryInterval = 100 * time.Millisecond

// Pool executes processing jobs on a fixed number of goroutines.
//
// A video has at most one job queued or running in a pool. When a locker is
// set each run additionally holds the video's distributed lock, so pools in
// other processes never process the same video at the same time.
type Pool struct {
	processor   Processor
	locker      repository.VideoLocker
	concurrency int

	jobs  chan model.ProcessingJob
	freed chan struct{}

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	closed   bool

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

var (
	_ repository.JobSubmitter    = (*Pool)(nil)
	_ repository.ActivityChecker = (*Pool)(nil)
)

// New creates a Pool. locker may be nil for single-process deployments.
func New(processor Processor, locker repository.VideoLocker, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		processor:   processor,
		locker:      locker,
		concurrency: cfg.Concurrency,
		jobs:        make(chan model.ProcessingJob, cfg.QueueSize),
		freed:       make(chan struct{}, 1),
		inFlight:    make(map[uuid.UUID]struct{}),
		baseCtx:     baseCtx,
		cancel:      cancel,
	}
}

// Start launches the worker goroutines. Jobs run with a context derived from
// ctx's values; only Shutdown cancels it.
func (p *Pool) Start(ctx context.Context) {
	p.baseCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	slog.Info("worker pool started", "concurrency", p.concurrency, "queue_size", cap(p.jobs))
}

// Submit hands job to the pool without blocking.
// It returns repository.ErrJobInFlight when the video already has a queued or
// running job, repository.ErrQueueFull when the queue is full and
// repository.ErrPoolClosed after Shutdown.
func (p *Pool) Submit(job model.ProcessingJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		metrics.PoolRejectedJobsTotal.WithLabelValues(metrics.RejectClosed).Inc()
		return repository.ErrPoolClosed
	}
	if _, ok := p.inFlight[job.VideoID]; ok {
		metrics.PoolRejectedJobsTotal.WithLabelValues(metrics.RejectInFlight).Inc()
		return repository.ErrJobInFlight
	}

	select {
	case p.jobs <- job:
		p.inFlight[job.VideoID] = struct{}{}
		return nil
	default:
		metrics.PoolRejectedJobsTotal.WithLabelValues(metrics.RejectQueueFull).Inc()
		return repository.ErrQueueFull
	}
}

// Enqueue is Submit that waits for queue space instead of failing with
// repository.ErrQueueFull. Used by the queue consumer for backpressure.
func (p *Pool) Enqueue(ctx context.Context, job model.ProcessingJob) error {
	for {
		err := p.Submit(job)
		if !errors.Is(err, repository.ErrQueueFull) {
			return err
		}

		timer := time.NewTimer(enqueueRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.freed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// SubmitProcessingJob implements repository.JobSubmitter.
func (p *Pool) SubmitProcessingJob(ctx context.Context, videoID uuid.UUID, sourcePath string, useRemoteStore bool) error {
	return p.Submit(model.ProcessingJob{
		VideoID:        videoID,
		SourcePath:     sourcePath,
		UseRemoteStore: useRemoteStore,
	})
}

// IsActive reports whether videoID has a job queued or running here, or
// holds the distributed lock elsewhere. A lock lookup error counts as active.
func (p *Pool) IsActive(ctx context.Context, videoID uuid.UUID) bool {
	p.mu.Lock()
	_, local := p.inFlight[videoID]
	p.mu.Unlock()

	if local || p.locker == nil {
		return local
	}

	locked, err := p.locker.IsLocked(ctx, videoID)
	if err != nil {
		slog.Warn("failed to check video lock, assuming active", "video_id", videoID, "error", err)
		return true
	}
	return locked
}

// Shutdown stops intake and waits for queued and running jobs. When ctx
// expires first the job context is cancelled, which kills running
// subprocesses, and Shutdown returns ctx.Err() once the workers exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		slog.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("worker pool shutdown timed out, cancelling running jobs")
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case p.freed <- struct{}{}:
		default:
		}
		p.run(id, job)
	}
}

func (p *Pool) run(workerID int, job model.ProcessingJob) {
	defer p.release(job.VideoID)

	metrics.PoolInFlightJobs.Inc()
	defer metrics.PoolInFlightJobs.Dec()

	logger := slog.With("worker", workerID, "video_id", job.VideoID)

	// Keeps the worker alive; the processor owns the terminal status.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("processing job panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ctx := p.baseCtx
	if p.locker != nil {
		unlock, err := p.locker.TryLock(ctx, job.VideoID)
		if err != nil {
			metrics.PoolRejectedJobsTotal.WithLabelValues(metrics.RejectLocked).Inc()
			logger.Warn("video lock unavailable, dropping job", "error", err)
			return
		}
		defer unlock()
	}

	logger.Info("processing job started", "use_remote_store", job.UseRemoteStore)
	if err := p.processor.Process(ctx, job); err != nil {
		logger.Error("processing job finished with error", "error", err)
	}
}

func (p *Pool) release(videoID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, videoID)
}
