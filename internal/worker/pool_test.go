package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/lock"
)

type mockProcessor struct {
	processFn func(ctx context.Context, job model.ProcessingJob) error
	calls     atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, job model.ProcessingJob) error {
	m.calls.Add(1)
	if m.processFn != nil {
		return m.processFn(ctx, job)
	}
	return nil
}

type mockLocker struct {
	tryLockFn  func(ctx context.Context, videoID uuid.UUID) (func(), error)
	isLockedFn func(ctx context.Context, videoID uuid.UUID) (bool, error)
}

func (m *mockLocker) TryLock(ctx context.Context, videoID uuid.UUID) (func(), error) {
	if m.tryLockFn != nil {
		return m.tryLockFn(ctx, videoID)
	}
	return func() {}, nil
}

func (m *mockLocker) IsLocked(ctx context.Context, videoID uuid.UUID) (bool, error) {
	if m.isLockedFn != nil {
		return m.isLockedFn(ctx, videoID)
	}
	return false, nil
}

// blockingProcessor signals started for every job and holds it until release is closed.
func blockingProcessor() (*mockProcessor, chan uuid.UUID, chan struct{}) {
	started := make(chan uuid.UUID, 16)
	release := make(chan struct{})
	return &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			started <- job.VideoID
			<-release
			return nil
		},
	}, started, release
}

func newJob() model.ProcessingJob {
	return model.ProcessingJob{VideoID: uuid.New(), SourcePath: "/uploads/a.mp4"}
}

func startPool(t *testing.T, processor Processor, locker repository.VideoLocker, cfg Config) *Pool {
	t.Helper()

	p := New(processor, locker, cfg)
	p.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func waitStarted(t *testing.T, started <-chan uuid.UUID) uuid.UUID {
	t.Helper()

	select {
	case id := <-started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to start")
		return uuid.Nil
	}
}

func localJobs(p *Pool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func waitLocalJobs(t *testing.T, p *Pool, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if localJobs(p) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("local jobs = %d, want %d", localJobs(p), want)
}

func TestNew_Defaults(t *testing.T) {
	p := New(&mockProcessor{}, nil, Config{})

	if p.concurrency <= 0 {
		t.Errorf("concurrency = %d, want > 0", p.concurrency)
	}
	if cap(p.jobs) != DefaultConfig().QueueSize {
		t.Errorf("queue size = %d, want %d", cap(p.jobs), DefaultConfig().QueueSize)
	}
}

func TestPool_ConcurrencyBound(t *testing.T) {
	const concurrency = 2

	var active, peak atomic.Int32
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			return nil
		},
	}

	p := New(processor, nil, Config{Concurrency: concurrency, QueueSize: 16})
	p.Start(context.Background())

	for i := 0; i < 8; i++ {
		if err := p.Submit(newJob()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := processor.calls.Load(); got != 8 {
		t.Errorf("processed %d jobs, want 8", got)
	}
	if got := peak.Load(); got > concurrency {
		t.Errorf("peak concurrency = %d, want <= %d", got, concurrency)
	}
}

func TestPool_Submit_DuplicateVideo(t *testing.T) {
	processor, started, release := blockingProcessor()
	p := startPool(t, processor, nil, Config{Concurrency: 4, QueueSize: 8})

	job := newJob()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Submit(job)
			switch {
			case err == nil:
				accepted.Add(1)
			case !errors.Is(err, repository.ErrJobInFlight):
				t.Errorf("Submit error = %v, want %v", err, repository.ErrJobInFlight)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 1 {
		t.Fatalf("accepted %d submissions, want 1", got)
	}

	waitStarted(t, started)
	if !p.IsActive(context.Background(), job.VideoID) {
		t.Error("expected video to be active while its job runs")
	}

	close(release)
	waitLocalJobs(t, p, 0)

	if got := processor.calls.Load(); got != 1 {
		t.Errorf("processed %d times, want 1", got)
	}

	// Finished jobs free the video for a new submission.
	if err := p.Submit(job); err != nil {
		t.Errorf("resubmit after completion failed: %v", err)
	}
}

func TestPool_Submit_QueueFull(t *testing.T) {
	processor, started, release := blockingProcessor()
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 1})
	defer close(release)

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitStarted(t, started)

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit of queued job failed: %v", err)
	}

	rejected := newJob()
	if err := p.Submit(rejected); !errors.Is(err, repository.ErrQueueFull) {
		t.Fatalf("Submit error = %v, want %v", err, repository.ErrQueueFull)
	}
	if p.IsActive(context.Background(), rejected.VideoID) {
		t.Error("rejected job must not be tracked as active")
	}
}

func TestPool_Submit_Closed(t *testing.T) {
	p := New(&mockProcessor{}, nil, Config{Concurrency: 1, QueueSize: 1})
	p.Start(context.Background())

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if err := p.Submit(newJob()); !errors.Is(err, repository.ErrPoolClosed) {
		t.Errorf("Submit error = %v, want %v", err, repository.ErrPoolClosed)
	}

	// A second shutdown is harmless.
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

func TestPool_SubmitProcessingJob(t *testing.T) {
	got := make(chan model.ProcessingJob, 1)
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			got <- job
			return nil
		},
	}
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 1})

	videoID := uuid.New()
	if err := p.SubmitProcessingJob(context.Background(), videoID, "/uploads/x.mp4", true); err != nil {
		t.Fatalf("SubmitProcessingJob failed: %v", err)
	}

	select {
	case job := <-got:
		want := model.ProcessingJob{VideoID: videoID, SourcePath: "/uploads/x.mp4", UseRemoteStore: true}
		if job != want {
			t.Errorf("job = %+v, want %+v", job, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestPool_Enqueue_WaitsForSpace(t *testing.T) {
	processor, started, release := blockingProcessor()
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 1})

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitStarted(t, started)
	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit of queued job failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Enqueue(context.Background(), newJob())
	}()

	select {
	case err := <-done:
		t.Fatalf("Enqueue returned early with %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Enqueue failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue did not return after space freed")
	}
}

func TestPool_Enqueue_ContextCancelled(t *testing.T) {
	processor, started, release := blockingProcessor()
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 1})
	defer close(release)

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitStarted(t, started)
	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit of queued job failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := p.Enqueue(ctx, newJob()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Enqueue error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestPool_Enqueue_DuplicateIsNotRetried(t *testing.T) {
	processor, started, release := blockingProcessor()
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 1})
	defer close(release)

	job := newJob()
	if err := p.Submit(job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitStarted(t, started)

	if err := p.Enqueue(context.Background(), job); !errors.Is(err, repository.ErrJobInFlight) {
		t.Errorf("Enqueue error = %v, want %v", err, repository.ErrJobInFlight)
	}
}

func TestPool_LockNotAcquired_DropsJob(t *testing.T) {
	locker := &mockLocker{
		tryLockFn: func(ctx context.Context, videoID uuid.UUID) (func(), error) {
			return nil, repository.ErrLockNotAcquired
		},
	}
	processor := &mockProcessor{}
	p := startPool(t, processor, locker, Config{Concurrency: 1, QueueSize: 1})

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitLocalJobs(t, p, 0)

	if got := processor.calls.Load(); got != 0 {
		t.Errorf("processed %d times, want 0", got)
	}
}

func TestPool_ReleasesLockAfterRun(t *testing.T) {
	var released atomic.Int32
	locker := &mockLocker{
		tryLockFn: func(ctx context.Context, videoID uuid.UUID) (func(), error) {
			return func() { released.Add(1) }, nil
		},
	}
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			return errors.New("transcode failed")
		},
	}
	p := startPool(t, processor, locker, Config{Concurrency: 1, QueueSize: 1})

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitLocalJobs(t, p, 0)

	if got := released.Load(); got != 1 {
		t.Errorf("lock released %d times, want 1", got)
	}
}

func TestPool_RecoversFromPanic(t *testing.T) {
	first := newJob()
	processed := make(chan uuid.UUID, 2)
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			if job.VideoID == first.VideoID {
				panic("boom")
			}
			processed <- job.VideoID
			return nil
		},
	}
	p := startPool(t, processor, nil, Config{Concurrency: 1, QueueSize: 4})

	second := newJob()
	if err := p.Submit(first); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := p.Submit(second); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case id := <-processed:
		if id != second.VideoID {
			t.Errorf("processed %v, want %v", id, second.VideoID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}

	waitLocalJobs(t, p, 0)
}

func TestPool_IsActive(t *testing.T) {
	remoteID := uuid.New()
	brokenID := uuid.New()
	locker := &mockLocker{
		isLockedFn: func(ctx context.Context, videoID uuid.UUID) (bool, error) {
			switch videoID {
			case remoteID:
				return true, nil
			case brokenID:
				return false, errors.New("redis down")
			}
			return false, nil
		},
	}
	p := New(&mockProcessor{}, locker, Config{Concurrency: 1, QueueSize: 1})
	ctx := context.Background()

	tests := []struct {
		name    string
		videoID uuid.UUID
		want    bool
	}{
		{"idle", uuid.New(), false},
		{"locked by another process", remoteID, true},
		{"lock lookup error", brokenID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsActive(ctx, tt.videoID); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("no locker", func(t *testing.T) {
		p := New(&mockProcessor{}, nil, Config{Concurrency: 1, QueueSize: 1})
		if p.IsActive(ctx, remoteID) {
			t.Error("IsActive() = true, want false")
		}
	})
}

func TestPool_Shutdown_WaitsForQueuedJobs(t *testing.T) {
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	}
	p := New(processor, nil, Config{Concurrency: 1, QueueSize: 4})
	p.Start(context.Background())

	for i := 0; i < 4; i++ {
		if err := p.Submit(newJob()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := processor.calls.Load(); got != 4 {
		t.Errorf("processed %d jobs, want 4", got)
	}
}

func TestPool_Shutdown_TimeoutCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	processor := &mockProcessor{
		processFn: func(ctx context.Context, job model.ProcessingJob) error {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	}
	p := New(processor, nil, Config{Concurrency: 1, QueueSize: 1})
	p.Start(context.Background())

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want %v", err, context.DeadlineExceeded)
	}

	select {
	case <-cancelled:
	default:
		t.Error("expected running job context to be cancelled")
	}
}

func TestPool_StartContextCancelDoesNotAbortJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	processor := &mockProcessor{
		processFn: func(jobCtx context.Context, job model.ProcessingJob) error {
			cancel()
			time.Sleep(10 * time.Millisecond)
			errCh <- jobCtx.Err()
			return nil
		},
	}
	p := New(processor, nil, Config{Concurrency: 1, QueueSize: 1})
	p.Start(ctx)

	if err := p.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("job context error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPool_SharedRedisLock_ExclusiveAcrossPools(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	locker := lock.NewRedisLocker(client, time.Minute)

	var mu sync.Mutex
	var terminalWrites int
	processor, started, release := blockingProcessor()
	inner := processor.processFn
	processor.processFn = func(ctx context.Context, job model.ProcessingJob) error {
		err := inner(ctx, job)
		mu.Lock()
		terminalWrites++
		mu.Unlock()
		return err
	}

	a := startPool(t, processor, locker, Config{Concurrency: 2, QueueSize: 2})
	b := startPool(t, processor, locker, Config{Concurrency: 2, QueueSize: 2})

	job := newJob()
	if err := a.Submit(job); err != nil {
		t.Fatalf("Submit to pool a failed: %v", err)
	}
	if err := b.Submit(job); err != nil {
		t.Fatalf("Submit to pool b failed: %v", err)
	}

	waitStarted(t, started)

	// The pool that lost the lock drops its copy.
	deadline := time.Now().Add(2 * time.Second)
	for localJobs(a)+localJobs(b) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("pools hold %d jobs, want 1", localJobs(a)+localJobs(b))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !a.IsActive(context.Background(), job.VideoID) || !b.IsActive(context.Background(), job.VideoID) {
		t.Error("expected both pools to report the locked video as active")
	}

	close(release)
	waitLocalJobs(t, a, 0)
	waitLocalJobs(t, b, 0)

	if got := processor.calls.Load(); got != 1 {
		t.Errorf("processed %d times, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if terminalWrites != 1 {
		t.Errorf("terminal writes = %d, want 1", terminalWrites)
	}
}
