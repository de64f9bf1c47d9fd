package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/vidproc/internal/config"
	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/cache"
	"github.com/hszk-dev/vidproc/internal/infrastructure/lock"
	"github.com/hszk-dev/vidproc/internal/infrastructure/postgres"
	"github.com/hszk-dev/vidproc/internal/infrastructure/queue"
	"github.com/hszk-dev/vidproc/internal/infrastructure/storage"
	"github.com/hszk-dev/vidproc/internal/media"
	"github.com/hszk-dev/vidproc/internal/transcoder"
	"github.com/hszk-dev/vidproc/internal/usecase"
	"github.com/hszk-dev/vidproc/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	dirs := media.Dirs{
		Uploads:    cfg.Media.UploadsDir,
		Videos:     cfg.Media.VideosDir,
		Thumbnails: cfg.Media.ThumbnailsDir,
	}
	if err := dirs.EnsureDirs(); err != nil {
		return err
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	if err := pgClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register database metrics: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	store, err := newRemoteStore(ctx, cfg.RemoteStore)
	if err != nil {
		return err
	}

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.Prefetch = cfg.Worker.PoolSize()
	queueClient, err := queue.NewClient(ctx, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Redis backs both cache invalidation and the per-video lock
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	runner := media.NewCommandRunner()
	tcCfg := transcoder.DefaultFFmpegConfig()
	tcCfg.FFmpegPath = cfg.Media.FFmpegPath

	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	videoCache := cache.NewRedisVideoCache(redisClient)
	processingSvc := usecase.NewProcessingService(
		videoRepo,
		store,
		media.NewFFprobe(cfg.Media.FFprobePath, runner),
		media.NewFFmpegThumbnailer(cfg.Media.FFmpegPath, runner),
		transcoder.NewFFmpegTranscoder(tcCfg, runner),
		videoCache,
		usecase.ProcessingServiceConfig{Dirs: dirs},
	)

	pool := worker.New(processingSvc, lock.NewRedisLocker(redisClient, cfg.Worker.LockTTL), worker.Config{
		Concurrency: cfg.Worker.PoolSize(),
		QueueSize:   cfg.Worker.QueueSize,
	})
	pool.Start(ctx)

	sweeper := usecase.NewStaleSweeper(videoRepo, pool, videoCache, usecase.StaleSweeperConfig{
		StaleAfter: cfg.Worker.StaleAfter,
	})

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting worker, consuming processing jobs",
			slog.Int("concurrency", cfg.Worker.PoolSize()),
		)
		err := queueClient.ConsumeProcessingJobs(gctx, func(ctx context.Context, job model.ProcessingJob) error {
			// Blocks while the pool queue is full so unacked deliveries stay in RabbitMQ.
			return pool.Enqueue(ctx, job)
		})
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if cfg.Worker.SweepInterval <= 0 {
			return nil
		}
		if err := sweeper.Run(gctx, cfg.Worker.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stale sweeper error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting metrics server", slog.Int("port", cfg.Worker.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	// Queued and running jobs finish before the process exits, up to the timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout exceeded, running jobs were cancelled")
	}

	logger.Info("worker stopped")
	return runErr
}

// newRemoteStore returns the MinIO-backed store, or a disabled store when
// remote storage is not fully configured.
func newRemoteStore(ctx context.Context, cfg config.RemoteStoreConfig) (repository.RemoteMediaStore, error) {
	if !cfg.IsConfigured() {
		slog.Info("remote media store not configured, processing locally")
		return storage.DisabledRemoteStore{}, nil
	}

	store, err := storage.NewRemoteStore(ctx, storage.ClientConfig{
		Endpoint:      cfg.Endpoint,
		AccessKey:     cfg.AccessKey,
		SecretKey:     cfg.SecretKey,
		Bucket:        cfg.Bucket,
		UseSSL:        cfg.UseSSL,
		CDNBaseURL:    cfg.CDNBaseURL,
		UploadTimeout: cfg.UploadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote media store: %w", err)
	}
	slog.Info("connected to remote media store", "bucket", cfg.Bucket)
	return store, nil
}
