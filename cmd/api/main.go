package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproc/internal/api/handler"
	"github.com/hszk-dev/vidproc/internal/api/middleware"
	"github.com/hszk-dev/vidproc/internal/config"
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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	if err := pgClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register database metrics: %w", err)
	}
	logger.Info("connected to PostgreSQL")

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

	store, err := newRemoteStore(ctx, cfg.RemoteStore)
	if err != nil {
		return err
	}

	videoRepo := postgres.NewVideoRepository(pgClient.Pool())
	videoCache := cache.NewRedisVideoCache(redisClient)
	locker := lock.NewRedisLocker(redisClient, cfg.Worker.LockTTL)

	var (
		submitter repository.JobSubmitter
		activity  repository.ActivityChecker
	)
	if cfg.Server.EmbeddedWorker {
		processor := usecase.NewProcessingService(
			videoRepo,
			store,
			media.NewFFprobe(cfg.Media.FFprobePath, media.NewCommandRunner()),
			media.NewFFmpegThumbnailer(cfg.Media.FFmpegPath, media.NewCommandRunner()),
			newTranscoder(cfg.Media.FFmpegPath),
			videoCache,
			usecase.ProcessingServiceConfig{Dirs: dirs},
		)
		pool := worker.New(processor, locker, worker.Config{
			Concurrency: cfg.Worker.PoolSize(),
			QueueSize:   cfg.Worker.QueueSize,
		})
		pool.Start(ctx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
			defer cancel()
			if err := pool.Shutdown(shutdownCtx); err != nil {
				logger.Warn("worker pool shutdown incomplete", slog.String("error", err.Error()))
			}
		}()
		submitter, activity = pool, pool
		logger.Info("running embedded worker pool", slog.Int("concurrency", cfg.Worker.PoolSize()))
	} else {
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		logger.Info("connected to RabbitMQ")
		submitter, activity = queueClient, locker
	}

	videoSvc := usecase.NewVideoService(videoRepo, store, submitter, activity, usecase.VideoServiceConfig{
		Dirs:           dirs,
		UseRemoteStore: store.IsConfigured(),
	})
	cachedSvc := usecase.NewCachedVideoService(videoSvc, videoCache, usecase.CachedVideoServiceConfig{
		CacheTTL:     cfg.Server.CacheTTL,
		MediaBaseURL: cfg.Server.MediaBaseURL,
	})

	checks := map[string]handler.HealthCheck{
		"postgres": pgClient.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if rs, ok := store.(*storage.RemoteStore); ok {
		checks["remote_store"] = rs.Ping
	}
	r := setupRouter(logger, handler.NewVideoHandler(cachedSvc, cfg.Server.MaxUploadBytes), checks, dirs)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, videoHandler *handler.VideoHandler, checks map[string]handler.HealthCheck, dirs media.Dirs) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready(checks, 2*time.Second))
	r.Handle("/metrics", promhttp.Handler())

	// Local playback references resolve here; see CachedVideoServiceConfig.MediaBaseURL.
	r.Handle("/media/videos/*", http.StripPrefix("/media/videos/", http.FileServer(http.Dir(dirs.Videos))))
	r.Handle("/media/thumbnails/*", http.StripPrefix("/media/thumbnails/", http.FileServer(http.Dir(dirs.Thumbnails))))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/videos", videoHandler.Create)
		r.Get("/videos/{id}", videoHandler.Get)
		r.Post("/videos/{id}/process", videoHandler.Reprocess)
	})

	return r
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

func newTranscoder(ffmpegPath string) transcoder.Transcoder {
	tcCfg := transcoder.DefaultFFmpegConfig()
	tcCfg.FFmpegPath = ffmpegPath
	return transcoder.NewFFmpegTranscoder(tcCfg, media.NewCommandRunner())
}
