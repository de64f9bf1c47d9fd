package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"runtime/debug"
	"time"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/cache"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidproc/internal/media"
	"github.com/hszk-dev/vidproc/internal/transcoder"
)

// ProcessingService runs the ingestion pipeline for one uploaded video.
type ProcessingService interface {
	// Process probes the source, produces a thumbnail and the playable variants
	// (locally or through the remote media store) and writes exactly one
	// terminal status. Returns nil only when the video reached ready or the job
	// was skipped because the video was already terminal.
	//
	// A missing record yields a *model.JobError without side effects.
	// Process never retries; the caller must not retry either.
	Process(ctx context.Context, job model.ProcessingJob) error
}

// remoteCleanupTimeout bounds deleting an uploaded object the record never referenced.
const remoteCleanupTimeout = 30 * time.Second

// ProcessingServiceConfig holds configuration for ProcessingService.
type ProcessingServiceConfig struct {
	Dirs media.Dirs
}

type processingService struct {
	repo        repository.VideoRepository
	store       repository.RemoteMediaStore
	prober      media.Prober
	thumbnailer media.Thumbnailer
	transcoder  transcoder.Transcoder
	cache       cache.Invalidator

	dirs media.Dirs
}

// NewProcessingService creates a new ProcessingService instance.
func NewProcessingService(
	repo repository.VideoRepository,
	store repository.RemoteMediaStore,
	prober media.Prober,
	thumbnailer media.Thumbnailer,
	tc transcoder.Transcoder,
	invalidator cache.Invalidator,
	cfg ProcessingServiceConfig,
) ProcessingService {
	if invalidator == nil {
		invalidator = cache.NoopCache{}
	}
	return &processingService{
		repo:        repo,
		store:       store,
		prober:      prober,
		thumbnailer: thumbnailer,
		transcoder:  tc,
		cache:       invalidator,
		dirs:        cfg.Dirs,
	}
}

func (s *processingService) Process(ctx context.Context, job model.ProcessingJob) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during video processing",
				"video_id", job.VideoID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = s.fail(ctx, job, metrics.PathNone, start, fmt.Errorf("processing panicked: %v", r))
		}
	}()

	return s.process(ctx, job, start)
}

func (s *processingService) process(ctx context.Context, job model.ProcessingJob, start time.Time) error {
	logger := slog.With("video_id", job.VideoID)

	video, err := s.repo.GetByID(ctx, job.VideoID)
	if err != nil {
		if errors.Is(err, repository.ErrVideoNotFound) {
			logger.Error("processing job for unknown video", "error", err)
			s.observe(metrics.OutcomeRecordMissing, metrics.PathNone, start)
			return &model.JobError{Kind: model.JobErrorRecordMissing, VideoID: job.VideoID, Err: err}
		}
		// The record stays in processing; the stale sweeper picks it up.
		s.observe(metrics.OutcomeFailed, metrics.PathNone, start)
		return fmt.Errorf("load video: %w", err)
	}

	if video.ProcessingStatus.IsTerminal() {
		logger.Info("skipping job for terminal video", "status", video.ProcessingStatus)
		s.observe(metrics.OutcomeSkipped, metrics.PathNone, start)
		return nil
	}

	probe, err := s.prober.Probe(ctx, job.SourcePath)
	if err != nil {
		return s.fail(ctx, job, metrics.PathNone, start, err)
	}

	duration := probe.DurationSeconds
	if err := s.repo.UpdateFields(ctx, job.VideoID, model.VideoFields{Duration: &duration}); err != nil {
		return s.fail(ctx, job, metrics.PathNone, start, fmt.Errorf("write duration: %w", err))
	}

	remote := job.UseRemoteStore && s.store.IsConfigured()
	if job.UseRemoteStore && !remote {
		logger.Warn("remote store requested but not configured, processing locally")
	}

	path := metrics.PathLocal
	var fields model.VideoFields
	if remote {
		path = metrics.PathRemote
		fields, err = s.processRemote(ctx, job, video, probe)
	} else {
		fields, err = s.processLocal(ctx, job, video, probe)
	}
	if err != nil {
		return s.fail(ctx, job, path, start, err)
	}

	ready := model.StatusReady
	fields.ProcessingStatus = &ready
	if err := s.repo.UpdateFields(context.WithoutCancel(ctx), job.VideoID, fields); err != nil {
		if fields.RemoteID != nil {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteCleanupTimeout)
			s.store.DeleteMedia(cleanupCtx, *fields.RemoteID, repository.MediaKindVideo)
			cancel()
		}
		return s.fail(ctx, job, path, start, fmt.Errorf("mark video ready: %w", err))
	}

	s.finish(ctx, job)
	s.observe(metrics.OutcomeReady, path, start)

	logger.Info("video processing completed",
		"path", path,
		"variants", len(fields.ProcessedVariants),
		"duration_seconds", probe.DurationSeconds,
	)
	return nil
}

// processRemote uploads the source to the remote store and derives the
// variant URLs from it. Only the video upload is fatal.
func (s *processingService) processRemote(ctx context.Context, job model.ProcessingJob, video *model.Video, probe *media.ProbeResult) (model.VideoFields, error) {
	if !video.HasCustomThumbnail() {
		if err := s.remoteThumbnail(ctx, job, probe); err != nil {
			return model.VideoFields{}, err
		}
	}

	uploaded, err := s.store.UploadMedia(ctx, job.SourcePath, repository.MediaKindVideo)
	if err != nil {
		return model.VideoFields{}, err
	}

	variants := make(map[string]string, len(model.QualityLadder())+1)
	for _, q := range model.QualityLadder() {
		if url, ok := s.store.BuildVariantURL(uploaded.RemoteID, q.Label); ok {
			variants[q.Label] = url
		}
	}
	variants[model.LabelOriginal] = uploaded.URL
	if url, ok := s.store.BuildVariantURL(uploaded.RemoteID, model.LabelOriginal); ok {
		variants[model.LabelOriginal] = url
	}

	remoteID := uploaded.RemoteID
	return model.VideoFields{
		ProcessedVariants: variants,
		RemoteID:          &remoteID,
	}, nil
}

// remoteThumbnail generates the still locally and moves it to the remote store.
// If the upload fails the local file is kept and referenced instead.
// Only a failed record write is returned.
func (s *processingService) remoteThumbnail(ctx context.Context, job model.ProcessingJob, probe *media.ProbeResult) error {
	out := s.dirs.ThumbnailPath(job.VideoID)
	if err := s.thumbnailer.Generate(ctx, job.SourcePath, out, probe.DurationSeconds); err != nil {
		metrics.ThumbnailFailuresTotal.WithLabelValues(metrics.ThumbnailStageGenerate).Inc()
		slog.Warn("thumbnail generation failed, keeping default", "video_id", job.VideoID, "error", err)
		return nil
	}

	thumbnail := media.ThumbnailFilename(job.VideoID)
	ref := ""
	uploaded, err := s.store.UploadMedia(ctx, out, repository.MediaKindImage)
	if err != nil {
		metrics.ThumbnailFailuresTotal.WithLabelValues(metrics.ThumbnailStageUpload).Inc()
		slog.Warn("thumbnail upload failed, keeping local file", "video_id", job.VideoID, "error", err)
	} else {
		thumbnail = uploaded.URL
		ref = uploaded.RemoteID
		removeFile(out)
	}

	if err := s.repo.UpdateFields(ctx, job.VideoID, model.VideoFields{Thumbnail: &thumbnail, ThumbnailRef: &ref}); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}

// processLocal transcodes every ladder rung the source can fill. Variant
// failures are isolated; when none succeeds the source is kept verbatim.
func (s *processingService) processLocal(ctx context.Context, job model.ProcessingJob, video *model.Video, probe *media.ProbeResult) (model.VideoFields, error) {
	if !video.HasCustomThumbnail() {
		if err := s.localThumbnail(ctx, job, probe); err != nil {
			return model.VideoFields{}, err
		}
	}

	targets := model.SelectQualities(probe.Height)
	variants := make(map[string]string, len(targets))
	var failures int

	for _, q := range targets {
		if err := ctx.Err(); err != nil {
			return model.VideoFields{}, fmt.Errorf("processing cancelled: %w", err)
		}

		out := s.dirs.VariantPath(job.VideoID, q.Label)
		if err := s.transcoder.TranscodeVariant(ctx, job.SourcePath, out, q); err != nil {
			failures++
			metrics.VariantTranscodesTotal.WithLabelValues(q.Label, metrics.ResultError).Inc()
			slog.Warn("variant transcode failed", "video_id", job.VideoID, "label", q.Label, "error", err)
			continue
		}
		metrics.VariantTranscodesTotal.WithLabelValues(q.Label, metrics.ResultSuccess).Inc()

		variants[q.Label] = media.VariantFilename(job.VideoID, q.Label)
		if err := s.repo.UpdateFields(ctx, job.VideoID, model.VideoFields{ProcessedVariants: maps.Clone(variants)}); err != nil {
			return model.VideoFields{}, fmt.Errorf("write %s variant: %w", q.Label, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return model.VideoFields{}, fmt.Errorf("processing cancelled: %w", err)
	}

	if len(variants) == 0 {
		fallback := s.dirs.FallbackPath(job.VideoID, job.SourcePath)
		if err := media.CopyFile(job.SourcePath, fallback); err != nil {
			return model.VideoFields{}, fmt.Errorf("copy source to fallback: %w", err)
		}
		metrics.FallbackCopiesTotal.Inc()
		slog.Warn("no variant produced, serving source copy",
			"video_id", job.VideoID,
			"attempted", len(targets),
			"failed", failures,
		)
		variants[model.LabelOriginal] = media.FallbackFilename(job.VideoID, job.SourcePath)
	}

	return model.VideoFields{ProcessedVariants: variants}, nil
}

// localThumbnail generates the still next to the other media. A failure keeps
// the default thumbnail; only a failed record write is returned.
func (s *processingService) localThumbnail(ctx context.Context, job model.ProcessingJob, probe *media.ProbeResult) error {
	out := s.dirs.ThumbnailPath(job.VideoID)
	if err := s.thumbnailer.Generate(ctx, job.SourcePath, out, probe.DurationSeconds); err != nil {
		metrics.ThumbnailFailuresTotal.WithLabelValues(metrics.ThumbnailStageGenerate).Inc()
		slog.Warn("thumbnail generation failed, keeping default", "video_id", job.VideoID, "error", err)
		return nil
	}

	thumbnail := media.ThumbnailFilename(job.VideoID)
	if err := s.repo.UpdateFields(ctx, job.VideoID, model.VideoFields{Thumbnail: &thumbnail}); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return nil
}

// fail writes the failed status with the cause and releases the source.
// The write survives cancellation of ctx so a job never ends in processing.
func (s *processingService) fail(ctx context.Context, job model.ProcessingJob, path string, start time.Time, cause error) error {
	status := model.StatusFailed
	msg := cause.Error()
	err := s.repo.UpdateFields(context.WithoutCancel(ctx), job.VideoID, model.VideoFields{
		ProcessingStatus: &status,
		ProcessingError:  &msg,
	})
	if err != nil {
		slog.Error("failed to mark video as failed",
			"video_id", job.VideoID,
			"cause", msg,
			"error", err,
		)
	}

	s.finish(ctx, job)
	s.observe(metrics.OutcomeFailed, path, start)

	slog.Error("video processing failed", "video_id", job.VideoID, "path", path, "error", cause)
	return cause
}

// finish removes the job's source file and drops the cached record.
func (s *processingService) finish(ctx context.Context, job model.ProcessingJob) {
	removeFile(job.SourcePath)

	if err := s.cache.Delete(context.WithoutCancel(ctx), job.VideoID); err != nil {
		slog.Warn("failed to invalidate video cache", "video_id", job.VideoID, "error", err)
	}
}

func (s *processingService) observe(outcome, path string, start time.Time) {
	metrics.ProcessingJobsTotal.WithLabelValues(outcome, path).Inc()
	metrics.ProcessingDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove file", "path", path, "error", err)
	}
}
