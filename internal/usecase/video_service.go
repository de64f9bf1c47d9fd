package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/media"
)

var (
	// ErrVideoAlreadyCompleted is returned when attempting to reprocess a video that is already ready.
	ErrVideoAlreadyCompleted = errors.New("video processing has already completed")

	// ErrVideoStatusChanged is returned when a video's status moved on while a reprocess request was being prepared.
	ErrVideoStatusChanged = errors.New("video status changed concurrently")

	// ErrSourceMissing is returned when the source file of a reprocess request does not exist.
	ErrSourceMissing = errors.New("source file not found")

	// ErrInvalidSourcePath is returned when a source path points outside the uploads directory.
	ErrInvalidSourcePath = errors.New("source path must be inside the uploads directory")

	// ErrMissingVideoFile is returned when an upload carries no video file.
	ErrMissingVideoFile = errors.New("video file is required")
)

// CreateVideoInput contains the input parameters for creating a video.
type CreateVideoInput struct {
	UploaderID uuid.UUID
	Title      string

	Video     io.Reader
	VideoName string

	// Thumbnail is optional. When set it becomes the custom thumbnail and
	// the pipeline never generates one.
	Thumbnail     io.Reader
	ThumbnailName string
}

// CreateVideoOutput contains the result of creating a video.
type CreateVideoOutput struct {
	Video *model.Video
}

// ReprocessInput re-triggers processing of an existing video.
type ReprocessInput struct {
	VideoID uuid.UUID
	// SourcePath overrides the stored upload location.
	SourcePath string
	// UseRemoteStore overrides the configured default when non-nil.
	UseRemoteStore *bool
}

// VideoService defines the interface for video business logic operations.
type VideoService interface {
	// CreateVideo stores the upload, persists the record in processing and
	// hands the job to background processing. It never waits for the job.
	CreateVideo(ctx context.Context, input CreateVideoInput) (*CreateVideoOutput, error)

	// Reprocess is the operator re-trigger. Ready videos are rejected with
	// ErrVideoAlreadyCompleted and a video with an active job with
	// repository.ErrJobInFlight. A failed video is reset to processing;
	// ErrVideoStatusChanged means the record moved on after it was read.
	Reprocess(ctx context.Context, input ReprocessInput) (*model.Video, error)

	// GetVideo retrieves video information by ID.
	GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error)
}

// VideoServiceConfig holds configuration for VideoService.
type VideoServiceConfig struct {
	Dirs media.Dirs
	// UseRemoteStore is the default routing of new jobs. The worker still
	// processes locally when the store is not configured.
	UseRemoteStore bool
}

type videoService struct {
	repo      repository.VideoRepository
	store     repository.RemoteMediaStore
	submitter repository.JobSubmitter
	activity  repository.ActivityChecker

	dirs           media.Dirs
	useRemoteStore bool
}

// NewVideoService creates a new VideoService instance.
func NewVideoService(
	repo repository.VideoRepository,
	store repository.RemoteMediaStore,
	submitter repository.JobSubmitter,
	activity repository.ActivityChecker,
	cfg VideoServiceConfig,
) VideoService {
	return &videoService{
		repo:           repo,
		store:          store,
		submitter:      submitter,
		activity:       activity,
		dirs:           cfg.Dirs,
		useRemoteStore: cfg.UseRemoteStore,
	}
}

// CreateVideo saves the uploaded files, creates the record and submits the job.
func (s *videoService) CreateVideo(ctx context.Context, input CreateVideoInput) (*CreateVideoOutput, error) {
	if input.Video == nil {
		return nil, ErrMissingVideoFile
	}

	video, err := model.NewVideo(input.UploaderID, input.Title)
	if err != nil {
		return nil, err
	}

	sourcePath := s.dirs.UploadPath(video.ID, input.VideoName)
	if err := writeUpload(sourcePath, input.Video); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	video.VideoFile.OriginalPath = sourcePath

	if input.Thumbnail != nil {
		s.attachCustomThumbnail(ctx, video, input.Thumbnail, input.ThumbnailName)
	}

	if err := s.repo.Create(ctx, video); err != nil {
		removeFile(sourcePath)
		s.discardCustomThumbnail(ctx, video)
		return nil, fmt.Errorf("create video: %w", err)
	}

	if err := s.submitter.SubmitProcessingJob(ctx, video.ID, sourcePath, s.useRemoteStore); err != nil {
		s.abandon(ctx, video, err)
		removeFile(sourcePath)
		return nil, fmt.Errorf("submit processing job: %w", err)
	}

	slog.Info("video accepted for processing",
		"video_id", video.ID,
		"use_remote_store", s.useRemoteStore,
	)

	return &CreateVideoOutput{Video: video}, nil
}

// attachCustomThumbnail stores a user-supplied thumbnail. When the remote store
// is configured the file goes there; an upload failure falls back to the default.
func (s *videoService) attachCustomThumbnail(ctx context.Context, video *model.Video, r io.Reader, name string) {
	path := s.dirs.CustomThumbnailPath(video.ID, name)
	if err := writeUpload(path, r); err != nil {
		slog.Warn("failed to store custom thumbnail, using default", "video_id", video.ID, "error", err)
		return
	}

	if !s.store.IsConfigured() {
		video.Thumbnail = filepath.Base(path)
		video.CustomThumbnail = true
		return
	}

	uploaded, err := s.store.UploadMedia(ctx, path, repository.MediaKindImage)
	removeFile(path)
	if err != nil {
		slog.Warn("custom thumbnail upload failed, using default", "video_id", video.ID, "error", err)
		return
	}
	video.Thumbnail = uploaded.URL
	video.ThumbnailRef = uploaded.RemoteID
	video.CustomThumbnail = true
}

// discardCustomThumbnail removes a custom thumbnail that no record references.
func (s *videoService) discardCustomThumbnail(ctx context.Context, video *model.Video) {
	if !video.HasCustomThumbnail() {
		return
	}
	if video.ThumbnailRef != "" {
		s.store.DeleteMedia(ctx, video.ThumbnailRef, repository.MediaKindImage)
		return
	}
	removeFile(filepath.Join(s.dirs.Thumbnails, video.Thumbnail))
}

// Reprocess re-submits a video whose previous job failed or never finished.
func (s *videoService) Reprocess(ctx context.Context, input ReprocessInput) (*model.Video, error) {
	video, err := s.repo.GetByID(ctx, input.VideoID)
	if err != nil {
		return nil, err
	}

	if video.IsReady() {
		return nil, ErrVideoAlreadyCompleted
	}
	if s.activity.IsActive(ctx, video.ID) {
		return nil, repository.ErrJobInFlight
	}

	sourcePath := input.SourcePath
	if sourcePath == "" {
		sourcePath = video.VideoFile.OriginalPath
	}
	sourcePath, err = s.resolveSource(sourcePath)
	if err != nil {
		return nil, err
	}

	expected := video.ProcessingStatus
	switch video.ProcessingStatus {
	case model.StatusFailed:
		err = video.ResetForReprocess(sourcePath)
	case model.StatusUploading:
		err = video.TransitionTo(model.StatusProcessing)
		video.VideoFile.OriginalPath = sourcePath
	default:
		// Stuck in processing with no active job.
		video.VideoFile.OriginalPath = sourcePath
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, video, expected); err != nil {
		if errors.Is(err, repository.ErrVideoNotUpdatable) {
			return nil, ErrVideoStatusChanged
		}
		return nil, fmt.Errorf("update video: %w", err)
	}

	useRemote := s.useRemoteStore
	if input.UseRemoteStore != nil {
		useRemote = *input.UseRemoteStore
	}

	if err := s.submitter.SubmitProcessingJob(ctx, video.ID, sourcePath, useRemote); err != nil {
		// Another job for this video got in first and owns the record.
		if !errors.Is(err, repository.ErrJobInFlight) {
			s.abandon(ctx, video, err)
		}
		return nil, fmt.Errorf("submit processing job: %w", err)
	}

	slog.Info("video re-submitted for processing",
		"video_id", video.ID,
		"use_remote_store", useRemote,
	)

	return video, nil
}

// GetVideo retrieves video information by ID.
func (s *videoService) GetVideo(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	return s.repo.GetByID(ctx, videoID)
}

// resolveSource confines path to the uploads directory and checks it exists.
func (s *videoService) resolveSource(path string) (string, error) {
	if path == "" {
		return "", ErrSourceMissing
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidSourcePath
	}
	root, err := filepath.Abs(s.dirs.Uploads)
	if err != nil {
		return "", ErrInvalidSourcePath
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidSourcePath
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", ErrSourceMissing
	}
	return abs, nil
}

// abandon marks a video failed when its job could not be handed off,
// so no record is left in processing without a job.
func (s *videoService) abandon(ctx context.Context, video *model.Video, cause error) {
	status := model.StatusFailed
	msg := fmt.Sprintf("job submission failed: %v", cause)
	err := s.repo.UpdateFields(context.WithoutCancel(ctx), video.ID, model.VideoFields{
		ProcessingStatus: &status,
		ProcessingError:  &msg,
	})
	if err != nil {
		slog.Error("failed to mark unsubmitted video as failed", "video_id", video.ID, "error", err)
		return
	}
	video.ProcessingStatus = status
	video.ProcessingError = msg
}

func writeUpload(path string, r io.Reader) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	_, err = io.Copy(f, r)
	return err
}
