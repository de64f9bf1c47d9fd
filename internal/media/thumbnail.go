package media

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/hszk-dev/vidproc/internal/domain/model"
)

const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720

	// thumbnailOffset is the capture point as a fraction of the duration.
	thumbnailOffset = 0.10
)

// Thumbnailer extracts a representative still from source media.
type Thumbnailer interface {
	Generate(ctx context.Context, sourcePath, outputPath string, durationSeconds float64) error
}

// FFmpegThumbnailer grabs one frame with ffmpeg and fills it to the
// thumbnail size with imaging.
type FFmpegThumbnailer struct {
	ffmpegPath string
	runner     Runner
}

var _ Thumbnailer = (*FFmpegThumbnailer)(nil)

func NewFFmpegThumbnailer(ffmpegPath string, runner Runner) *FFmpegThumbnailer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegThumbnailer{ffmpegPath: ffmpegPath, runner: runner}
}

// Generate writes a 1280x720 JPEG captured at 10% of the duration to outputPath.
// Every failure is a *model.ThumbnailError.
func (t *FFmpegThumbnailer) Generate(ctx context.Context, sourcePath, outputPath string, durationSeconds float64) error {
	framePath := outputPath + ".frame.png"
	defer os.Remove(framePath)

	args := []string{
		"-ss", captureOffset(durationSeconds),
		"-i", sourcePath,
		"-frames:v", "1",
		"-an",
		"-y",
		framePath,
	}

	if _, err := t.runner.Run(ctx, t.ffmpegPath, args...); err != nil {
		return &model.ThumbnailError{Path: sourcePath, Err: err}
	}

	// ffmpeg exits cleanly without writing anything when there is no video stream.
	info, err := os.Stat(framePath)
	if err != nil || info.Size() == 0 {
		return &model.ThumbnailError{Path: sourcePath, Err: model.ErrNoVideoFrames}
	}

	img, err := imaging.Open(framePath)
	if err != nil {
		return &model.ThumbnailError{Path: sourcePath, Err: fmt.Errorf("decode frame: %w", err)}
	}

	thumb := imaging.Fill(img, ThumbnailWidth, ThumbnailHeight, imaging.Center, imaging.Lanczos)
	if err := imaging.Save(thumb, outputPath, imaging.JPEGQuality(85)); err != nil {
		os.Remove(outputPath)
		return &model.ThumbnailError{Path: sourcePath, Err: fmt.Errorf("encode thumbnail: %w", err)}
	}

	return nil
}

func captureOffset(durationSeconds float64) string {
	if durationSeconds <= 0 {
		return "0"
	}
	return strconv.FormatFloat(durationSeconds*thumbnailOffset, 'f', 3, 64)
}
