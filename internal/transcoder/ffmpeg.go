package transcoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/media"
)

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Default: fast
	VideoPreset string

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// AudioBitrate is fixed across all variants.
	// Default: 128k
	AudioBitrate string

	// PixelFormat keeps output playable in browsers.
	// Default: yuv420p
	PixelFormat string
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:   "ffmpeg",
		VideoCodec:   "libx264",
		VideoPreset:  "fast",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		PixelFormat:  "yuv420p",
	}
}

// FFmpegTranscoder implements Transcoder using FFmpeg CLI.
type FFmpegTranscoder struct {
	config FFmpegConfig
	runner media.Runner
}

// Compile-time verification that FFmpegTranscoder implements Transcoder.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a new FFmpeg-based transcoder.
func NewFFmpegTranscoder(cfg FFmpegConfig, runner media.Runner) *FFmpegTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{
		config: cfg,
		runner: runner,
	}
}

// TranscodeVariant converts the input to a single MP4 quality variant.
// It executes FFmpeg as a subprocess and waits for completion.
func (t *FFmpegTranscoder) TranscodeVariant(ctx context.Context, inputPath, outputPath string, quality model.Quality) error {
	if err := t.validateInput(inputPath); err != nil {
		return &model.TranscodeError{Label: quality.Label, Err: err}
	}

	if err := t.validateOutputDir(filepath.Dir(outputPath)); err != nil {
		return &model.TranscodeError{Label: quality.Label, Err: err}
	}

	if quality.MaxWidth <= 0 || quality.MaxHeight <= 0 || quality.VideoBitrate == "" {
		return &model.TranscodeError{Label: quality.Label, Err: fmt.Errorf("invalid quality target %+v", quality)}
	}

	args := t.buildFFmpegArgs(inputPath, outputPath, quality)

	if _, err := t.runner.Run(ctx, t.config.FFmpegPath, args...); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return &model.TranscodeError{Label: quality.Label, Err: fmt.Errorf("transcoding cancelled: %w", ctx.Err())}
		}
		return &model.TranscodeError{Label: quality.Label, Err: fmt.Errorf("ffmpeg execution failed: %w", err)}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return &model.TranscodeError{Label: quality.Label, Err: fmt.Errorf("no output produced")}
	}

	return nil
}

// validateInput checks if the input file exists and is readable.
func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func (t *FFmpegTranscoder) validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// buildFFmpegArgs constructs the FFmpeg command arguments.
func (t *FFmpegTranscoder) buildFFmpegArgs(inputPath, outputPath string, quality model.Quality) []string {
	// Fit within the target box; min() keeps sources smaller than the box at their size.
	scaleFilter := fmt.Sprintf(
		"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		quality.MaxWidth, quality.MaxHeight,
	)

	return []string{
		"-i", inputPath,
		"-vf", scaleFilter,
		"-c:v", t.config.VideoCodec,
		"-preset", t.config.VideoPreset,
		"-b:v", quality.VideoBitrate,
		"-c:a", t.config.AudioCodec,
		"-b:a", t.config.AudioBitrate,
		"-pix_fmt", t.config.PixelFormat,
		"-movflags", "+faststart", // moov atom first for progressive playback
		"-f", "mp4",
		"-y", // Overwrite output files without asking
		outputPath,
	}
}
