package transcoder

import (
	"context"

	"github.com/hszk-dev/vidproc/internal/domain/model"
)

// Transcoder defines the interface for variant encoding.
type Transcoder interface {
	// TranscodeVariant re-encodes inputPath into a progressive MP4 at outputPath,
	// fit within the quality's bounds without upscaling.
	//
	// Returns a *model.TranscodeError on failure. Partial output is removed.
	// The directory of outputPath must exist before calling this method.
	TranscodeVariant(ctx context.Context, inputPath, outputPath string, quality model.Quality) error
}
