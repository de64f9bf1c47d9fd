package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hszk-dev/vidproc/internal/domain/model"
)

// ProbeResult is the metadata extracted from a source file.
// Width and Height are zero when the source has no video stream.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
}

// HasVideo reports whether a video stream was found.
func (r *ProbeResult) HasVideo() bool {
	return r.Width > 0 && r.Height > 0
}

// Prober extracts media metadata from a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFprobe implements Prober with the ffprobe CLI.
type FFprobe struct {
	path   string
	runner Runner
}

var _ Prober = (*FFprobe)(nil)

// NewFFprobe creates a prober. An empty path means "ffprobe" from PATH.
func NewFFprobe(path string, runner Runner) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{path: path, runner: runner}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
		Duration  string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

var errUnrecognizedContainer = errors.New("not a recognized media container")

// Probe returns duration, dimensions and codec of the file at path.
// Every failure is a *model.ProbeError.
func (p *FFprobe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &model.ProbeError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &model.ProbeError{Path: path, Err: fmt.Errorf("path is a directory")}
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	output, err := p.runner.Run(ctx, p.path, args...)
	if err != nil {
		return nil, &model.ProbeError{Path: path, Err: err}
	}

	var data ffprobeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, &model.ProbeError{Path: path, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}
	if data.Format.FormatName == "" && len(data.Streams) == 0 {
		return nil, &model.ProbeError{Path: path, Err: errUnrecognizedContainer}
	}

	result := &ProbeResult{DurationSeconds: parseSeconds(data.Format.Duration)}

	for _, stream := range data.Streams {
		if stream.CodecType != "video" {
			continue
		}
		result.Width = stream.Width
		result.Height = stream.Height
		result.Codec = stream.CodecName
		break
	}

	// Use stream duration if format duration is missing
	if result.DurationSeconds == 0 {
		for _, stream := range data.Streams {
			if d := parseSeconds(stream.Duration); d > 0 {
				result.DurationSeconds = d
				break
			}
		}
	}

	return result, nil
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
