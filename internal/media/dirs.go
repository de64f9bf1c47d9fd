package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dirs are the filesystem areas shared by all jobs.
// Every path handed out embeds the video ID, so concurrent jobs never collide.
type Dirs struct {
	Uploads    string
	Videos     string
	Thumbnails string
}

// EnsureDirs creates the media directories. Call once at process start.
func (d Dirs) EnsureDirs() error {
	for _, dir := range []string{d.Uploads, d.Videos, d.Thumbnails} {
		if dir == "" {
			return fmt.Errorf("media directory not configured")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create media directory %s: %w", dir, err)
		}
	}
	return nil
}

// UploadPath is where an uploaded source for videoID is stored.
func (d Dirs) UploadPath(videoID uuid.UUID, originalName string) string {
	return filepath.Join(d.Uploads, videoID.String()+extension(originalName, ".mp4"))
}

// CustomThumbnailPath is where a user-supplied thumbnail for videoID is stored.
func (d Dirs) CustomThumbnailPath(videoID uuid.UUID, originalName string) string {
	return filepath.Join(d.Thumbnails, videoID.String()+"-custom"+extension(originalName, ".jpg"))
}

// VariantFilename is the file name of the quality variant of videoID.
func VariantFilename(videoID uuid.UUID, label string) string {
	return fmt.Sprintf("%s-%s.mp4", videoID, label)
}

// VariantPath is the output path of a quality variant.
func (d Dirs) VariantPath(videoID uuid.UUID, label string) string {
	return filepath.Join(d.Videos, VariantFilename(videoID, label))
}

// FallbackFilename is the file name of the verbatim source copy.
func FallbackFilename(videoID uuid.UUID, sourcePath string) string {
	return fmt.Sprintf("%s-original%s", videoID, extension(sourcePath, ".mp4"))
}

// FallbackPath is where the source is copied when no variant could be produced.
func (d Dirs) FallbackPath(videoID uuid.UUID, sourcePath string) string {
	return filepath.Join(d.Videos, FallbackFilename(videoID, sourcePath))
}

// ThumbnailFilename is the file name of the generated thumbnail.
func ThumbnailFilename(videoID uuid.UUID) string {
	return videoID.String() + ".jpg"
}

// ThumbnailPath is the output path of the generated thumbnail.
func (d Dirs) ThumbnailPath(videoID uuid.UUID) string {
	return filepath.Join(d.Thumbnails, ThumbnailFilename(videoID))
}

func extension(name, fallback string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) > 6 {
		return fallback
	}
	return ext
}
