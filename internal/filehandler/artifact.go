package filehandler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WriteFileAtomic replaces path with data in one step. The bytes go to a
// temporary file in the same directory which is then renamed over path, so
// readers see either the old file or the complete new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, perm)
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// StoreUpload saves an uploaded file under rawDir using its cleaned name and
// returns the stored path. An existing file of the same name is replaced.
func StoreUpload(rawDir, filename string, r io.Reader) (string, error) {
	name := CleanFilename(filename)
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create raw directory: %w", err)
	}

	tmp, err := os.CreateTemp(rawDir, "."+name+".*.upload")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	dst := filepath.Join(rawDir, name)
	if err == nil {
		err = os.Rename(tmpPath, dst)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store upload %s: %w", name, err)
	}

	log.Debug().
		Str("path", dst).
		Int64("size_bytes", written).
		Msg("Upload stored")

	return dst, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_.\-]`)

// CleanFilename strips any directory part and replaces characters other
// than letters, digits, '_', '-' and '.' with '_'.
func CleanFilename(filename string) string {
	name := filepath.Base(filepath.FromSlash(strings.ReplaceAll(filename, `\`, "/")))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if strings.Trim(name, ".") == "" {
		return "upload"
	}
	return name
}

// UniqueFilename appends a timestamp and short random suffix before the
// extension: photo.jpg -> photo_1700000000_1a2b3c4d.jpg.
func UniqueFilename(filename string) string {
	name := CleanFilename(filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d_%s%s", stem, time.Now().Unix(), uuid.NewString()[:8], ext)
}

// Artifact suffixes. An image's filename stem joins it to its caption and
// story: resized_photo.JPG -> resized_photo_caption.txt -> resized_photo_story.txt.
const (
	CaptionSuffix = "_caption.txt"
	StorySuffix   = "_story.txt"
)

// Stem returns the base filename of path without its extension.
func Stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ResolveArtifact places a bare filename in dir, the stage directory it
// belongs to. Anything with a directory part is returned unchanged.
func ResolveArtifact(dir, path string) string {
	if dir == "" || path == "" || filepath.Base(path) != path {
		return path
	}
	return filepath.Join(dir, path)
}

// CaptionPath returns where the caption of imagePath lives in captionsDir.
func CaptionPath(captionsDir, imagePath string) string {
	return filepath.Join(captionsDir, Stem(imagePath)+CaptionSuffix)
}

// StoryPath returns where the story derived from captionPath lives in
// storiesDir. The caption suffix is swapped for the story suffix; a caption
// file not following the convention keeps its whole stem.
func StoryPath(storiesDir, captionPath string) string {
	name := filepath.Base(captionPath)
	stem, ok := strings.CutSuffix(name, CaptionSuffix)
	if !ok {
		stem = Stem(name)
	}
	return filepath.Join(storiesDir, stem+StorySuffix)
}
