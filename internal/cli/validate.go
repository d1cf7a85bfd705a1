package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/rs/zerolog/log"
)

// ResolveFile checks that path exists and is a regular file, then returns
// the absolute path.
func ResolveFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to access %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, not a file", path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// StageErrorMessage returns the operator-facing explanation for err.
func StageErrorMessage(err error) string {
	var se *stageerr.Error
	if !errors.As(err, &se) {
		return "Unexpected error"
	}
	switch se.Kind {
	case stageerr.KindConfiguration:
		return "Configuration is invalid. Check the settings and params documents"
	case stageerr.KindMissingCredential:
		return "No API key configured. Set the environment variable named in the settings document"
	case stageerr.KindUnsupportedFileType:
		return "Unsupported file type. Use one of the allowed_extensions"
	case stageerr.KindFileTooLarge:
		return "Image exceeds max_file_size"
	case stageerr.KindInvalidImage:
		return "File is not a readable image"
	case stageerr.KindArtifactNotFound:
		return "Input artifact not found. Run the previous stage first"
	case stageerr.KindCaptioning:
		return "Caption service failed. Please try again later"
	case stageerr.KindStoryGeneration:
		return "Story service failed. Please try again later"
	default:
		return "Pipeline stage failed"
	}
}

// HandleStageError logs err with a kind-specific message and exits with
// status 1.
func HandleStageError(err error) {
	log.Error().
		Err(err).
		Str("kind", stageerr.KindOf(err).String()).
		Msg(StageErrorMessage(err))
	os.Exit(1)
}

// ValidateWordLimit rejects word limits outside the accepted range.
func ValidateWordLimit(n int) error {
	if n < config.MinWordLimit || n > config.MaxWordLimit {
		return fmt.Errorf("word limit must be between %d and %d, got %d", config.MinWordLimit, config.MaxWordLimit, n)
	}
	return nil
}
