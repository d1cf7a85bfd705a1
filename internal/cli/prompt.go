package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrNoFile is returned when the user supplies no file.
var ErrNoFile = errors.New("no file selected")

// PromptForFile asks for an image path on out and reads one line from in.
func PromptForFile(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Image file: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to read input")
		return "", err
	}

	input = strings.Trim(strings.TrimSpace(input), `"'`)
	if input == "" {
		return "", ErrNoFile
	}
	return input, nil
}

// PickImageFile opens the native file dialog filtered to the given
// extensions. A cancelled dialog returns ErrNoFile.
func PickImageFile(extensions []string) (string, error) {
	patterns := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		patterns = append(patterns, "*."+strings.TrimPrefix(strings.ToLower(ext), "."))
	}

	selected, err := zenity.SelectFile(
		zenity.Title("Select an image"),
		zenity.FileFilters{
			{Name: "Images", Patterns: patterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrNoFile
		}
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	log.Debug().Str("path", selected).Msg("File picked via native dialog")
	return selected, nil
}
