package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatElapsed renders a stage duration for terminal output. Inference
// calls usually finish in seconds, so sub-minute values keep a decimal.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < 0:
		d = 0
		fallthrough
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	total := int(d.Round(time.Second).Seconds())
	if h := total / 3600; h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, total%3600/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// StorySummary is the trailer printed after a story: word count against
// the requested limit and the time taken.
func StorySummary(text string, wordLimit int, elapsed time.Duration) string {
	words := len(strings.Fields(text))
	if wordLimit > 0 {
		return fmt.Sprintf("%d/%d words, %s", words, wordLimit, FormatElapsed(elapsed))
	}
	return fmt.Sprintf("%d words, %s", words, FormatElapsed(elapsed))
}
