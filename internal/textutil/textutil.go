// Package textutil cleans up free text returned by generative models.
package textutil

import "strings"

// StripMarkdownFences removes ```lang ... ``` or ``` ... ``` wrapping from
// text. The original text is returned when it is not fenced.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// StripEcho returns the text after the last occurrence of delimiter. Models
// that echo their prompt repeat the delimiter the prompt ends with; text
// without it is returned unchanged. An empty delimiter disables stripping.
func StripEcho(text, delimiter string) string {
	if delimiter == "" {
		return text
	}
	if i := strings.LastIndex(text, delimiter); i >= 0 {
		return text[i+len(delimiter):]
	}
	return text
}

// CleanStory strips an echoed prompt and any code fence from a generated
// story and trims surrounding whitespace.
func CleanStory(text, delimiter string) string {
	return StripMarkdownFences(StripEcho(text, delimiter))
}

// Truncate shortens s to at most maxRunes runes, appending "..." when cut.
func Truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
