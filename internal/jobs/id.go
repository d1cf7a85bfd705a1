package jobs

import (
	"strings"

	"github.com/google/uuid"
)

// RunPrefix prefixes every run ID handed out by the web front-end.
const RunPrefix = "run-"

// GenerateID creates a new random job ID with the given prefix.
// The prefix should include a trailing dash, e.g. "run-".
func GenerateID(prefix string) string {
	return prefix + uuid.NewString()
}

// NormalizeID accepts an ID with or without its prefix and returns the
// prefixed form. Anything that is not prefix+UUID yields ok=false.
func NormalizeID(id, prefix string) (string, bool) {
	raw := strings.TrimPrefix(id, prefix)
	if _, err := uuid.Parse(raw); err != nil {
		return "", false
	}
	return prefix + raw, true
}
