package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// STORY_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// STORY_LOG_FORMAT=json switches from console output to JSON lines.
func Init() {
	InitWithFormat(os.Getenv("STORY_LOG_FORMAT"))
}

// InitWithFormat is Init with an explicit output format. Lambda handlers
// pass "json" so CloudWatch receives one object per line.
func InitWithFormat(format string) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("STORY_LOG_LEVEL")))

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
