package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects a binary's identity, configuration and feature
// flags, then emits a single structured event summarising how it started.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	initDuration time.Duration

	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the named binary
// (e.g. "story-web", "story-lambda").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp baked into the binary at build time.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// Feature registers a boolean feature flag (e.g. "s3Mirror").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
// Credentials must never be passed here.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long start-up took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	s.event(log.Info()).Msg("Startup complete")
}

func (s *StartupLogger) event(evt *zerolog.Event) *zerolog.Event {
	binDict := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("STORY_LOG_LEVEL"))

	if s.commitHash != "" {
		binDict = binDict.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		binDict = binDict.Str("buildTime", s.buildTime)
	}
	// Lambda identity, when running there.
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		binDict = binDict.
			Str("functionName", fn).
			Str("functionVersion", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
			Str("region", os.Getenv("AWS_REGION"))
	}
	evt = evt.Dict("binary", binDict)

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		d := zerolog.Dict()
		for k, v := range s.config {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	return evt
}
