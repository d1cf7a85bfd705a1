// Package config resolves the settings and params documents into the
// immutable per-stage records the pipeline runs on.
//
// Two YAML files are read: the settings document (directories, limits,
// inference providers, credentials) and the params document (resize shape,
// decoding hyperparameters, prompt template). Credential fields may hold a
// ${VAR_NAME} placeholder resolved from the environment at load time.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fpang/image-story/internal/stageerr"
	"gopkg.in/yaml.v3"
)

// Word limits the front-ends accept.
const (
	MinWordLimit = 100
	MaxWordLimit = 1000
)

// Defaults applied when an optional key is absent.
const (
	DefaultJPEGQuality       = 85
	DefaultMaxPixels         = 89_478_485
	DefaultNumBeams          = 3
	DefaultRepetitionPenalty = 1.1
	DefaultTheme             = "adventure"
	DefaultWordLimit         = 400
	DefaultEchoDelimiter     = "Story:"
	DefaultCaptionTimeout    = 120 * time.Second
	DefaultStoryTimeout      = 180 * time.Second
)

// IngestionConfig drives the ingestion stage.
type IngestionConfig struct {
	RawDir            string
	IngestedDir       string
	AllowedExtensions []string
	MaxFileSize       int64
	MaxPixels         int64
	MaxWidth          int
	MaxHeight         int
	JPEGQuality       int
}

// Service identifies one remote inference backend.
type Service struct {
	Provider string
	Model    string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// CaptioningConfig drives the captioning stage.
type CaptioningConfig struct {
	IngestedDir  string
	CaptionsDir  string
	Service      Service
	Seed         int
	TaskPrompt   string
	MaxNewTokens int
	NumBeams     int
}

// StoryConfig drives the story stage.
type StoryConfig struct {
	CaptionsDir       string
	StoriesDir        string
	Service           Service
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	DefaultTheme      string
	DefaultWordLimit  int
	// PromptTemplate is a text/template source; empty selects the embedded default.
	PromptTemplate string
	EchoDelimiter  string
}

// ArtifactConfig configures the optional S3 mirror. An empty bucket disables it.
type ArtifactConfig struct {
	S3Bucket string
	S3Prefix string
	Region   string
}

// Enabled reports whether artifacts should be mirrored.
func (a ArtifactConfig) Enabled() bool {
	return a.S3Bucket != ""
}

// Config is a fully resolved configuration. Accessors return copies so no
// stage can mutate what another stage sees.
type Config struct {
	ingestion  IngestionConfig
	captioning CaptioningConfig
	story      StoryConfig
	artifacts  ArtifactConfig
}

// Ingestion returns the ingestion stage record.
func (c *Config) Ingestion() IngestionConfig {
	out := c.ingestion
	out.AllowedExtensions = slices.Clone(c.ingestion.AllowedExtensions)
	return out
}

// Captioning returns the captioning stage record.
func (c *Config) Captioning() CaptioningConfig { return c.captioning }

// Story returns the story stage record.
func (c *Config) Story() StoryConfig { return c.story }

// Artifacts returns the artifact mirror record.
func (c *Config) Artifacts() ArtifactConfig { return c.artifacts }

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Load reads both documents from disk and resolves placeholders against the
// process environment.
func Load(settingsPath, paramsPath string) (*Config, error) {
	settings, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, settingsPath, "cannot read settings document", err)
	}
	params, err := os.ReadFile(paramsPath)
	if err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, paramsPath, "cannot read params document", err)
	}
	return Parse(settings, params, os.LookupEnv)
}

// Parse builds a Config from raw document bytes. lookup resolves credential
// placeholders; nil means no variables are set.
func Parse(settings, params []byte, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	var sd settingsDocument
	if err := yaml.Unmarshal(settings, &sd); err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, "", "cannot parse settings document", err)
	}
	var pd paramsDocument
	if err := yaml.Unmarshal(params, &pd); err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, "", "cannot parse params document", err)
	}

	var missing missingKeys
	cfg := &Config{
		ingestion:  buildIngestion(&sd, &pd, &missing),
		captioning: buildCaptioning(&sd, &pd, lookup, &missing),
		story:      buildStory(&sd, &pd, lookup, &missing),
		artifacts: ArtifactConfig{
			S3Bucket: strings.TrimSpace(sd.ArtifactStore.S3Bucket),
			S3Prefix: strings.Trim(sd.ArtifactStore.S3Prefix, "/ "),
			Region:   strings.TrimSpace(sd.ArtifactStore.Region),
		},
	}
	if err := missing.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildIngestion(sd *settingsDocument, pd *paramsDocument, missing *missingKeys) IngestionConfig {
	in := sd.DataIngestion
	out := IngestionConfig{
		RawDir:      in.RawDataDir,
		IngestedDir: in.IngestedDataDir,
		MaxFileSize: in.MaxFileSize,
		MaxPixels:   DefaultMaxPixels,
		JPEGQuality: intOr(pd.DataIngestion.JPEGQuality, DefaultJPEGQuality),
	}
	for _, ext := range in.AllowedExtensions {
		if ext = strings.TrimSpace(ext); ext != "" {
			out.AllowedExtensions = append(out.AllowedExtensions, ext)
		}
	}

	missing.requireString("data_ingestion.raw_data_dir", out.RawDir)
	missing.requireString("data_ingestion.ingested_data_dir", out.IngestedDir)
	missing.require("data_ingestion.allowed_extensions", len(out.AllowedExtensions) > 0)
	missing.require("data_ingestion.max_file_size", out.MaxFileSize > 0)
	if in.MaxPixels != nil {
		out.MaxPixels = *in.MaxPixels
		missing.require("data_ingestion.max_pixels", out.MaxPixels > 0)
	}

	shape := pd.DataIngestion.ResizeShape
	if len(shape) == 2 && shape[0] > 0 && shape[1] > 0 {
		out.MaxWidth, out.MaxHeight = shape[0], shape[1]
	} else {
		missing.add("data_ingestion.resize_shape")
	}
	missing.require("data_ingestion.jpeg_quality", out.JPEGQuality >= 1 && out.JPEGQuality <= 100)
	return out
}

func buildCaptioning(sd *settingsDocument, pd *paramsDocument, lookup LookupFunc, missing *missingKeys) CaptioningConfig {
	ic := sd.ImageCaptioning
	p := pd.ImageCaptioning
	out := CaptioningConfig{
		IngestedDir:  ic.IngestedDataDir,
		CaptionsDir:  ic.CaptionsDir,
		Seed:         ic.Seed,
		TaskPrompt:   p.TaskPrompt,
		MaxNewTokens: intOr(p.MaxNewTokens, 0),
		NumBeams:     intOr(p.NumBeams, DefaultNumBeams),
	}
	if out.IngestedDir == "" {
		out.IngestedDir = sd.DataIngestion.IngestedDataDir
	}
	out.Service = buildService("image_captioning", ic.ServiceSettings, DefaultCaptionTimeout, lookup, missing)

	missing.requireString("image_captioning.captions_dir", out.CaptionsDir)
	missing.requireString("image_captioning.task_prompt", out.TaskPrompt)
	missing.require("image_captioning.max_new_tokens", out.MaxNewTokens > 0)
	missing.require("image_captioning.num_beams", out.NumBeams > 0)
	return out
}

func buildStory(sd *settingsDocument, pd *paramsDocument, lookup LookupFunc, missing *missingKeys) StoryConfig {
	sg := sd.StoryGeneration
	p := pd.StoryGeneration
	out := StoryConfig{
		CaptionsDir:       sg.CaptionsDir,
		StoriesDir:        sg.StoriesDir,
		MaxTokens:         intOr(p.MaxTokens, 0),
		Temperature:       floatOr(p.Temperature, 0),
		TopP:              floatOr(p.TopP, 0),
		RepetitionPenalty: floatOr(p.RepetitionPenalty, DefaultRepetitionPenalty),
		DefaultTheme:      strings.TrimSpace(p.DefaultTheme),
		DefaultWordLimit:  intOr(p.DefaultWordLimit, DefaultWordLimit),
		PromptTemplate:    p.StoryPromptTemplate,
		EchoDelimiter:     DefaultEchoDelimiter,
	}
	if p.EchoDelimiter != nil {
		out.EchoDelimiter = *p.EchoDelimiter
	}
	if out.CaptionsDir == "" {
		out.CaptionsDir = sd.ImageCaptioning.CaptionsDir
	}
	if out.DefaultTheme == "" {
		out.DefaultTheme = DefaultTheme
	}
	out.Service = buildService("story_generation", sg.ServiceSettings, DefaultStoryTimeout, lookup, missing)

	missing.requireString("story_generation.captions_dir", out.CaptionsDir)
	missing.requireString("story_generation.stories_dir", out.StoriesDir)
	missing.require("story_generation.max_tokens", out.MaxTokens > 0)
	missing.require("story_generation.temperature", out.Temperature > 0)
	missing.require("story_generation.top_p", out.TopP > 0 && out.TopP <= 1)
	missing.require("story_generation.repetition_penalty", out.RepetitionPenalty > 0)
	missing.require("story_generation.default_word_limit", out.DefaultWordLimit > 0)
	return out
}

func buildService(section string, s ServiceSettings, defaultTimeout time.Duration, lookup LookupFunc, missing *missingKeys) Service {
	out := Service{
		Provider: strings.ToLower(strings.TrimSpace(s.Provider)),
		Model:    strings.TrimSpace(s.ModelName),
		Endpoint: strings.TrimRight(strings.TrimSpace(s.Endpoint), "/"),
		APIKey:   ResolvePlaceholder(strings.TrimSpace(s.APIKey), lookup),
		Timeout:  defaultTimeout,
	}
	missing.requireString(section+".provider", out.Provider)
	missing.requireString(section+".model_name", out.Model)

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil || d <= 0 {
			missing.add(section + ".timeout")
		} else {
			out.Timeout = d
		}
	}
	return out
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// missingKeys accumulates absent or invalid keys so one error names all of them.
type missingKeys []string

func (m *missingKeys) add(key string) { *m = append(*m, key) }

func (m *missingKeys) require(key string, ok bool) {
	if !ok {
		m.add(key)
	}
}

func (m *missingKeys) requireString(key, v string) {
	m.require(key, strings.TrimSpace(v) != "")
}

func (m missingKeys) err() error {
	if len(m) == 0 {
		return nil
	}
	return stageerr.New(stageerr.KindConfiguration, "",
		fmt.Sprintf("missing or invalid keys: %s", strings.Join(m, ", ")), nil)
}
