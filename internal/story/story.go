// Package story expands a caption into a themed story with a language-model
// inference service.
package story

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/fpang/image-story/internal/assets"
	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/fpang/image-story/internal/textutil"
	"github.com/rs/zerolog/log"
)

// Story is a persisted story artifact.
type Story struct {
	Text      string
	Theme     string
	WordLimit int
	// CaptionPath is the caption the story was generated from.
	CaptionPath string
	// Path is <stories dir>/<stem>_story.txt.
	Path     string
	Provider string
}

// Stage runs the story stage against one StoryConfig.
type Stage struct {
	cfg    config.StoryConfig
	teller chat.Storyteller
	policy chat.CallPolicy
	tmpl   *template.Template
}

// NewStage returns a Stage that generates with teller. A malformed prompt
// template in cfg is a Configuration error.
func NewStage(cfg config.StoryConfig, teller chat.Storyteller) (*Stage, error) {
	tmpl, err := assets.ParseStoryPrompt(cfg.PromptTemplate)
	if err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, "", "invalid story_prompt_template", err)
	}
	return &Stage{
		cfg:    cfg,
		teller: teller,
		policy: chat.DefaultCallPolicy(cfg.Service.Timeout),
		tmpl:   tmpl,
	}, nil
}

// WithCallPolicy overrides the timeout and retry policy.
func (s *Stage) WithCallPolicy(p chat.CallPolicy) *Stage {
	s.policy = p
	return s
}

// BuildPrompt renders the prompt for caption. An empty theme or a
// non-positive word limit takes the configured default.
func (s *Stage) BuildPrompt(caption, theme string, wordLimit int) (string, error) {
	theme, wordLimit = s.defaults(theme, wordLimit)
	return assets.RenderStoryPrompt(s.tmpl, assets.StoryPromptData{
		Caption:   caption,
		Theme:     theme,
		WordLimit: wordLimit,
	})
}

func (s *Stage) defaults(theme string, wordLimit int) (string, int) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = s.cfg.DefaultTheme
	}
	if wordLimit <= 0 {
		wordLimit = s.cfg.DefaultWordLimit
	}
	return theme, wordLimit
}

// Generate reads the caption at captionPath, asks the service for a story,
// strips any echoed prompt and writes the story file. A bare filename is
// looked up in the captions directory.
//
// A missing or blank caption is ArtifactNotFound. A failed call, a
// rejection, or a reply that is empty once cleaned is a StoryGeneration
// error. Nothing is written on failure.
func (s *Stage) Generate(ctx context.Context, captionPath, theme string, wordLimit int) (*Story, error) {
	captionPath = filehandler.ResolveArtifact(s.cfg.CaptionsDir, captionPath)
	data, err := os.ReadFile(captionPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stageerr.New(stageerr.KindArtifactNotFound, captionPath, "caption not found", err)
		}
		return nil, fmt.Errorf("failed to read caption: %w", err)
	}
	caption := strings.TrimSpace(string(data))
	if caption == "" {
		return nil, stageerr.New(stageerr.KindArtifactNotFound, captionPath, "caption is empty", nil)
	}

	theme, wordLimit = s.defaults(theme, wordLimit)
	prompt, err := s.BuildPrompt(caption, theme, wordLimit)
	if err != nil {
		return nil, stageerr.New(stageerr.KindConfiguration, captionPath, "cannot build story prompt", err)
	}

	req := chat.StoryRequest{
		Prompt:            prompt,
		MaxTokens:         s.cfg.MaxTokens,
		Temperature:       s.cfg.Temperature,
		TopP:              s.cfg.TopP,
		RepetitionPenalty: s.cfg.RepetitionPenalty,
	}

	log.Debug().
		Str("caption_path", captionPath).
		Str("theme", theme).
		Int("word_limit", wordLimit).
		Int("prompt_length", len(prompt)).
		Msg("Generating story")

	start := time.Now()
	res, err := chat.Invoke(ctx, s.policy, "story", func(ctx context.Context) (chat.Result, error) {
		return s.teller.Generate(ctx, req)
	})
	if err != nil {
		return nil, stageerr.New(stageerr.KindStoryGeneration, captionPath, "story service call failed", err)
	}
	if res.Err != nil {
		return nil, stageerr.New(stageerr.KindStoryGeneration, captionPath, "story service rejected the request", res.Err)
	}

	text := textutil.CleanStory(res.Text, s.cfg.EchoDelimiter)
	if text == "" {
		return nil, stageerr.New(stageerr.KindStoryGeneration, captionPath, "story service returned no story text", nil)
	}

	out := filehandler.StoryPath(s.cfg.StoriesDir, captionPath)
	if err := filehandler.WriteFileAtomic(out, []byte(text), 0o644); err != nil {
		return nil, err
	}

	log.Info().
		Str("caption_path", captionPath).
		Str("path", out).
		Str("provider", s.teller.Name()).
		Str("theme", theme).
		Int("word_limit", wordLimit).
		Int("words", len(strings.Fields(text))).
		Dur("duration", time.Since(start)).
		Msg("Story written")

	return &Story{
		Text:        text,
		Theme:       theme,
		WordLimit:   wordLimit,
		CaptionPath: captionPath,
		Path:        out,
		Provider:    s.teller.Name(),
	}, nil
}
