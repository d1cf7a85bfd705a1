package main

import (
	"context"
	"fmt"

	"github.com/fpang/image-story/internal/cli"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

type ingestInput struct {
	Path string `json:"path" jsonschema:"absolute path of the raw image"`
}

type ingestOutput struct {
	IngestedPath string `json:"ingested_path"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type captionInput struct {
	IngestedPath string `json:"ingested_path" jsonschema:"path returned by ingest_image"`
}

type captionOutput struct {
	Caption     string `json:"caption"`
	CaptionPath string `json:"caption_path"`
}

type storyInput struct {
	CaptionPath string `json:"caption_path" jsonschema:"path returned by caption_image"`
	Theme       string `json:"theme,omitempty" jsonschema:"story theme or genre, default adventure"`
	WordLimit   int    `json:"word_limit,omitempty" jsonschema:"approximate length in words, 100 to 1000, default 400"`
}

type storyOutput struct {
	Story     string `json:"story"`
	StoryPath string `json:"story_path"`
	Theme     string `json:"theme"`
	WordLimit int    `json:"word_limit"`
}

type runInput struct {
	Path      string `json:"path" jsonschema:"absolute path of the raw image"`
	Theme     string `json:"theme,omitempty" jsonschema:"story theme or genre, default adventure"`
	WordLimit int    `json:"word_limit,omitempty" jsonschema:"approximate length in words, 100 to 1000, default 400"`
}

type runOutput struct {
	IngestedPath string            `json:"ingested_path"`
	Caption      string            `json:"caption"`
	CaptionPath  string            `json:"caption_path"`
	Story        string            `json:"story"`
	StoryPath    string            `json:"story_path"`
	DurationMS   int64             `json:"duration_ms"`
	Published    map[string]string `json:"published,omitempty"`
}

// tools binds the MCP handlers to one pipeline.
type tools struct {
	p *pipeline.Pipeline
}

func newServer(p *pipeline.Pipeline) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "image-story", Version: commitHash}, nil)
	t := &tools{p: p}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_image",
		Description: "Validate a raw image, shrink it to the configured bounds and store the normalized copy.",
	}, t.ingest)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "caption_image",
		Description: "Describe an ingested image and save the caption next to the other captions.",
	}, t.caption)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_story",
		Description: "Expand a saved caption into a short story.",
	}, t.generate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_pipeline",
		Description: "Ingest, caption and write a story for a raw image in one call.",
	}, t.run)

	return server
}

func (t *tools) ingest(ctx context.Context, req *mcp.CallToolRequest, in ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	img, err := t.p.Ingest(ctx, in.Path)
	if err != nil {
		return nil, ingestOutput{}, toolError("ingest_image", err)
	}
	return nil, ingestOutput{IngestedPath: img.Path, Width: img.Width, Height: img.Height}, nil
}

func (t *tools) caption(ctx context.Context, req *mcp.CallToolRequest, in captionInput) (*mcp.CallToolResult, captionOutput, error) {
	capt, err := t.p.Caption(ctx, in.IngestedPath)
	if err != nil {
		return nil, captionOutput{}, toolError("caption_image", err)
	}
	return nil, captionOutput{Caption: capt.Text, CaptionPath: capt.Path}, nil
}

func (t *tools) generate(ctx context.Context, req *mcp.CallToolRequest, in storyInput) (*mcp.CallToolResult, storyOutput, error) {
	if err := checkWordLimit(in.WordLimit); err != nil {
		return nil, storyOutput{}, err
	}
	st, err := t.p.Generate(ctx, in.CaptionPath, in.Theme, in.WordLimit)
	if err != nil {
		return nil, storyOutput{}, toolError("generate_story", err)
	}
	return nil, storyOutput{Story: st.Text, StoryPath: st.Path, Theme: st.Theme, WordLimit: st.WordLimit}, nil
}

func (t *tools) run(ctx context.Context, req *mcp.CallToolRequest, in runInput) (*mcp.CallToolResult, runOutput, error) {
	if err := checkWordLimit(in.WordLimit); err != nil {
		return nil, runOutput{}, err
	}
	res, err := t.p.Run(ctx, in.Path, in.Theme, in.WordLimit)
	if err != nil {
		return nil, runOutput{}, toolError("run_pipeline", err)
	}
	return nil, runOutput{
		IngestedPath: res.Image.Path,
		Caption:      res.Caption.Text,
		CaptionPath:  res.Caption.Path,
		Story:        res.Story.Text,
		StoryPath:    res.Story.Path,
		DurationMS:   res.Duration.Milliseconds(),
		Published:    res.Published,
	}, nil
}

// checkWordLimit allows zero, which selects the configured default.
func checkWordLimit(n int) error {
	if n == 0 {
		return nil
	}
	return cli.ValidateWordLimit(n)
}

// toolError logs err and returns it with its kind so the calling agent can
// tell a bad path from a failed service.
func toolError(tool string, err error) error {
	kind := stageerr.KindOf(err).String()
	log.Warn().Err(err).Str("tool", tool).Str("kind", kind).Msg("Tool call failed")
	return fmt.Errorf("%s: %s: %w", kind, cli.StageErrorMessage(err), err)
}
