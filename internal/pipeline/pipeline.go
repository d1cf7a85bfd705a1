// Package pipeline runs the fixed ingest -> caption -> story sequence.
//
// Every entry point loads the settings and params documents fresh, so a
// front-end never holds a stale configuration. Stages may be run alone given
// the previous stage's artifact, which lets a failed run resume.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/fpang/image-story/internal/captioning"
	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/s3util"
	"github.com/fpang/image-story/internal/story"
	"github.com/rs/zerolog/log"
)

// Artifact stage names, used as object key segments when mirroring.
const (
	StageIngest  = "ingested"
	StageCaption = "captions"
	StageStory   = "stories"
)

// Publisher mirrors a local artifact somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, stage, localPath string) (string, error)
}

// Options configures a Pipeline. Zero-valued factories use the real
// providers and the S3 publisher.
type Options struct {
	SettingsPath string
	ParamsPath   string
	HTTPClient   *http.Client
	// Metrics receives one EMF record per finished stage when set.
	Metrics io.Writer

	NewCaptioner   func(ctx context.Context, svc config.Service, seed int, hc *http.Client) (chat.Captioner, error)
	NewStoryteller func(ctx context.Context, svc config.Service, hc *http.Client) (chat.Storyteller, error)
	NewPublisher   func(ctx context.Context, cfg config.ArtifactConfig) (Publisher, error)
}

// Pipeline is safe for concurrent use; runs share nothing but the options.
type Pipeline struct {
	opts Options
}

// New returns a Pipeline for opts.
func New(opts Options) *Pipeline {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.NewCaptioner == nil {
		opts.NewCaptioner = chat.NewCaptioner
	}
	if opts.NewStoryteller == nil {
		opts.NewStoryteller = chat.NewStoryteller
	}
	if opts.NewPublisher == nil {
		opts.NewPublisher = func(ctx context.Context, cfg config.ArtifactConfig) (Publisher, error) {
			return s3util.NewPublisher(ctx, cfg)
		}
	}
	return &Pipeline{opts: opts}
}

// LoadConfig reads both documents.
func (p *Pipeline) LoadConfig() (*config.Config, error) {
	return config.Load(p.opts.SettingsPath, p.opts.ParamsPath)
}

// Result is the outcome of a full run.
type Result struct {
	Image    *filehandler.IngestedImage
	Caption  *captioning.Caption
	Story    *story.Story
	Duration time.Duration
	// Published maps stage name to object key when mirroring is enabled.
	Published map[string]string
}

// Ingest validates and normalizes the raw image at rawPath.
func (p *Pipeline) Ingest(ctx context.Context, rawPath string) (*filehandler.IngestedImage, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	r := &run{p: p, cfg: cfg}
	return r.ingest(ctx, func(in *filehandler.Ingester) (*filehandler.IngestedImage, error) {
		return in.Ingest(ctx, rawPath)
	})
}

// IngestUpload stores an uploaded image under the raw directory and ingests it.
func (p *Pipeline) IngestUpload(ctx context.Context, filename string, body io.Reader) (*filehandler.IngestedImage, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	r := &run{p: p, cfg: cfg}
	return r.ingest(ctx, func(in *filehandler.Ingester) (*filehandler.IngestedImage, error) {
		return in.IngestReader(ctx, filename, body)
	})
}

// Caption captions the normalized image at ingestedPath.
func (p *Pipeline) Caption(ctx context.Context, ingestedPath string) (*captioning.Caption, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	return (&run{p: p, cfg: cfg}).caption(ctx, ingestedPath)
}

// Generate writes a story from the caption at captionPath.
func (p *Pipeline) Generate(ctx context.Context, captionPath, theme string, wordLimit int) (*story.Story, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	return (&run{p: p, cfg: cfg}).generate(ctx, captionPath, theme, wordLimit)
}

// Run executes all three stages on the raw image at rawPath.
func (p *Pipeline) Run(ctx context.Context, rawPath, theme string, wordLimit int) (*Result, error) {
	return p.runAll(ctx, theme, wordLimit, func(in *filehandler.Ingester) (*filehandler.IngestedImage, error) {
		return in.Ingest(ctx, rawPath)
	})
}

// RunUpload executes all three stages on an uploaded image.
func (p *Pipeline) RunUpload(ctx context.Context, filename string, body io.Reader, theme string, wordLimit int) (*Result, error) {
	return p.runAll(ctx, theme, wordLimit, func(in *filehandler.Ingester) (*filehandler.IngestedImage, error) {
		return in.IngestReader(ctx, filename, body)
	})
}

func (p *Pipeline) runAll(ctx context.Context, theme string, wordLimit int, ingest func(*filehandler.Ingester) (*filehandler.IngestedImage, error)) (*Result, error) {
	cfg, err := p.LoadConfig()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	r := &run{p: p, cfg: cfg, published: map[string]string{}}

	img, err := r.ingest(ctx, ingest)
	if err != nil {
		return nil, err
	}
	capt, err := r.caption(ctx, img.Path)
	if err != nil {
		return nil, err
	}
	st, err := r.generate(ctx, capt.Path, theme, wordLimit)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Image:     img,
		Caption:   capt,
		Story:     st,
		Duration:  time.Since(start),
		Published: r.published,
	}
	log.Info().
		Str("image", img.SourceName).
		Str("story_path", st.Path).
		Dur("duration", res.Duration).
		Msg("Pipeline run complete")
	return res, nil
}
