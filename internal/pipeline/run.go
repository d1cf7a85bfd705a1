package pipeline

import (
	"context"
	"time"

	"github.com/fpang/image-story/internal/captioning"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/metrics"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/fpang/image-story/internal/story"
	"github.com/rs/zerolog/log"
)

// run carries one resolved configuration through one or more stages.
type run struct {
	p         *Pipeline
	cfg       *config.Config
	publisher Publisher
	published map[string]string
}

func (r *run) ingest(ctx context.Context, fn func(*filehandler.Ingester) (*filehandler.IngestedImage, error)) (*filehandler.IngestedImage, error) {
	done := r.stageStart("ingest")
	img, err := fn(filehandler.NewIngester(r.cfg.Ingestion()))
	done(err)
	if err != nil {
		return nil, err
	}
	if err := r.publish(ctx, StageIngest, img.Path); err != nil {
		return nil, err
	}
	return img, nil
}

func (r *run) caption(ctx context.Context, ingestedPath string) (*captioning.Caption, error) {
	cc := r.cfg.Captioning()
	captioner, err := r.p.opts.NewCaptioner(ctx, cc.Service, cc.Seed, r.p.opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	done := r.stageStart("caption")
	capt, err := captioning.NewStage(cc, captioner).Caption(ctx, ingestedPath)
	done(err)
	if err != nil {
		return nil, err
	}
	if err := r.publish(ctx, StageCaption, capt.Path); err != nil {
		return nil, err
	}
	return capt, nil
}

func (r *run) generate(ctx context.Context, captionPath, theme string, wordLimit int) (*story.Story, error) {
	sc := r.cfg.Story()
	teller, err := r.p.opts.NewStoryteller(ctx, sc.Service, r.p.opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	stage, err := story.NewStage(sc, teller)
	if err != nil {
		return nil, err
	}

	done := r.stageStart("story")
	st, err := stage.Generate(ctx, captionPath, theme, wordLimit)
	done(err)
	if err != nil {
		return nil, err
	}
	if err := r.publish(ctx, StageStory, st.Path); err != nil {
		return nil, err
	}
	return st, nil
}

// publish mirrors localPath when an artifact store is configured. The
// publisher is created on first use.
func (r *run) publish(ctx context.Context, stage, localPath string) error {
	ac := r.cfg.Artifacts()
	if !ac.Enabled() {
		return nil
	}
	if r.publisher == nil {
		pub, err := r.p.opts.NewPublisher(ctx, ac)
		if err != nil {
			return err
		}
		r.publisher = pub
	}
	key, err := r.publisher.Publish(ctx, stage, localPath)
	if err != nil {
		return err
	}
	if r.published != nil {
		r.published[stage] = key
	}
	return nil
}

// stageStart logs the start of a stage and returns a func that logs its end
// and emits its metrics.
func (r *run) stageStart(name string) func(error) {
	start := time.Now()
	log.Info().Str("stage", name).Msg("Stage started")
	return func(err error) {
		elapsed := time.Since(start)
		evt := log.Info()
		if err != nil {
			evt = log.Warn().Err(err).Str("kind", stageerr.KindOf(err).String())
		}
		evt.Str("stage", name).Dur("duration", elapsed).Msg("Stage finished")

		if r.p.opts.Metrics == nil {
			return
		}
		rec := metrics.New(metrics.Namespace).
			Dimension("Stage", name).
			Duration("DurationMs", elapsed).
			Count("Invocations")
		if err != nil {
			rec.Count("Failures").Property("kind", stageerr.KindOf(err).String())
		}
		if _, werr := rec.WriteTo(r.p.opts.Metrics); werr != nil {
			log.Warn().Err(werr).Msg("Failed to write stage metrics")
		}
	}
}
