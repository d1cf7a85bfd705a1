// Package captioning turns a normalized image into caption text with a
// vision-language inference service and persists it next to its siblings.
package captioning

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/fpang/image-story/internal/textutil"
	"github.com/rs/zerolog/log"
)

// Caption is a persisted caption artifact.
type Caption struct {
	Text string
	// ImageStem is the join key shared with the image and the story.
	ImageStem string
	// Path is <captions dir>/<stem>_caption.txt.
	Path string
	// Provider names the service that produced the text.
	Provider string
}

// Stage runs the captioning stage against one CaptioningConfig.
type Stage struct {
	cfg       config.CaptioningConfig
	captioner chat.Captioner
	policy    chat.CallPolicy
}

// NewStage returns a Stage that captions with captioner.
func NewStage(cfg config.CaptioningConfig, captioner chat.Captioner) *Stage {
	return &Stage{
		cfg:       cfg,
		captioner: captioner,
		policy:    chat.DefaultCallPolicy(cfg.Service.Timeout),
	}
}

// WithCallPolicy overrides the timeout and retry policy.
func (s *Stage) WithCallPolicy(p chat.CallPolicy) *Stage {
	s.policy = p
	return s
}

// Caption describes the image at imagePath and writes the caption file.
// A bare filename is looked up in the ingested directory.
//
// A missing image is ArtifactNotFound. A failed call, a rejection, or a
// reply with no usable text is a Captioning error and nothing is written.
func (s *Stage) Caption(ctx context.Context, imagePath string) (*Caption, error) {
	imagePath = filehandler.ResolveArtifact(s.cfg.IngestedDir, imagePath)
	data, err := os.ReadFile(imagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stageerr.New(stageerr.KindArtifactNotFound, imagePath, "ingested image not found", err)
		}
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	req := chat.CaptionRequest{
		TaskPrompt:   s.cfg.TaskPrompt,
		Image:        data,
		MIMEType:     filehandler.GetMIMEType(imagePath, data),
		MaxNewTokens: s.cfg.MaxNewTokens,
		NumBeams:     s.cfg.NumBeams,
	}

	start := time.Now()
	res, err := chat.Invoke(ctx, s.policy, "caption", func(ctx context.Context) (chat.Result, error) {
		return s.captioner.Caption(ctx, req)
	})
	if err != nil {
		return nil, stageerr.New(stageerr.KindCaptioning, imagePath, "caption service call failed", err)
	}
	if res.Err != nil {
		return nil, stageerr.New(stageerr.KindCaptioning, imagePath, "caption service rejected the request", res.Err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, stageerr.New(stageerr.KindCaptioning, imagePath,
			fmt.Sprintf("no caption returned for task %s", s.cfg.TaskPrompt), nil)
	}

	out := filehandler.CaptionPath(s.cfg.CaptionsDir, imagePath)
	if err := filehandler.WriteFileAtomic(out, []byte(text), 0o644); err != nil {
		return nil, err
	}

	log.Info().
		Str("image", imagePath).
		Str("path", out).
		Str("provider", s.captioner.Name()).
		Str("caption", textutil.Truncate(text, 80)).
		Dur("duration", time.Since(start)).
		Msg("Caption written")

	return &Caption{
		Text:      text,
		ImageStem: filehandler.Stem(imagePath),
		Path:      out,
		Provider:  s.captioner.Name(),
	}, nil
}
