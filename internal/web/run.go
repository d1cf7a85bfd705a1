package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fpang/image-story/internal/captioning"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/story"
	"github.com/rs/zerolog/log"
)

// Stage names reported to the reactive page.
const (
	stageIngest  = "ingest"
	stageCaption = "caption"
	stageStory   = "story"
)

// runRequest is a validated upload.
type runRequest struct {
	Filename  string
	Image     []byte
	Theme     string
	WordLimit int
}

// badRequestError is a form problem the user must fix. Its text is shown
// as-is.
type badRequestError string

func (e badRequestError) Error() string { return string(e) }

// parseRunForm reads the multipart fields image, theme and word_limit.
func (s *Server) parseRunForm(w http.ResponseWriter, r *http.Request) (*runRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, badRequestError("invalid multipart form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, badRequestError("no image uploaded")
	}
	defer file.Close()

	data, err := readUpload(file)
	if err != nil {
		return nil, err
	}

	theme := strings.TrimSpace(r.FormValue("theme"))
	if theme == "" {
		theme = DefaultTheme
	}
	wordLimit, err := parseWordLimit(r.FormValue("word_limit"))
	if err != nil {
		return nil, err
	}

	filename := header.Filename
	if s.uniqueUploads {
		filename = filehandler.UniqueFilename(filename)
	}
	return &runRequest{Filename: filename, Image: data, Theme: theme, WordLimit: wordLimit}, nil
}

func readUpload(file multipart.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return buf.Bytes(), nil
}

// parseWordLimit accepts an empty value (default) or an integer within
// [MinWordLimit, MaxWordLimit].
func parseWordLimit(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultWordLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequestError("word_limit must be a whole number")
	}
	if n < MinWordLimit || n > MaxWordLimit {
		return 0, badRequestError(fmt.Sprintf("word_limit must be between %d and %d", MinWordLimit, MaxWordLimit))
	}
	return n, nil
}

// progress receives stage transitions.
type progress interface {
	StartStage(name string)
	FinishStage(name, artifact string)
	SetCaption(text string)
}

type noProgress struct{}

func (noProgress) StartStage(string)          {}
func (noProgress) FinishStage(string, string) {}
func (noProgress) SetCaption(string)          {}

// runOutput is everything a finished run produced.
type runOutput struct {
	Image   *filehandler.IngestedImage
	Caption *captioning.Caption
	Story   *story.Story
}

// execute runs the three stages in order under the concurrency limit.
func (s *Server) execute(ctx context.Context, req *runRequest, p progress) (*runOutput, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	p.StartStage(stageIngest)
	img, err := s.pipe.IngestUpload(ctx, req.Filename, bytes.NewReader(req.Image))
	if err != nil {
		return nil, err
	}
	p.FinishStage(stageIngest, img.Path)

	p.StartStage(stageCaption)
	capt, err := s.pipe.Caption(ctx, img.Path)
	if err != nil {
		return nil, err
	}
	p.SetCaption(capt.Text)
	p.FinishStage(stageCaption, capt.Path)

	p.StartStage(stageStory)
	st, err := s.pipe.Generate(ctx, capt.Path, req.Theme, req.WordLimit)
	if err != nil {
		return nil, err
	}
	p.FinishStage(stageStory, st.Path)

	log.Info().
		Str("filename", req.Filename).
		Str("theme", req.Theme).
		Int("word_limit", req.WordLimit).
		Str("story_path", st.Path).
		Msg("Web run complete")

	return &runOutput{Image: img, Caption: capt, Story: st}, nil
}
