package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/fpang/image-story/internal/stageerr"
	"github.com/rs/zerolog/log"
)

// formPage is the data rendered by index.html.
type formPage struct {
	Theme        string
	WordLimit    int
	MinWordLimit int
	MaxWordLimit int
	Error        string
	Caption      string
	Story        string
	Live         bool
}

func (s *Server) newFormPage() formPage {
	return formPage{
		Theme:        DefaultTheme,
		WordLimit:    DefaultWordLimit,
		MinWordLimit: MinWordLimit,
		MaxWordLimit: MaxWordLimit,
		Live:         !s.syncOnly,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, name string, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render page")
	}
}

// GET /
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "index.html", http.StatusOK, s.newFormPage())
}

// GET /live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "live.html", http.StatusOK, s.newFormPage())
}

// POST / runs every stage before responding.
func (s *Server) handleFormRun(w http.ResponseWriter, r *http.Request) {
	page := s.newFormPage()

	req, err := s.parseRunForm(w, r)
	if err != nil {
		page.Error = formError(err)
		s.renderPage(w, "index.html", formStatus(err), page)
		return
	}
	page.Theme, page.WordLimit = req.Theme, req.WordLimit

	out, err := s.execute(r.Context(), req, noProgress{})
	if err != nil {
		log.Warn().Err(err).Str("filename", req.Filename).Msg("Form run failed")
		page.Error = userMessage(err)
		s.renderPage(w, "index.html", statusForError(err), page)
		return
	}
	page.Caption = out.Caption.Text
	page.Story = out.Story.Text
	s.renderPage(w, "index.html", http.StatusOK, page)
}

func formError(err error) string {
	var bad badRequestError
	if errors.As(err, &bad) {
		return bad.Error()
	}
	return userMessage(err)
}

func formStatus(err error) int {
	var bad badRequestError
	if errors.As(err, &bad) {
		return http.StatusBadRequest
	}
	return statusForError(err)
}

// POST /api/runs starts a run in the background and returns its ID.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRunForm(w, r)
	if err != nil {
		var bad badRequestError
		if errors.As(err, &bad) {
			httpError(w, http.StatusBadRequest, bad.Error())
			return
		}
		respondStageError(w, err)
		return
	}

	job := s.runs.New(req.Filename, req.Theme, req.WordLimit, stageIngest, stageCaption, stageStory)

	go func() {
		out, err := s.execute(context.Background(), req, job)
		if err != nil {
			log.Warn().Err(err).Str("run", job.ID()).Msg("Run failed")
			job.Fail(stageerr.KindOf(err).String(), userMessage(err))
			return
		}
		job.Complete(out.Story.Text)
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID()})
}

// GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		httpError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// GET /api/health reports liveness and how many async runs are held.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "runs": s.runs.Len()})
}
