// Package web serves the two front-ends over the pipeline: a form page that
// runs all three stages in one request, and a JSON run API polled by the
// reactive page.
package web

import (
	"context"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/fpang/image-story/internal/captioning"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/filehandler"
	"github.com/fpang/image-story/internal/jobs"
	"github.com/fpang/image-story/internal/story"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/semaphore"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Form defaults and bounds.
const (
	MinWordLimit     = config.MinWordLimit
	MaxWordLimit     = config.MaxWordLimit
	DefaultWordLimit = config.DefaultWordLimit
	DefaultTheme     = config.DefaultTheme
)

// Runner is the slice of the pipeline the front-ends call.
type Runner interface {
	IngestUpload(ctx context.Context, filename string, body io.Reader) (*filehandler.IngestedImage, error)
	Caption(ctx context.Context, ingestedPath string) (*captioning.Caption, error)
	Generate(ctx context.Context, captionPath, theme string, wordLimit int) (*story.Story, error)
}

// Options configures a Server.
type Options struct {
	Pipeline Runner
	// MaxConcurrent bounds pipeline runs in flight across both front-ends.
	MaxConcurrent int
	// MaxUploadBytes caps the request body. The configured max_file_size
	// is still enforced by ingestion.
	MaxUploadBytes int64
	// UniqueUploads renames each upload so concurrent runs of files with
	// the same name do not overwrite each other's artifacts.
	UniqueUploads bool
	// RunRetention is how long finished async runs stay queryable.
	RunRetention time.Duration
	// SyncOnly serves only the form page. The run API and the live page
	// need the process to outlive the response, which Lambda does not
	// guarantee.
	SyncOnly bool
}

// Server holds the handlers and shared run state.
type Server struct {
	pipe          Runner
	sem           *semaphore.Weighted
	runs          *jobs.Store
	pages         *template.Template
	maxUpload     int64
	uniqueUploads bool
	syncOnly      bool
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if opts.RunRetention <= 0 {
		opts.RunRetention = time.Hour
	}
	return &Server{
		pipe:          opts.Pipeline,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		runs:          jobs.NewStore(opts.RunRetention),
		pages:         template.Must(template.ParseFS(templateFS, "templates/*.html")),
		maxUpload:     opts.MaxUploadBytes,
		uniqueUploads: opts.UniqueUploads,
		syncOnly:      opts.SyncOnly,
	}
}

// Handler returns the full handler chain: routes, security headers,
// request logging and gzip.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleForm)
	mux.HandleFunc("POST /{$}", s.handleFormRun)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.syncOnly {
		mux.Handle("GET /live", http.RedirectHandler("/", http.StatusSeeOther))
	} else {
		mux.HandleFunc("GET /live", s.handleLive)
		mux.HandleFunc("POST /api/runs", s.handleStartRun)
		mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	}

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	return gzhttp.GzipHandler(withLogging(withSecurityHeaders(mux)))
}
