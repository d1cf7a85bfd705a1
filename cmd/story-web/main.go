package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/image-story/internal/logging"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/fpang/image-story/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	portFlag          int
	settingsFlag      string
	paramsFlag        string
	maxConcurrentFlag int
	uniqueUploadsFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "story-web",
	Short: "Web UI that turns an uploaded image into a short story",
	Long: `Story Web serves two pages over the same pipeline: a plain form that
returns the caption and story in one response, and a live page that shows
each stage as it finishes.

The settings and params documents are re-read on every run, so edits take
effect without a restart.

Examples:
  story-web
  story-web --port 9090
  story-web --settings config/config.yaml --params params.yaml --max-concurrent 2`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&settingsFlag, "settings", logging.EnvOrDefault("STORY_SETTINGS", "config/config.yaml"), "Settings document (env STORY_SETTINGS)")
	rootCmd.Flags().StringVar(&paramsFlag, "params", logging.EnvOrDefault("STORY_PARAMS", "params.yaml"), "Params document (env STORY_PARAMS)")
	rootCmd.Flags().IntVar(&maxConcurrentFlag, "max-concurrent", 4, "Maximum pipeline runs in flight")
	rootCmd.Flags().BoolVar(&uniqueUploadsFlag, "unique-uploads", false, "Rename uploads so same-named files never share artifacts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	pipe := pipeline.New(pipeline.Options{
		SettingsPath: settingsFlag,
		ParamsPath:   paramsFlag,
		HTTPClient:   &http.Client{},
	})

	// Refuse to start on a broken configuration. Runs reload it anyway.
	cfg, err := pipe.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	srv := web.New(web.Options{
		Pipeline:      pipe,
		MaxConcurrent: maxConcurrentFlag,
		UniqueUploads: uniqueUploadsFlag,
	})

	addr := fmt.Sprintf(":%d", portFlag)
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv.Handler(),
		ReadTimeout: 60 * time.Second,
		// The form page answers only after both inference calls return.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("story-web").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("addr", addr).
		Config("settings", settingsFlag).
		Config("params", paramsFlag).
		Config("captionProvider", cfg.Captioning().Service.Provider).
		Config("storyProvider", cfg.Story().Service.Provider).
		Feature("s3Mirror", cfg.Artifacts().Enabled()).
		Feature("uniqueUploads", uniqueUploadsFlag).
		InitDuration(time.Since(start)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Image Story: http://localhost:%d\n\n", portFlag)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
