// Package main serves the story web UI from AWS Lambda behind an API
// Gateway HTTP API.
//
// The settings and params documents ship with the function and are located
// through STORY_SETTINGS and STORY_PARAMS. Their directories must point
// under /tmp, and artifact_store should name a bucket so results outlive the
// execution environment. Stage metrics go to stdout as EMF records.
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/fpang/image-story/internal/logging"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/fpang/image-story/internal/web"
	"github.com/rs/zerolog/log"
)

var adapter *httpadapter.HandlerAdapterV2

func init() {
	start := time.Now()
	logging.InitWithFormat("json")

	settings := logging.EnvOrDefault("STORY_SETTINGS", "config/config.yaml")
	params := logging.EnvOrDefault("STORY_PARAMS", "params.yaml")
	maxConcurrent, err := strconv.Atoi(logging.EnvOrDefault("STORY_MAX_CONCURRENT", "2"))
	if err != nil || maxConcurrent < 1 {
		log.Fatal().Str("value", os.Getenv("STORY_MAX_CONCURRENT")).Msg("STORY_MAX_CONCURRENT must be a positive integer")
	}

	pipe := pipeline.New(pipeline.Options{
		SettingsPath: settings,
		ParamsPath:   params,
		HTTPClient:   &http.Client{},
		Metrics:      os.Stdout,
	})
	cfg, err := pipe.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Concurrent invocations share /tmp only within one environment, but a
	// warm environment reuses it, so uploads always get unique names here.
	srv := web.New(web.Options{
		Pipeline:      pipe,
		MaxConcurrent: maxConcurrent,
		UniqueUploads: true,
		SyncOnly:      true,
	})
	adapter = httpadapter.NewV2(srv.Handler())

	logging.NewStartupLogger("story-lambda").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("settings", settings).
		Config("params", params).
		Config("captionProvider", cfg.Captioning().Service.Provider).
		Config("storyProvider", cfg.Story().Service.Provider).
		Feature("s3Mirror", cfg.Artifacts().Enabled()).
		InitDuration(time.Since(start)).
		Log()
}

func main() {
	lambda.Start(adapter.ProxyWithContext)
}
