// Command story-mcp exposes the pipeline stages as Model Context Protocol
// tools over stdio, so an agent can caption images and write stories from
// files on the local machine.
//
// Logs go to stderr; stdout carries the protocol.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/image-story/internal/logging"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	settingsFlag string
	paramsFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "story-mcp",
	Short: "MCP server for the image story pipeline",
	Long: `Story MCP serves four tools over stdio: ingest_image, caption_image,
generate_story and run_pipeline. Paths are local to the machine running the
server.

Example client entry:
  {"command": "story-mcp", "args": ["--settings", "/abs/config.yaml", "--params", "/abs/params.yaml"]}`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&settingsFlag, "settings", logging.EnvOrDefault("STORY_SETTINGS", "config/config.yaml"), "Settings document (env STORY_SETTINGS)")
	rootCmd.Flags().StringVar(&paramsFlag, "params", logging.EnvOrDefault("STORY_PARAMS", "params.yaml"), "Params document (env STORY_PARAMS)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logging.InitWithFormat("json")

	pipe := pipeline.New(pipeline.Options{
		SettingsPath: settingsFlag,
		ParamsPath:   paramsFlag,
		HTTPClient:   &http.Client{},
	})
	if _, err := pipe.LoadConfig(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	server := newServer(pipe)

	logging.NewStartupLogger("story-mcp").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("settings", settingsFlag).
		Config("params", paramsFlag).
		InitDuration(time.Since(start)).
		Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("MCP server stopped")
		return err
	}
	return nil
}
