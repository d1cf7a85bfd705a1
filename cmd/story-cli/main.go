package main

import (
	"net/http"
	"os"

	"github.com/fpang/image-story/internal/logging"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Persistent flags
var (
	settingsFlag string
	paramsFlag   string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "story-cli",
	Short: "Turn an image into a caption and a short story",
	Long: `Story CLI runs the ingest, caption and story stages from the terminal,
either all at once or one stage at a time. Each stage reads the artifact the
previous one wrote, so a failed run can be resumed from where it stopped.

Artifacts are written to the directories named in the settings document:
  <ingested_data_dir>/resized_<name>
  <captions_dir>/<stem>_caption.txt
  <stories_dir>/<stem>_story.txt

Examples:
  story-cli run photos/beach.jpg --theme mystery --word-limit 300
  story-cli run --pick
  story-cli ingest photos/beach.jpg
  story-cli caption data/ingested/resized_beach.jpg
  story-cli generate data/captions/resized_beach_caption.txt --theme comedy`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		if verboseFlag {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", logging.EnvOrDefault("STORY_SETTINGS", "config/config.yaml"), "Settings document (env STORY_SETTINGS)")
	rootCmd.PersistentFlags().StringVar(&paramsFlag, "params", logging.EnvOrDefault("STORY_PARAMS", "params.yaml"), "Params document (env STORY_PARAMS)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log at debug level")
	rootCmd.Version = commitHash + " (" + buildTime + ")"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		SettingsPath: settingsFlag,
		ParamsPath:   paramsFlag,
		HTTPClient:   &http.Client{},
	})
}
