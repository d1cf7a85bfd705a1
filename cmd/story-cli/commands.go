package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/image-story/internal/cli"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/fpang/image-story/internal/story"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	pickFlag      bool
	themeFlag     string
	wordLimitFlag int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [image]",
	Short: "Validate an image and write its resized copy",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline()
		raw := mustResolveImage(p, args)
		ctx, stop := signalContext()
		defer stop()

		img, err := p.Ingest(ctx, raw)
		if err != nil {
			cli.HandleStageError(err)
		}
		fmt.Printf("Ingested %s (%dx%d -> %dx%d)\n", img.Path, img.OriginalWidth, img.OriginalHeight, img.Width, img.Height)
	},
}

var captionCmd = &cobra.Command{
	Use:   "caption <ingested-image>",
	Short: "Caption an ingested image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()

		start := time.Now()
		capt, err := newPipeline().Caption(ctx, args[0])
		if err != nil {
			cli.HandleStageError(err)
		}
		fmt.Printf("\nCaption (%s, %s):\n%s\n\nSaved to %s\n", capt.Provider, cli.FormatElapsed(time.Since(start)), capt.Text, capt.Path)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <caption-file>",
	Short: "Write a story from a caption file",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cli.ValidateWordLimit(wordLimitFlag)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()

		start := time.Now()
		st, err := newPipeline().Generate(ctx, args[0], themeFlag, wordLimitFlag)
		if err != nil {
			cli.HandleStageError(err)
		}
		printStory(st, time.Since(start))
	},
}

var runCmd = &cobra.Command{
	Use:   "run [image]",
	Short: "Run ingest, caption and story in sequence",
	Args:  cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cli.ValidateWordLimit(wordLimitFlag)
	},
	Run: func(cmd *cobra.Command, args []string) {
		p := newPipeline()
		raw := mustResolveImage(p, args)
		ctx, stop := signalContext()
		defer stop()

		res, err := p.Run(ctx, raw, themeFlag, wordLimitFlag)
		if err != nil {
			cli.HandleStageError(err)
		}
		fmt.Printf("\nImage:   %s\nCaption: %s\n", res.Image.Path, res.Caption.Text)
		printStory(res.Story, res.Duration)
		for _, stage := range []string{pipeline.StageIngest, pipeline.StageCaption, pipeline.StageStory} {
			if key, ok := res.Published[stage]; ok {
				fmt.Printf("Mirrored %s -> %s\n", stage, key)
			}
		}
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the image with the native file dialog")
	runCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the image with the native file dialog")

	for _, c := range []*cobra.Command{generateCmd, runCmd} {
		c.Flags().StringVar(&themeFlag, "theme", config.DefaultTheme, "Story theme or genre")
		c.Flags().IntVar(&wordLimitFlag, "word-limit", config.DefaultWordLimit,
			fmt.Sprintf("Approximate story length in words (%d-%d)", config.MinWordLimit, config.MaxWordLimit))
	}

	rootCmd.AddCommand(ingestCmd, captionCmd, generateCmd, runCmd)
}

func mustResolveImage(p *pipeline.Pipeline, args []string) string {
	raw, err := resolveImage(p, args, pickFlag)
	if err != nil {
		if errors.Is(err, cli.ErrNoFile) {
			log.Error().Msg("No image given")
			os.Exit(1)
		}
		cli.HandleStageError(err)
	}
	return raw
}

// signalContext is cancelled on Ctrl+C so in-flight inference calls stop.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printStory(st *story.Story, elapsed time.Duration) {
	fmt.Printf("\n--- %s story ---\n%s\n---\n\nSaved to %s (%s)\n", st.Theme, st.Text, st.Path, cli.StorySummary(st.Text, st.WordLimit, elapsed))
}
