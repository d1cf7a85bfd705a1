package main

import (
	"os"

	"github.com/fpang/image-story/internal/cli"
	"github.com/fpang/image-story/internal/pipeline"
)

// resolveImage picks the raw image from the argument, the native file
// dialog, or a prompt on stdin, in that order.
func resolveImage(p *pipeline.Pipeline, args []string, pick bool) (string, error) {
	if len(args) > 0 {
		return cli.ResolveFile(args[0])
	}
	var path string
	var err error
	if pick {
		cfg, cfgErr := p.LoadConfig()
		if cfgErr != nil {
			return "", cfgErr
		}
		path, err = cli.PickImageFile(cfg.Ingestion().AllowedExtensions)
	} else {
		path, err = cli.PromptForFile(os.Stdin, os.Stdout)
	}
	if err != nil {
		return "", err
	}
	return cli.ResolveFile(path)
}
