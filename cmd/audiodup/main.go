package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mcande21/audio-duplicates/pkg/logger"
)

func main() {
	app := &cli.Command{
		Name:  "audiodup",
		Usage: "Find near-duplicate audio files by perceptual fingerprint",
		Commands: []*cli.Command{
			scanCommand(),
			compareCommand(),
			fingerprintCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.GetLogger().Errorf("%v", err)
		os.Exit(1)
	}
}
