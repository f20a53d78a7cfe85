package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/mcande21/audio-duplicates/internal/report"
	"github.com/mcande21/audio-duplicates/pkg/audiodup"
)

var errScanArgs = errors.New("expected exactly one argument: directory to scan")

func scanCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "cache",
			Usage: "Fingerprint cache database path (empty disables caching)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Fingerprinting and comparison workers (0 = all CPUs)",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, json",
			Value:   "text",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Disable the progress bar",
		},
	}
	flags = append(flags, comparatorFlags()...)
	flags = append(flags, preprocessFlags()...)

	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a directory tree and report duplicate groups",
		ArgsUsage: "<directory>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errScanArgs, cmd.NArg())
			}
			root := cmd.Args().First()

			service, err := audiodup.NewService(
				audiodup.WithCachePath(cmd.String("cache")),
				audiodup.WithWorkers(cmd.Int("workers")),
				audiodup.WithComparatorConfig(comparatorConfigFromFlags(cmd)),
				audiodup.WithPreprocessConfig(preprocessConfigFromFlags(cmd)),
			)
			if err != nil {
				return err
			}
			defer service.Close()

			progress := progressFunc(cmd.Bool("no-progress"))

			result, err := service.ScanDirectory(ctx, root, progress)
			if err != nil {
				return err
			}

			rep := report.Build(service.Index(), result.Groups, root, result.FilesScanned, result.Elapsed)
			if cmd.String("format") == "json" {
				return rep.WriteJSON(os.Stdout)
			}
			return rep.WriteText(os.Stdout)
		},
	}
}

// progressFunc builds a per-file callback backed by one mpb bar, lazily
// sized on the first call.
func progressFunc(disabled bool) func(done, total int) {
	if disabled {
		return nil
	}

	var p *mpb.Progress
	var bar *mpb.Bar
	return func(done, total int) {
		if bar == nil {
			p = mpb.New(mpb.WithWidth(64))
			bar = p.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name("Fingerprinting: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(decor.Percentage()),
			)
		}
		bar.SetCurrent(int64(done))
		if done >= total {
			p.Wait()
		}
	}
}
