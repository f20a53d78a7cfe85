package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mcande21/audio-duplicates/pkg/audiodup"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
)

var (
	errCompareArgs     = errors.New("expected exactly two arguments: files to compare")
	errFingerprintArgs = errors.New("expected exactly one argument: file to fingerprint")
)

func compareCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "sliding",
			Usage: "Use sliding-window comparison (tolerates silence padding)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Emit the raw match result as JSON",
		},
	}
	flags = append(flags, comparatorFlags()...)
	flags = append(flags, preprocessFlags()...)

	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare two audio files",
		ArgsUsage: "<file-a> <file-b>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: got %d", errCompareArgs, cmd.NArg())
			}

			opts := []audiodup.Option{
				audiodup.WithComparatorConfig(comparatorConfigFromFlags(cmd)),
				audiodup.WithPreprocessConfig(preprocessConfigFromFlags(cmd)),
			}
			if cmd.Bool("sliding") {
				opts = append(opts, audiodup.WithSlidingWindow())
			}
			service, err := audiodup.NewService(opts...)
			if err != nil {
				return err
			}
			defer service.Close()

			result, err := service.CompareFiles(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
			if err != nil {
				return err
			}

			if cmd.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printMatchResult(result)
			return nil
		},
	}
}

func printMatchResult(r compare.MatchResult) {
	verdict := "DIFFERENT"
	if r.IsDuplicate {
		verdict = "DUPLICATE"
	}
	fmt.Printf("%s\n", verdict)
	fmt.Printf("  similarity:       %.4f\n", r.SimilarityScore)
	fmt.Printf("  bit error rate:   %.4f\n", r.BitErrorRate)
	fmt.Printf("  best offset:      %d words (%.2fs)\n", r.BestOffset, float64(r.BestOffset)*0.124)
	fmt.Printf("  matched segments: %d\n", r.MatchedSegments)
	if r.CoverageRatio > 0 {
		fmt.Printf("  coverage:         %.2f\n", r.CoverageRatio)
	}
}

func fingerprintCommand() *cli.Command {
	return &cli.Command{
		Name:      "fingerprint",
		Usage:     "Print fingerprint details for one audio file",
		ArgsUsage: "<file>",
		Flags:     preprocessFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errFingerprintArgs, cmd.NArg())
			}

			service, err := audiodup.NewService(
				audiodup.WithPreprocessConfig(preprocessConfigFromFlags(cmd)),
			)
			if err != nil {
				return err
			}
			defer service.Close()

			id, err := service.AddFile(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			entry, ok := service.Index().GetFile(id)
			if !ok {
				return fmt.Errorf("file %d missing after registration", id)
			}

			fp := entry.Fingerprint
			fmt.Printf("path:        %s\n", fp.FilePath())
			fmt.Printf("duration:    %.2fs\n", fp.Duration())
			fmt.Printf("sample rate: %d\n", fp.SampleRate())
			fmt.Printf("words:       %d\n", fp.Size())
			fmt.Printf("hash keys:   %d distinct\n", len(fp.HashSet()))
			return nil
		},
	}
}
