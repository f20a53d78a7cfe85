package main

import (
	"github.com/urfave/cli/v3"

	"github.com/mcande21/audio-duplicates/internal/preprocess"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
)

// comparatorFlags expose the comparator thresholds and search settings on the
// command line. The window stride is always window/2 and the per-segment
// similarity factor keeps its default; neither has a flag.
func comparatorFlags() []cli.Flag {
	defaults := compare.DefaultConfig()
	return []cli.Flag{
		&cli.FloatFlag{
			Name:  "similarity",
			Usage: "Minimum similarity for a duplicate (0-1)",
			Value: defaults.SimilarityThreshold,
		},
		&cli.FloatFlag{
			Name:  "bit-error",
			Usage: "Maximum bit error rate for a duplicate (0-1)",
			Value: defaults.BitErrorThreshold,
		},
		&cli.IntFlag{
			Name:  "min-overlap",
			Usage: "Minimum overlapped fingerprint words",
			Value: defaults.MinimumOverlap,
		},
		&cli.IntFlag{
			Name:  "max-offset",
			Usage: "Half-range of the alignment search in words (~0.124s each)",
			Value: defaults.MaxAlignmentOffset,
		},
		&cli.IntFlag{
			Name:  "alignment-step",
			Usage: "Stride of the coarse alignment search in words",
			Value: defaults.AlignmentStep,
		},
		&cli.IntFlag{
			Name:  "window",
			Usage: "Sliding-window segment size in words",
			Value: defaults.SlidingWindowSize,
		},
		&cli.FloatFlag{
			Name:  "coverage-min",
			Usage: "Minimum coverage ratio for sliding-window duplicates (0-1)",
			Value: defaults.GroupCoverageMin,
		},
		&cli.IntFlag{
			Name:  "min-segments",
			Usage: "Minimum matching segments for sliding-window duplicates",
			Value: defaults.GroupMinMatchingSegments,
		},
	}
}

// preprocessFlags expose the producer-side preprocessing surface.
func preprocessFlags() []cli.Flag {
	defaults := preprocess.DefaultConfig()
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-trim",
			Usage: "Disable silence trimming before fingerprinting",
		},
		&cli.FloatFlag{
			Name:  "silence-db",
			Usage: "Silence threshold in dB for trimming",
			Value: defaults.SilenceThresholdDB,
		},
		&cli.BoolFlag{
			Name:  "no-normalize",
			Usage: "Disable volume normalization",
		},
		&cli.FloatFlag{
			Name:  "target-rms-db",
			Usage: "Target RMS level in dB for volume normalization",
			Value: defaults.TargetRMSDB,
		},
		&cli.BoolFlag{
			Name:  "no-doubling-guard",
			Usage: "Always double short clips, even heavily-trimmed ones",
		},
	}
}

func comparatorConfigFromFlags(cmd *cli.Command) compare.Config {
	cfg := compare.DefaultConfig()
	cfg.SimilarityThreshold = cmd.Float("similarity")
	cfg.BitErrorThreshold = cmd.Float("bit-error")
	cfg.MinimumOverlap = cmd.Int("min-overlap")
	cfg.MaxAlignmentOffset = cmd.Int("max-offset")
	cfg.AlignmentStep = cmd.Int("alignment-step")
	cfg.SlidingWindowSize = cmd.Int("window")
	cfg.SlidingWindowStride = cfg.SlidingWindowSize / 2
	cfg.GroupCoverageMin = cmd.Float("coverage-min")
	cfg.GroupMinMatchingSegments = cmd.Int("min-segments")
	return cfg
}

func preprocessConfigFromFlags(cmd *cli.Command) preprocess.Config {
	cfg := preprocess.DefaultConfig()
	cfg.TrimSilence = !cmd.Bool("no-trim")
	cfg.SilenceThresholdDB = cmd.Float("silence-db")
	cfg.NormalizeVolume = !cmd.Bool("no-normalize")
	cfg.TargetRMSDB = cmd.Float("target-rms-db")
	cfg.DisableDoublingAfterTrim = !cmd.Bool("no-doubling-guard")
	return cfg
}
