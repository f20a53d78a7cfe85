// Package producer turns audio files into fingerprints. Decoding goes
// through ffmpeg, fingerprinting through Chromaprint's fpcalc; preprocessing
// and the smart-doubling rule for very short clips sit in between. The core
// never sees audio — only the finished fingerprints this package emits.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mcande21/audio-duplicates/internal/preprocess"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
	"github.com/mcande21/audio-duplicates/pkg/logger"
)

// fingerprintRate is Chromaprint's internal processing rate.
const fingerprintRate = 11025

// defaultTimeout bounds one file's decode+fingerprint round trip.
const defaultTimeout = 60 * time.Second

// Chromaprint produces fingerprints via the external fpcalc binary.
type Chromaprint struct {
	TempDir    string
	FfmpegPath string
	FpcalcPath string
	Preprocess preprocess.Config
	Log        *logger.Logger
}

// New returns a producer with default tool paths and preprocessing.
func New(tempDir string) *Chromaprint {
	return &Chromaprint{
		TempDir:    tempDir,
		FfmpegPath: "ffmpeg",
		FpcalcPath: "fpcalc",
		Preprocess: preprocess.DefaultConfig(),
		Log:        logger.GetLogger(),
	}
}

// fpcalcOutput is the JSON emitted by `fpcalc -raw -json`.
type fpcalcOutput struct {
	Duration    float64  `json:"duration"`
	Fingerprint []uint32 `json:"fingerprint"`
}

// Fingerprint decodes, preprocesses, optionally doubles, and fingerprints
// one audio file.
func (p *Chromaprint) Fingerprint(ctx context.Context, path string) (*fingerprint.Fingerprint, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	audio, err := decodePCM(ctx, p.FfmpegPath, path)
	if err != nil {
		return nil, err
	}

	processed := preprocess.Process(audio, p.Preprocess)
	processed = preprocess.Resample(processed, fingerprintRate)

	if preprocess.ShouldDouble(processed, p.Preprocess) {
		p.Log.Debugf("doubling short clip %s (%.2fs)", path, processed.Duration())
		processed = preprocess.Double(processed)
	}

	wavPath, err := writeTempWAV(p.TempDir, processed)
	if err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)

	words, duration, err := p.runFpcalc(ctx, wavPath)
	if err != nil {
		return nil, err
	}

	return fingerprint.New(words, fingerprintRate, duration, path)
}

// runFpcalc invokes fpcalc and parses its raw JSON fingerprint.
func (p *Chromaprint) runFpcalc(ctx context.Context, wavPath string) ([]uint32, float64, error) {
	cmd := exec.CommandContext(ctx, p.FpcalcPath, "-raw", "-json", wavPath)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("fpcalc on %s: %w", wavPath, err)
	}

	var parsed fpcalcOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, 0, fmt.Errorf("parsing fpcalc output: %w", err)
	}
	if len(parsed.Fingerprint) == 0 {
		return nil, 0, fmt.Errorf("fpcalc produced an empty fingerprint for %s", wavPath)
	}
	return parsed.Fingerprint, parsed.Duration, nil
}
