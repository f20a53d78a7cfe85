package producer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mcande21/audio-duplicates/internal/preprocess"
)

// decodeSampleRate is the rate audio is decoded at before preprocessing.
const decodeSampleRate = 44100

// decodePCM shells out to ffmpeg to decode any supported container to mono
// float32 PCM on stdout.
func decodePCM(ctx context.Context, ffmpegPath, inputPath string) (*preprocess.Audio, error) {
	cmd := exec.CommandContext(
		ctx,
		ffmpegPath,
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", decodeSampleRate),
		"-f", "f32le",
		"pipe:1",
	)

	var out bytes.Buffer
	var errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg decode of %s: %w (%s)", inputPath, err, errBuf.String())
	}

	raw := out.Bytes()
	if len(raw) < 4 {
		return nil, fmt.Errorf("ffmpeg produced no audio for %s", inputPath)
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	audio := &preprocess.Audio{Samples: samples, SampleRate: decodeSampleRate}
	audio.OriginalDuration = audio.Duration()
	return audio, nil
}

// writeTempWAV writes mono PCM as a 16-bit WAV for fpcalc to consume.
func writeTempWAV(dir string, a *preprocess.Audio) (string, error) {
	f, err := os.CreateTemp(dir, "audiodup-*.wav")
	if err != nil {
		return "", fmt.Errorf("creating temp wav: %w", err)
	}
	path := f.Name()

	enc := wav.NewEncoder(f, a.SampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: a.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(a.Samples)),
	}
	for i, s := range a.Samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buf.Data[i] = int(v * 32767)
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("finalizing wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing wav: %w", err)
	}
	return path, nil
}
