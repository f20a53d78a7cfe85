// Package preprocess normalizes decoded PCM before fingerprinting: silence
// trimming, sample-rate conversion, and volume normalization. Two systems
// running the same preprocessing configuration produce comparable
// fingerprints, so option names and defaults are kept stable.
package preprocess

import "math"

// Config controls the preprocessing pipeline.
type Config struct {
	// Silence trimming.
	TrimSilence        bool
	SilenceThresholdDB float64
	PreservePaddingMs  int

	// Sample-rate normalization.
	NormalizeSampleRate bool
	TargetSampleRate    int

	// Volume normalization.
	NormalizeVolume bool
	UseRMS          bool
	TargetRMSDB     float64
	TargetPeakDB    float64
	NoiseFloorDB    float64

	// Smart-doubling controls (applied by the fingerprint producer).
	DisableDoublingAfterTrim bool
	DoublingThresholdRatio   float64
	MinDurationForDoublingS  float64
}

// DefaultConfig returns the stable default preprocessing configuration.
func DefaultConfig() Config {
	return Config{
		TrimSilence:              true,
		SilenceThresholdDB:       -55,
		PreservePaddingMs:        100,
		NormalizeSampleRate:      true,
		TargetSampleRate:         44100,
		NormalizeVolume:          true,
		UseRMS:                   true,
		TargetRMSDB:              -20,
		TargetPeakDB:             -3,
		NoiseFloorDB:             -60,
		DisableDoublingAfterTrim: true,
		DoublingThresholdRatio:   0.5,
		MinDurationForDoublingS:  1.5,
	}
}

// Audio is mono PCM in float32 samples. OriginalDuration is the duration
// before any trimming, carried so the doubling rule can see how much was cut.
type Audio struct {
	Samples          []float32
	SampleRate       int
	OriginalDuration float64
}

// Duration returns the current duration in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Process runs the enabled pipeline steps in order: trim, resample,
// normalize. The input is not modified.
func Process(in *Audio, cfg Config) *Audio {
	out := &Audio{
		Samples:          append([]float32(nil), in.Samples...),
		SampleRate:       in.SampleRate,
		OriginalDuration: in.OriginalDuration,
	}
	if out.OriginalDuration == 0 {
		out.OriginalDuration = in.Duration()
	}

	if cfg.TrimSilence {
		out = TrimSilence(out, cfg)
	}
	if cfg.NormalizeSampleRate && out.SampleRate != cfg.TargetSampleRate && cfg.TargetSampleRate > 0 {
		out = Resample(out, cfg.TargetSampleRate)
	}
	if cfg.NormalizeVolume {
		NormalizeVolume(out, cfg)
	}
	return out
}

// TrimSilence cuts leading and trailing samples below the silence threshold,
// preserving PreservePaddingMs of padding on each edge. Fully silent audio
// collapses to at most one padding's worth of silence.
func TrimSilence(in *Audio, cfg Config) *Audio {
	if len(in.Samples) == 0 {
		return in
	}

	threshold := float32(dbToLinear(cfg.SilenceThresholdDB))
	first, last := -1, -1
	for i, s := range in.Samples {
		if absf(s) > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	padding := cfg.PreservePaddingMs * in.SampleRate / 1000

	if first < 0 {
		n := padding
		if n > len(in.Samples) {
			n = len(in.Samples)
		}
		return &Audio{
			Samples:          make([]float32, n),
			SampleRate:       in.SampleRate,
			OriginalDuration: in.OriginalDuration,
		}
	}

	start := first - padding
	if start < 0 {
		start = 0
	}
	end := last + padding + 1
	if end > len(in.Samples) {
		end = len(in.Samples)
	}

	return &Audio{
		Samples:          append([]float32(nil), in.Samples[start:end]...),
		SampleRate:       in.SampleRate,
		OriginalDuration: in.OriginalDuration,
	}
}

// Resample converts to the target rate by linear interpolation.
func Resample(in *Audio, targetRate int) *Audio {
	if in.SampleRate == targetRate || len(in.Samples) == 0 {
		out := *in
		out.SampleRate = targetRate
		return &out
	}

	ratio := float64(in.SampleRate) / float64(targetRate)
	n := int(float64(len(in.Samples)) / ratio)
	if n < 1 {
		n = 1
	}
	samples := make([]float32, n)
	for i := range samples {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in.Samples)-1 {
			samples[i] = in.Samples[len(in.Samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		samples[i] = in.Samples[j]*(1-frac) + in.Samples[j+1]*frac
	}

	return &Audio{
		Samples:          samples,
		SampleRate:       targetRate,
		OriginalDuration: in.OriginalDuration,
	}
}

// NormalizeVolume scales the samples in place toward the target RMS or peak
// level. Audio at or below the noise floor is left alone rather than
// amplified into audible noise.
func NormalizeVolume(a *Audio, cfg Config) {
	if len(a.Samples) == 0 {
		return
	}

	var current float64
	var target float64
	if cfg.UseRMS {
		current = RMS(a.Samples)
		target = dbToLinear(cfg.TargetRMSDB)
	} else {
		current = Peak(a.Samples)
		target = dbToLinear(cfg.TargetPeakDB)
	}
	if current == 0 || linearToDB(current) <= cfg.NoiseFloorDB {
		return
	}

	gain := float32(target / current)
	for i, s := range a.Samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		a.Samples[i] = v
	}
}

// ShouldDouble applies the smart-doubling rule for short clips: audio under
// three seconds is doubled before fingerprinting, unless it was trimmed down
// to less than the threshold ratio of the original and the original itself
// was too short to be worth doubling.
func ShouldDouble(a *Audio, cfg Config) bool {
	const minDurationThreshold = 3.0

	duration := a.Duration()
	if duration >= minDurationThreshold {
		return false
	}
	if !cfg.DisableDoublingAfterTrim || a.OriginalDuration <= 0 {
		return true
	}

	trimmingRatio := duration / a.OriginalDuration
	if trimmingRatio < cfg.DoublingThresholdRatio {
		return a.OriginalDuration >= cfg.MinDurationForDoublingS
	}
	return true
}

// Double concatenates the audio with itself.
func Double(a *Audio) *Audio {
	doubled := make([]float32, 0, 2*len(a.Samples))
	doubled = append(doubled, a.Samples...)
	doubled = append(doubled, a.Samples...)
	return &Audio{
		Samples:          doubled,
		SampleRate:       a.SampleRate,
		OriginalDuration: a.OriginalDuration,
	}
}

// RMS returns the root-mean-square level of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float64 {
	var peak float32
	for _, s := range samples {
		if a := absf(s); a > peak {
			peak = a
		}
	}
	return float64(peak)
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func linearToDB(linear float64) float64 {
	if linear <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(linear)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
