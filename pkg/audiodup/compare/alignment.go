package compare

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

// Histogram smoothing parameters: discrete Gaussian with sigma 2, kernel
// truncated at three sigma, and the minimum smoothed value for a peak.
const (
	histogramSigma   = 2.0
	histogramPeakMin = 0.1
)

// findBestAlignment runs the histogram and correlation searches
// independently, keeps the offset with the higher similarity (histogram wins
// ties), then refines within two words of the winner.
func findBestAlignment(cfg *Config, a, b []uint32) int {
	histOffset := alignByHistogram(cfg, a, b)
	corrOffset := alignByCorrelation(cfg, a, b)

	histSim := similarityAtOffset(a, b, histOffset)
	corrSim := similarityAtOffset(a, b, corrOffset)

	best := corrOffset
	bestSim := corrSim
	if histSim >= corrSim {
		best = histOffset
		bestSim = histSim
	}

	for k := best - 2; k <= best+2; k++ {
		if k == best || abs(k) > cfg.MaxAlignmentOffset {
			continue
		}
		if sim := similarityAtOffset(a, b, k); sim > bestSim {
			bestSim = sim
			best = k
		}
	}

	return best
}

// alignByHistogram votes offsets of equal low-16-bit hashes into a histogram,
// smooths it with a Gaussian, and returns the offset under the strongest
// local maximum. The vote is a posting-list join: one pass builds hash ->
// positions for a, a second pass walks b, so the cost is proportional to the
// number of actual hash collisions rather than |a|*|b|.
func alignByHistogram(cfg *Config, a, b []uint32) int {
	size := 2*cfg.MaxAlignmentOffset + 1
	center := cfg.MaxAlignmentOffset
	histogram := make([]float64, size)

	positions := make(map[uint16][]int, len(a))
	for i, w := range a {
		h := fingerprint.Hash16(w)
		positions[h] = append(positions[h], i)
	}

	voted := false
	for j, w := range b {
		for _, i := range positions[fingerprint.Hash16(w)] {
			diff := j - i
			if abs(diff) <= cfg.MaxAlignmentOffset {
				histogram[diff+center]++
				voted = true
			}
		}
	}
	if !voted {
		return 0
	}

	smoothed := gaussianSmooth(histogram, histogramSigma)

	peak, ok := strongestPeak(smoothed, center)
	if !ok {
		return 0
	}
	return peak - center
}

// gaussianSmooth convolves the histogram with a truncated Gaussian kernel of
// unit mass. Bins beyond the histogram edges count as zero, so a vote in the
// outermost bin still peaks there rather than one bin further out.
func gaussianSmooth(histogram []float64, sigma float64) []float64 {
	radius := int(3 * sigma)
	kernel := make([]float64, 2*radius+1)
	for j := -radius; j <= radius; j++ {
		kernel[j+radius] = math.Exp(-float64(j*j) / (2 * sigma * sigma))
	}
	norm := floats.Sum(kernel)

	smoothed := make([]float64, len(histogram))
	for i := range histogram {
		lo, hi := i-radius, i+radius
		kLo := 0
		if lo < 0 {
			kLo = -lo
			lo = 0
		}
		kHi := len(kernel)
		if hi > len(histogram)-1 {
			kHi -= hi - (len(histogram) - 1)
			hi = len(histogram) - 1
		}
		smoothed[i] = floats.Dot(kernel[kLo:kHi], histogram[lo:hi+1]) / norm
	}
	return smoothed
}

// strongestPeak returns the index of the best local maximum above the peak
// floor. Peaks are ranked by magnitude descending; equal magnitudes prefer
// the offset closer to zero.
func strongestPeak(smoothed []float64, center int) (int, bool) {
	if len(smoothed) < 3 {
		return 0, false
	}

	var peaks []int
	for i := 1; i < len(smoothed)-1; i++ {
		if smoothed[i] > smoothed[i-1] && smoothed[i] > smoothed[i+1] && smoothed[i] > histogramPeakMin {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return 0, false
	}

	sort.Slice(peaks, func(x, y int) bool {
		px, py := peaks[x], peaks[y]
		if smoothed[px] != smoothed[py] {
			return smoothed[px] > smoothed[py]
		}
		return abs(px-center) < abs(py-center)
	})
	return peaks[0], true
}

// alignByCorrelation scans offsets in alignment-step strides and keeps the
// one with the highest similarity; ties prefer the smaller absolute offset.
func alignByCorrelation(cfg *Config, a, b []uint32) int {
	bestOffset := 0
	bestSim := 0.0

	for k := -cfg.MaxAlignmentOffset; k <= cfg.MaxAlignmentOffset; k += cfg.AlignmentStep {
		sim := similarityAtOffset(a, b, k)
		if sim > bestSim || (sim == bestSim && sim > 0 && abs(k) < abs(bestOffset)) {
			bestSim = sim
			bestOffset = k
		}
	}

	return bestOffset
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
