package compare

import (
	"sort"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

// segmentCandidate carries the window's position in a alongside the reported
// (offset, similarity) pair; the position drives the overlap filter.
type segmentCandidate struct {
	posA       int
	offset     int
	similarity float64
}

// CompareSlidingWindow performs a segment-level comparison tolerant of
// non-uniform silence padding and partial overlaps. Equal-size windows of a
// are matched against the best-aligned window of b; accepted segments are
// deduplicated, combined into a similarity-weighted mean, and judged against
// the coverage and segment-count thresholds.
func (c *Comparator) CompareSlidingWindow(a, b *fingerprint.Fingerprint) MatchResult {
	cfg := c.cfg.Load()
	result := noMatch()

	if a == nil || b == nil {
		return result
	}
	da, db := a.Data(), b.Data()
	if len(da) < cfg.MinimumOverlap || len(db) < cfg.MinimumOverlap {
		return result
	}
	if !quickFilter(cfg, a, b) {
		return result
	}

	window := cfg.SlidingWindowSize
	if len(da) < window || len(db) < window {
		return result
	}

	kept := matchSegments(cfg, da, db)
	if len(kept) == 0 {
		return result
	}

	// Similarity-weighted mean: strong segments dominate weak ones.
	var weighted, weights float64
	for _, seg := range kept {
		weighted += seg.similarity * seg.similarity
		weights += seg.similarity
	}
	result.SimilarityScore = weighted / weights

	result.BestOffset = kept[0].offset
	result.MatchedSegments = len(kept)
	result.SegmentMatches = make([]SegmentMatch, len(kept))
	for i, seg := range kept {
		result.SegmentMatches[i] = SegmentMatch{Offset: seg.offset, Similarity: seg.similarity}
	}

	longer := len(da)
	if len(db) > longer {
		longer = len(db)
	}
	result.CoverageRatio = coverageRatio(len(kept), window, longer)
	result.BitErrorRate = bitErrorRateAtOffset(da, db, result.BestOffset)

	result.IsDuplicate = result.SimilarityScore >= cfg.SimilarityThreshold &&
		result.BitErrorRate <= cfg.BitErrorThreshold &&
		result.CoverageRatio >= cfg.GroupCoverageMin &&
		result.MatchedSegments >= cfg.GroupMinMatchingSegments

	return result
}

// matchSegments slides a window over a, finds each window's best alignment in
// b, and returns the accepted segments sorted by similarity descending with
// overlapping windows (by position in a) removed.
func matchSegments(cfg *Config, a, b []uint32) []segmentCandidate {
	window := cfg.SlidingWindowSize
	stride := cfg.windowStride()
	minSim := cfg.SimilarityThreshold * cfg.SegmentMinSimilarityFactor

	var candidates []segmentCandidate
	for i := 0; i+window <= len(a); i += stride {
		wa := a[i : i+window]

		bestSim := 0.0
		bestJ := -1
		for j := 0; j+window <= len(b); j += cfg.AlignmentStep {
			sim := similarityAtOffset(wa, b[j:j+window], 0)
			if sim >= minSim && sim > bestSim {
				bestSim = sim
				bestJ = j
			}
		}

		if bestJ >= 0 {
			candidates = append(candidates, segmentCandidate{
				posA:       i,
				offset:     bestJ - i,
				similarity: bestSim,
			})
		}
	}

	sort.SliceStable(candidates, func(x, y int) bool {
		return candidates[x].similarity > candidates[y].similarity
	})

	// Keep the strongest segment per window/2 span of a.
	halfWindow := window / 2
	kept := candidates[:0]
	for _, cand := range candidates {
		overlaps := false
		for _, existing := range kept {
			if abs(cand.posA-existing.posA) < halfWindow {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

// coverageRatio estimates the matched share of the longer fingerprint as
// kept segments times window size, clamped to 1. This deliberately ignores
// which intervals the segments actually cover; see DESIGN.md.
func coverageRatio(keptCount, window, totalLength int) float64 {
	if keptCount == 0 || totalLength == 0 {
		return 0
	}
	covered := keptCount * window
	if covered > totalLength {
		covered = totalLength
	}
	return float64(covered) / float64(totalLength)
}
