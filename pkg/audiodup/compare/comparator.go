// Package compare implements fingerprint comparison: bitwise similarity,
// histogram and correlation alignment, a hash-overlap quick filter, and a
// sliding-window mode tolerant of silence padding and partial overlaps.
//
// A Comparator is pure apart from its configuration snapshot and is safe for
// concurrent use from any number of goroutines.
package compare

import (
	"sync/atomic"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
	"github.com/mcande21/audio-duplicates/pkg/bitutil"
)

// Comparator compares two fingerprints under a configuration snapshot.
// Setters publish a fresh immutable Config; in-flight comparisons keep the
// snapshot they started with.
type Comparator struct {
	cfg atomic.Pointer[Config]
}

// New returns a Comparator with the default configuration.
func New() *Comparator {
	c := &Comparator{}
	cfg := DefaultConfig()
	c.cfg.Store(&cfg)
	return c
}

// NewWithConfig returns a Comparator with the given configuration, or
// ErrInvalidConfiguration.
func NewWithConfig(cfg Config) (*Comparator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Comparator{}
	c.cfg.Store(&cfg)
	return c, nil
}

// Config returns the current configuration snapshot.
func (c *Comparator) Config() Config {
	return *c.cfg.Load()
}

// SetConfig validates and publishes a full configuration snapshot.
func (c *Comparator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg.Store(&cfg)
	return nil
}

func (c *Comparator) update(mutate func(*Config)) error {
	next := *c.cfg.Load()
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg.Store(&next)
	return nil
}

// SetSimilarityThreshold sets the minimum similarity for a duplicate.
func (c *Comparator) SetSimilarityThreshold(v float64) error {
	return c.update(func(cfg *Config) { cfg.SimilarityThreshold = v })
}

// SetBitErrorThreshold sets the maximum bit error rate for a duplicate.
func (c *Comparator) SetBitErrorThreshold(v float64) error {
	return c.update(func(cfg *Config) { cfg.BitErrorThreshold = v })
}

// SetMinimumOverlap sets the minimum overlapped words required.
func (c *Comparator) SetMinimumOverlap(n int) error {
	return c.update(func(cfg *Config) { cfg.MinimumOverlap = n })
}

// SetMaxAlignmentOffset sets the half-range of the offset search in words.
func (c *Comparator) SetMaxAlignmentOffset(n int) error {
	return c.update(func(cfg *Config) { cfg.MaxAlignmentOffset = n })
}

// SetAlignmentStep sets the stride of the coarse correlation search.
func (c *Comparator) SetAlignmentStep(n int) error {
	return c.update(func(cfg *Config) { cfg.AlignmentStep = n })
}

// Compare performs a single-offset Hamming comparison of two fingerprints:
// alignment search, similarity and bit error rate at the best offset, and
// the threshold decision.
func (c *Comparator) Compare(a, b *fingerprint.Fingerprint) MatchResult {
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

	best := findBestAlignment(cfg, da, db)
	result.BestOffset = best
	result.SimilarityScore = similarityAtOffset(da, db, best)
	result.BitErrorRate = bitErrorRateAtOffset(da, db, best)
	result.MatchedSegments = overlapLength(len(da), len(db), best)

	result.IsDuplicate = result.SimilarityScore >= cfg.SimilarityThreshold &&
		result.BitErrorRate <= cfg.BitErrorThreshold &&
		result.MatchedSegments >= cfg.MinimumOverlap

	return result
}

// QuickFilter reports whether the pair survives the hash-overlap prefilter.
// Exposed so callers can prune candidate lists before full comparison.
func (c *Comparator) QuickFilter(a, b *fingerprint.Fingerprint) bool {
	if a == nil || b == nil {
		return false
	}
	return quickFilter(c.cfg.Load(), a, b)
}

// quickFilter compares the Jaccard similarity of the two distinct-hash sets
// against a slackened similarity threshold. The slack keeps the filter from
// rejecting any pair the full comparison would accept.
func quickFilter(cfg *Config, a, b *fingerprint.Fingerprint) bool {
	setA := a.HashSet()
	setB := b.HashSet()
	if len(setA) == 0 || len(setB) == 0 {
		return false
	}

	intersection := 0
	for h := range setA {
		if _, ok := setB[h]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return false
	}
	jaccard := float64(intersection) / float64(union)

	return jaccard >= cfg.SimilarityThreshold*quickFilterSlack
}

// overlapLength returns the number of overlapped words when b is shifted by
// offset relative to a.
func overlapLength(lenA, lenB, offset int) int {
	start := 0
	if -offset > 0 {
		start = -offset
	}
	end := lenA
	if lenB-offset < end {
		end = lenB - offset
	}
	if end <= start {
		return 0
	}
	return end - start
}

// similarityAtOffset is the fraction of matching bits over the overlap of a
// and b at the given offset (index j in b pairs with j-offset in a). Returns
// 0 when the overlap is empty.
func similarityAtOffset(a, b []uint32, offset int) float64 {
	i, j := overlapStart(offset)
	matching, total := 0, 0
	for ; i < len(a) && j < len(b); i, j = i+1, j+1 {
		matching += bitutil.MatchingBits(a[i], b[j])
		total += bitutil.WordBits
	}
	if total == 0 {
		return 0
	}
	return float64(matching) / float64(total)
}

// bitErrorRateAtOffset is the fraction of differing bits over the overlap.
// Returns 1 when the overlap is empty.
func bitErrorRateAtOffset(a, b []uint32, offset int) float64 {
	i, j := overlapStart(offset)
	errorsBits, total := 0, 0
	for ; i < len(a) && j < len(b); i, j = i+1, j+1 {
		errorsBits += bitutil.Hamming(a[i], b[j])
		total += bitutil.WordBits
	}
	if total == 0 {
		return 1
	}
	return float64(errorsBits) / float64(total)
}

func overlapStart(offset int) (i, j int) {
	if offset >= 0 {
		return 0, offset
	}
	return -offset, 0
}
