// Package fingerprint defines the immutable fingerprint value object consumed
// by the comparator and the index. Fingerprints are produced externally by a
// Chromaprint-style fingerprinter; this package only validates and carries
// them.
package fingerprint

import (
	"errors"
	"fmt"
)

// ErrInvalidFingerprint is returned when a fingerprint violates the
// construction invariants: empty data, non-positive duration, or a length
// over the sanity bound.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

const (
	// SampleRate is the producer's internal framing rate. Carried for
	// reporting only; comparison never uses it.
	SampleRate = 11025

	// MaxLength is the sanity bound on the number of sub-fingerprint words.
	MaxLength = 100000
)

// Fingerprint is an ordered sequence of 32-bit sub-fingerprints together with
// the metadata of the audio it was derived from. Immutable after
// construction.
type Fingerprint struct {
	data       []uint32
	sampleRate int
	duration   float64
	filePath   string
}

// New validates and constructs a Fingerprint. The data slice is copied so the
// caller cannot mutate the fingerprint afterwards.
func New(data []uint32, sampleRate int, duration float64, filePath string) (*Fingerprint, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data (%s)", ErrInvalidFingerprint, filePath)
	}
	if len(data) > MaxLength {
		return nil, fmt.Errorf("%w: %d words exceeds bound of %d (%s)",
			ErrInvalidFingerprint, len(data), MaxLength, filePath)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: non-positive duration %.3f (%s)",
			ErrInvalidFingerprint, duration, filePath)
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	owned := make([]uint32, len(data))
	copy(owned, data)

	return &Fingerprint{
		data:       owned,
		sampleRate: sampleRate,
		duration:   duration,
		filePath:   filePath,
	}, nil
}

// Data returns the sub-fingerprint words. Callers must treat the slice as
// read-only; it is shared with the fingerprint.
func (f *Fingerprint) Data() []uint32 { return f.data }

// Size returns the number of sub-fingerprint words.
func (f *Fingerprint) Size() int { return len(f.data) }

// SampleRate returns the producer's framing rate.
func (f *Fingerprint) SampleRate() int { return f.sampleRate }

// Duration returns the seconds of audio the fingerprint represents.
func (f *Fingerprint) Duration() float64 { return f.duration }

// FilePath returns the source path carried for identity and display.
func (f *Fingerprint) FilePath() string { return f.filePath }

// Hash16 extracts the low 16 bits of one sub-fingerprint word. These are the
// keys of the inverted index and of the comparator's quick filter.
func Hash16(word uint32) uint16 { return uint16(word & 0xFFFF) }

// Hashes returns the low-16-bit hash of every word, in position order.
func (f *Fingerprint) Hashes() []uint16 {
	hashes := make([]uint16, len(f.data))
	for i, w := range f.data {
		hashes[i] = Hash16(w)
	}
	return hashes
}

// HashSet returns the set of distinct low-16-bit hashes.
func (f *Fingerprint) HashSet() map[uint16]struct{} {
	set := make(map[uint16]struct{}, len(f.data))
	for _, w := range f.data {
		set[Hash16(w)] = struct{}{}
	}
	return set
}

// MatchesAnyHashOf reports whether f and other share at least one low-16-bit
// hash value. The fingerprint never decides similarity; this is the cheapest
// possible overlap probe.
func (f *Fingerprint) MatchesAnyHashOf(other *Fingerprint) bool {
	if other == nil {
		return false
	}
	small, large := f, other
	if small.Size() > large.Size() {
		small, large = large, small
	}
	set := small.HashSet()
	for _, w := range large.data {
		if _, ok := set[Hash16(w)]; ok {
			return true
		}
	}
	return false
}
