// Package bitutil provides the bit-level primitives used by fingerprint
// comparison: popcount and Hamming distance over 32-bit sub-fingerprints.
package bitutil

import "math/bits"

// WordBits is the number of bits in one sub-fingerprint word.
const WordBits = 32

// PopCount returns the number of set bits in x. math/bits compiles down to
// the hardware popcount instruction where one is available.
func PopCount(x uint32) int {
	return bits.OnesCount32(x)
}

// Hamming returns the number of differing bit positions between a and b.
func Hamming(a, b uint32) int {
	return bits.OnesCount32(a ^ b)
}

// MatchingBits returns the number of identical bit positions between a and b.
func MatchingBits(a, b uint32) int {
	return WordBits - Hamming(a, b)
}

// HammingSlice sums the Hamming distance over two equal-length word slices.
// Panics if the slices differ in length.
func HammingSlice(a, b []uint32) int {
	if len(a) != len(b) {
		panic("bitutil: mismatched slice lengths")
	}
	total := 0
	for i := range a {
		total += bits.OnesCount32(a[i] ^ b[i])
	}
	return total
}
