package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// compressWords LZ4-compresses the little-endian byte serialization of the
// sub-fingerprint words. Incompressible sequences fall back to the raw bytes
// (signalled by a zero compressed length from lz4).
func compressWords(words []uint32) ([]byte, bool, error) {
	raw := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}

	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, dst)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(raw) {
		return raw, false, nil
	}
	return dst[:n], true, nil
}

// decompressWords reverses compressWords given the stored word count.
func decompressWords(blob []byte, wordCount int, compressed bool) ([]uint32, error) {
	raw := blob
	if compressed {
		raw = make([]byte, 4*wordCount)
		n, err := lz4.UncompressBlock(blob, raw)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		raw = raw[:n]
	}
	if len(raw) != 4*wordCount {
		return nil, fmt.Errorf("fingerprint blob holds %d bytes, want %d", len(raw), 4*wordCount)
	}

	words := make([]uint32, wordCount)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}
