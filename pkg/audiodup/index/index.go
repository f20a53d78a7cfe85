// Package index maintains the inverted hash index over registered
// fingerprints and discovers groups of mutually-duplicate files.
//
// The Index owns every fingerprint handed to it; callers work with dense
// integer file ids and read-only FileEntry views whose lifetime is tied to
// the Index. A single-writer-multiple-readers discipline guards the file
// table and the posting lists: AddFile, AddFilesBatch, Clear and
// SetHashThreshold take the write lock, everything else reads.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

// ErrNotInitialized marks an index that is not available for use. The Index
// methods themselves never return it: on an empty or cleared index they
// return empty results. The service's ErrClosed wraps it.
var ErrNotInitialized = errors.New("index not initialized")

// DefaultHashThreshold is the minimum number of distinct hash hits for a
// file to become a candidate.
const DefaultHashThreshold = 5

// Posting records one occurrence of a 16-bit hash: which file, and at which
// word position.
type Posting struct {
	FileID   uint32
	Position uint32
}

// FileEntry pairs a registered path with its fingerprint. Entries are owned
// by the Index; callers must treat them as read-only.
type FileEntry struct {
	Path        string
	Fingerprint *fingerprint.Fingerprint
}

// File is one (path, fingerprint) input for batch registration.
type File struct {
	Path        string
	Fingerprint *fingerprint.Fingerprint
}

// DuplicateGroup is a set of mutually-duplicate file ids (size >= 2) with
// the mean pairwise similarity across the group.
type DuplicateGroup struct {
	FileIDs       []int   `json:"file_ids"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// Index is the façade over the file table, the inverted hash index and the
// duplicate discovery engine.
type Index struct {
	mu            sync.RWMutex
	files         []*FileEntry
	postings      map[uint16][]Posting
	hashThreshold int

	comparator *compare.Comparator
}

// New returns an empty Index with a default comparator.
func New() *Index {
	return NewWithComparator(compare.New())
}

// NewWithComparator returns an empty Index using the given comparator for
// all duplicate decisions. A nil comparator gets the default.
func NewWithComparator(c *compare.Comparator) *Index {
	if c == nil {
		c = compare.New()
	}
	return &Index{
		postings:      make(map[uint16][]Posting),
		hashThreshold: DefaultHashThreshold,
		comparator:    c,
	}
}

// Comparator exposes the comparator so callers can tune thresholds directly.
func (ix *Index) Comparator() *compare.Comparator { return ix.comparator }

// AddFile registers a fingerprint and returns its dense file id. The
// fingerprint must satisfy the construction invariants; a nil fingerprint is
// rejected with ErrInvalidFingerprint.
func (ix *Index) AddFile(path string, fp *fingerprint.Fingerprint) (int, error) {
	if fp == nil || fp.Size() == 0 {
		return 0, fmt.Errorf("%w: nil or empty fingerprint for %s", fingerprint.ErrInvalidFingerprint, path)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.addLocked(path, fp), nil
}

// AddFilesBatch registers many fingerprints under a single write lock and
// returns their ids in input order. The batch is validated up front so a bad
// entry rejects the whole call before any mutation.
func (ix *Index) AddFilesBatch(files []File) ([]int, error) {
	for _, f := range files {
		if f.Fingerprint == nil || f.Fingerprint.Size() == 0 {
			return nil, fmt.Errorf("%w: nil or empty fingerprint for %s", fingerprint.ErrInvalidFingerprint, f.Path)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := make([]int, 0, len(files))
	for _, f := range files {
		ids = append(ids, ix.addLocked(f.Path, f.Fingerprint))
	}
	return ids, nil
}

func (ix *Index) addLocked(path string, fp *fingerprint.Fingerprint) int {
	id := len(ix.files)
	ix.files = append(ix.files, &FileEntry{Path: path, Fingerprint: fp})

	// Each word contributes exactly one posting, at its low-16-bit key, in
	// increasing position order.
	for pos, word := range fp.Data() {
		h := fingerprint.Hash16(word)
		ix.postings[h] = append(ix.postings[h], Posting{FileID: uint32(id), Position: uint32(pos)})
	}
	return id
}

// GetFile returns the entry for a file id, or false for an unknown id.
func (ix *Index) GetFile(fileID int) (*FileEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if fileID < 0 || fileID >= len(ix.files) {
		return nil, false
	}
	return ix.files[fileID], true
}

// FileCount returns the number of registered files.
func (ix *Index) FileCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.files)
}

// IndexSize returns the number of distinct 16-bit hash keys present.
func (ix *Index) IndexSize() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.postings)
}

// PostingCount returns the total number of postings across all keys.
func (ix *Index) PostingCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := 0
	for _, list := range ix.postings {
		total += len(list)
	}
	return total
}

// SetHashThreshold sets the minimum distinct-hash hit count for candidates.
func (ix *Index) SetHashThreshold(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: hash threshold %d below 1", compare.ErrInvalidConfiguration, n)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.hashThreshold = n
	return nil
}

// SetSimilarityThreshold delegates to the comparator snapshot.
func (ix *Index) SetSimilarityThreshold(v float64) error {
	return ix.comparator.SetSimilarityThreshold(v)
}

// SetBitErrorThreshold delegates to the comparator snapshot.
func (ix *Index) SetBitErrorThreshold(v float64) error {
	return ix.comparator.SetBitErrorThreshold(v)
}

// SetMaxAlignmentOffset delegates to the comparator snapshot.
func (ix *Index) SetMaxAlignmentOffset(n int) error {
	return ix.comparator.SetMaxAlignmentOffset(n)
}

// Clear drops all files and postings. The index is immediately reusable.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files = nil
	ix.postings = make(map[uint16][]Posting)
}

// Candidates returns the ids of files sharing at least hashThreshold
// distinct 16-bit hashes with the query fingerprint, ordered by hit count
// descending, ties by id ascending. A registered query's own id is included;
// callers skip self.
func (ix *Index) Candidates(fp *fingerprint.Fingerprint) []int {
	if fp == nil {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snapshotLocked().candidates(fp)
}

// CandidatesFor looks up a registered file and returns its candidates.
// Unknown ids yield an empty list.
func (ix *Index) CandidatesFor(fileID int) []int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if fileID < 0 || fileID >= len(ix.files) {
		return nil
	}
	return ix.snapshotLocked().candidates(ix.files[fileID].Fingerprint)
}

// snapshot is a read-consistent view captured under the read lock. The file
// slice and the posting lists are append-only between Clear calls, and
// snapshot() copies the posting map's key table, so discovery can run on a
// snapshot without holding the lock across comparator calls.
type snapshot struct {
	files         []*FileEntry
	postings      map[uint16][]Posting
	hashThreshold int
	comparator    *compare.Comparator
}

func (ix *Index) snapshotLocked() snapshot {
	return snapshot{
		files:         ix.files,
		postings:      ix.postings,
		hashThreshold: ix.hashThreshold,
		comparator:    ix.comparator,
	}
}

func (ix *Index) snapshot() snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := ix.snapshotLocked()
	// A later AddFile writes into ix.postings; discovery reads its own copy.
	postings := make(map[uint16][]Posting, len(s.postings))
	for h, list := range s.postings {
		postings[h] = list
	}
	s.postings = postings
	return s
}

func (s snapshot) candidates(fp *fingerprint.Fingerprint) []int {
	// Each distinct query hash contributes one hit per posting.
	hits := make(map[uint32]int)
	for h := range fp.HashSet() {
		for _, posting := range s.postings[h] {
			hits[posting.FileID]++
		}
	}

	ids := make([]int, 0, len(hits))
	for id, count := range hits {
		if count >= s.hashThreshold {
			ids = append(ids, int(id))
		}
	}

	sort.Slice(ids, func(a, b int) bool {
		ca, cb := hits[uint32(ids[a])], hits[uint32(ids[b])]
		if ca != cb {
			return ca > cb
		}
		return ids[a] < ids[b]
	})
	return ids
}
