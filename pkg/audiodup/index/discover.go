package index

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// discoverChunk is the number of file ids one worker claims at a time.
// Comparator cost varies a lot per file, so chunks stay small.
const discoverChunk = 4

// FindAllDuplicates discovers every group of mutually-duplicate files,
// iterating file ids in ascending order on the calling goroutine.
func (ix *Index) FindAllDuplicates() []DuplicateGroup {
	s := ix.snapshot()
	if len(s.files) == 0 {
		return nil
	}

	processed := newProcessedSet(len(s.files))
	var raw [][]int
	for fileID := range s.files {
		if group := s.proposeGroup(fileID, processed); group != nil {
			raw = append(raw, group)
		}
	}
	return s.mergeGroups(raw)
}

// FindAllDuplicatesParallel runs discovery across numWorkers goroutines
// (NumCPU when <= 0) with dynamic chunked scheduling. The processed bitset
// is read without coordination and only prunes work; the union-find merge
// makes the result independent of scheduling.
func (ix *Index) FindAllDuplicatesParallel(numWorkers int) []DuplicateGroup {
	s := ix.snapshot()
	if len(s.files) == 0 {
		return nil
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(s.files) {
		numWorkers = len(s.files)
	}

	processed := newProcessedSet(len(s.files))
	var next atomic.Int64

	var mu sync.Mutex
	var raw [][]int

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			var local [][]int
			for {
				start := int(next.Add(discoverChunk)) - discoverChunk
				if start >= len(s.files) {
					break
				}
				end := start + discoverChunk
				if end > len(s.files) {
					end = len(s.files)
				}
				for fileID := start; fileID < end; fileID++ {
					if group := s.proposeGroup(fileID, processed); group != nil {
						local = append(local, group)
					}
				}
			}
			if len(local) > 0 {
				mu.Lock()
				raw = append(raw, local...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return s.mergeGroups(raw)
}

// proposeGroup compares one file against its index candidates and returns
// the confirmed duplicate set (including fileID) when it has at least two
// members. Members of a confirmed group are marked processed so other
// workers skip them; the marking is best-effort only.
func (s snapshot) proposeGroup(fileID int, processed *processedSet) []int {
	if processed.get(fileID) {
		return nil
	}
	entry := s.files[fileID]
	if entry == nil || entry.Fingerprint == nil {
		processed.set(fileID)
		return nil
	}

	group := []int{fileID}
	for _, candidate := range s.candidates(entry.Fingerprint) {
		if candidate == fileID || processed.get(candidate) {
			continue
		}
		other := s.files[candidate]
		if other == nil || other.Fingerprint == nil {
			continue
		}
		if s.comparator.Compare(entry.Fingerprint, other.Fingerprint).IsDuplicate {
			group = append(group, candidate)
		}
	}

	if len(group) < 2 {
		processed.set(fileID)
		return nil
	}
	processed.setAll(group)
	return group
}

// mergeGroups is the source of truth for the final result: proposed groups
// are unioned into disjoint classes, per-group statistics are computed from
// fresh pairwise comparisons, and the output ordering is fixed.
func (s snapshot) mergeGroups(raw [][]int) []DuplicateGroup {
	if len(raw) == 0 {
		return nil
	}

	uf := newUnionFind(len(s.files))
	for _, group := range raw {
		for _, id := range group[1:] {
			uf.union(group[0], id)
		}
	}

	members := make(map[int][]int)
	for _, group := range raw {
		for _, id := range group {
			root := uf.find(id)
			members[root] = append(members[root], id)
		}
	}

	groups := make([]DuplicateGroup, 0, len(members))
	for _, ids := range members {
		ids = dedupSorted(ids)
		if len(ids) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{
			FileIDs:       ids,
			AvgSimilarity: s.averageSimilarity(ids),
		})
	}

	// Strongest groups first; equal averages fall back to the lowest member
	// id so repeated runs emit identical lists.
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].AvgSimilarity != groups[b].AvgSimilarity {
			return groups[a].AvgSimilarity > groups[b].AvgSimilarity
		}
		return groups[a].FileIDs[0] < groups[b].FileIDs[0]
	})
	return groups
}

func dedupSorted(ids []int) []int {
	sort.Ints(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

// averageSimilarity is the mean comparator similarity over all unordered
// pairs in the group.
func (s snapshot) averageSimilarity(ids []int) float64 {
	total := 0.0
	pairs := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := s.files[ids[i]], s.files[ids[j]]
			if a == nil || b == nil || a.Fingerprint == nil || b.Fingerprint == nil {
				continue
			}
			total += s.comparator.Compare(a.Fingerprint, b.Fingerprint).SimilarityScore
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}
