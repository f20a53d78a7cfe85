package index

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

const wordDuration = 0.124

func newFP(t *testing.T, data []uint32, path string) *fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.New(data, fingerprint.SampleRate, float64(len(data))*wordDuration, path)
	if err != nil {
		t.Fatalf("building fingerprint %s: %v", path, err)
	}
	return fp
}

func randomWords(seed int64, length int) []uint32 {
	rng := rand.New(rand.NewSource(seed))
	words := make([]uint32, length)
	for i := range words {
		words[i] = rng.Uint32()
	}
	return words
}

// mutate flips flips random bits of a copy of words.
func mutate(words []uint32, seed int64, flips int) []uint32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]uint32, len(words))
	copy(out, words)
	for i := 0; i < flips; i++ {
		out[rng.Intn(len(out))] ^= 1 << uint(rng.Intn(32))
	}
	return out
}

func TestAddFileLinearity(t *testing.T) {
	// One file, one id, one posting per word.
	ix := New()

	fp := newFP(t, randomWords(1, 150), "a.mp3")
	id, err := ix.AddFile("a.mp3", fp)
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("first id = %d, want 0", id)
	}
	if ix.FileCount() != 1 {
		t.Errorf("file count = %d, want 1", ix.FileCount())
	}
	if ix.PostingCount() != 150 {
		t.Errorf("posting count = %d, want 150", ix.PostingCount())
	}

	id2, err := ix.AddFile("b.mp3", newFP(t, randomWords(2, 80), "b.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if id2 != 1 {
		t.Errorf("second id = %d, want 1", id2)
	}
	if ix.PostingCount() != 230 {
		t.Errorf("posting count = %d, want 230", ix.PostingCount())
	}
}

func TestAddFileRejectsNil(t *testing.T) {
	ix := New()
	if _, err := ix.AddFile("a.mp3", nil); !errors.Is(err, fingerprint.ErrInvalidFingerprint) {
		t.Errorf("expected ErrInvalidFingerprint, got %v", err)
	}
}

func TestPostingRoundTrip(t *testing.T) {
	// Every word's hash has a posting at its position.
	ix := New()
	words := randomWords(3, 200)
	fp := newFP(t, words, "a.mp3")
	id, err := ix.AddFile("a.mp3", fp)
	if err != nil {
		t.Fatal(err)
	}

	for pos, w := range words {
		h := fingerprint.Hash16(w)
		found := false
		for _, posting := range ix.postings[h] {
			if posting.FileID == uint32(id) && posting.Position == uint32(pos) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("no posting for word %d (hash %#x) at position %d", w, h, pos)
		}
	}
}

func TestAddFilesBatch(t *testing.T) {
	ix := New()
	files := []File{
		{Path: "a.mp3", Fingerprint: newFP(t, randomWords(4, 100), "a.mp3")},
		{Path: "b.mp3", Fingerprint: newFP(t, randomWords(5, 100), "b.mp3")},
		{Path: "c.mp3", Fingerprint: newFP(t, randomWords(6, 100), "c.mp3")},
	}

	ids, err := ix.AddFilesBatch(files)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{0, 1, 2}) {
		t.Errorf("ids = %v, want [0 1 2]", ids)
	}

	// A nil entry rejects the whole batch before any mutation.
	before := ix.FileCount()
	_, err = ix.AddFilesBatch([]File{{Path: "d.mp3"}, {Path: "e.mp3", Fingerprint: files[0].Fingerprint}})
	if !errors.Is(err, fingerprint.ErrInvalidFingerprint) {
		t.Fatalf("expected ErrInvalidFingerprint, got %v", err)
	}
	if ix.FileCount() != before {
		t.Errorf("failed batch mutated the index: %d -> %d", before, ix.FileCount())
	}
}

func TestGetFile(t *testing.T) {
	ix := New()
	fp := newFP(t, randomWords(7, 50), "a.mp3")
	id, _ := ix.AddFile("a.mp3", fp)

	entry, ok := ix.GetFile(id)
	if !ok || entry.Path != "a.mp3" || entry.Fingerprint != fp {
		t.Errorf("GetFile(%d) = %+v, %v", id, entry, ok)
	}

	// Unknown ids are a missing value, not a fault.
	if _, ok := ix.GetFile(99); ok {
		t.Error("unknown id reported as present")
	}
	if _, ok := ix.GetFile(-1); ok {
		t.Error("negative id reported as present")
	}
}

func TestCandidates(t *testing.T) {
	ix := New()
	base := randomWords(8, 300)

	idA, _ := ix.AddFile("a.mp3", newFP(t, base, "a.mp3"))
	idB, _ := ix.AddFile("b.mp3", newFP(t, mutate(base, 9, 40), "b.mp3"))
	idC, _ := ix.AddFile("c.mp3", newFP(t, randomWords(10, 100), "c.mp3"))

	cands := ix.CandidatesFor(idA)

	// The query's own file is always its best candidate; the mutated copy
	// follows, the unrelated file must miss the hash threshold.
	if len(cands) < 2 || cands[0] != idA || cands[1] != idB {
		t.Fatalf("candidates = %v, want [%d %d ...]", cands, idA, idB)
	}
	for _, id := range cands {
		if id == idC {
			t.Errorf("unrelated file %d passed the hash threshold", idC)
		}
	}

	if got := ix.CandidatesFor(999); got != nil {
		t.Errorf("candidates for unknown id = %v, want nil", got)
	}
}

func TestCandidatesHashThreshold(t *testing.T) {
	ix := New()
	base := randomWords(11, 200)
	ix.AddFile("a.mp3", newFP(t, base, "a.mp3"))

	// With an impossible threshold nothing qualifies.
	if err := ix.SetHashThreshold(100000); err != nil {
		t.Fatal(err)
	}
	if cands := ix.Candidates(newFP(t, base, "q")); len(cands) != 0 {
		t.Errorf("candidates above impossible threshold: %v", cands)
	}

	if err := ix.SetHashThreshold(0); err == nil {
		t.Error("expected rejection of zero hash threshold")
	}
}

func TestFindAllDuplicatesGroups(t *testing.T) {
	// A base, two mutated copies of it, and two unrelated files
	// yield exactly one group.
	ix := New()
	base := randomWords(12, 400)

	x, _ := ix.AddFile("x.mp3", newFP(t, base, "x.mp3"))
	x1, _ := ix.AddFile("x1.mp3", newFP(t, mutate(base, 13, 20), "x1.mp3"))
	x2, _ := ix.AddFile("x2.mp3", newFP(t, mutate(base, 14, 35), "x2.mp3"))
	ix.AddFile("y.mp3", newFP(t, randomWords(15, 400), "y.mp3"))
	ix.AddFile("z.mp3", newFP(t, randomWords(16, 400), "z.mp3"))

	groups := ix.FindAllDuplicates()

	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}
	if !reflect.DeepEqual(groups[0].FileIDs, []int{x, x1, x2}) {
		t.Errorf("group members = %v, want [%d %d %d]", groups[0].FileIDs, x, x1, x2)
	}
	if groups[0].AvgSimilarity < 0.95 {
		t.Errorf("avg similarity = %v, want >= 0.95", groups[0].AvgSimilarity)
	}
}

func TestFindAllDuplicatesDisjointAndDeterministic(t *testing.T) {
	// Groups are disjoint and repeated runs are identical over a corpus
	// with two distinct clusters.
	ix := New()
	baseA := randomWords(17, 350)
	baseB := randomWords(18, 350)

	for i := 0; i < 3; i++ {
		ix.AddFile("a", newFP(t, mutate(baseA, int64(20+i), i*15), "a"))
	}
	for i := 0; i < 3; i++ {
		ix.AddFile("b", newFP(t, mutate(baseB, int64(30+i), i*15), "b"))
	}
	ix.AddFile("solo", newFP(t, randomWords(19, 350), "solo"))

	first := ix.FindAllDuplicates()
	if len(first) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(first), first)
	}

	seen := make(map[int]bool)
	for _, g := range first {
		if len(g.FileIDs) < 2 {
			t.Errorf("group of size %d emitted", len(g.FileIDs))
		}
		for _, id := range g.FileIDs {
			if seen[id] {
				t.Errorf("file %d appears in more than one group", id)
			}
			seen[id] = true
		}
	}

	second := ix.FindAllDuplicates()
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs produced different output")
	}
}

func TestFindAllDuplicatesParallelMatchesSequential(t *testing.T) {
	ix := New()
	rng := rand.New(rand.NewSource(40))
	var bases [][]uint32
	for c := 0; c < 4; c++ {
		bases = append(bases, randomWords(int64(50+c), 300))
	}
	for i := 0; i < 20; i++ {
		base := bases[rng.Intn(len(bases))]
		ix.AddFile("f", newFP(t, mutate(base, int64(100+i), rng.Intn(30)), "f"))
	}

	sequential := ix.FindAllDuplicates()
	for _, workers := range []int{1, 2, 8} {
		parallel := ix.FindAllDuplicatesParallel(workers)
		if !reflect.DeepEqual(sequential, parallel) {
			t.Errorf("parallel(%d) diverged from sequential:\n%+v\nvs\n%+v", workers, parallel, sequential)
		}
	}
}

func TestFindAllDuplicatesTransitiveClosure(t *testing.T) {
	// A~B and B~C land A, B, C in one group. C carries B's 60 bit
	// flips plus 60 more, so at these counts A~C holds as well.
	ix := New()
	base := randomWords(60, 400)

	a, _ := ix.AddFile("a", newFP(t, base, "a"))
	b, _ := ix.AddFile("b", newFP(t, mutate(base, 61, 60), "b"))
	c, _ := ix.AddFile("c", newFP(t, mutate(base, 61, 120), "c")) // same seed: c extends b's mutations

	groups := ix.FindAllDuplicates()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if !reflect.DeepEqual(groups[0].FileIDs, []int{a, b, c}) {
		t.Errorf("group = %v, want [%d %d %d]", groups[0].FileIDs, a, b, c)
	}
}

func TestFindAllDuplicatesEmptyAndNone(t *testing.T) {
	ix := New()
	if groups := ix.FindAllDuplicates(); groups != nil {
		t.Errorf("empty index returned %v", groups)
	}

	ix.AddFile("a", newFP(t, randomWords(70, 200), "a"))
	ix.AddFile("b", newFP(t, randomWords(71, 200), "b"))
	if groups := ix.FindAllDuplicates(); len(groups) != 0 {
		t.Errorf("unrelated files grouped: %+v", groups)
	}
}

func TestClear(t *testing.T) {
	ix := New()
	ix.AddFile("a", newFP(t, randomWords(80, 100), "a"))
	ix.Clear()

	if ix.FileCount() != 0 || ix.IndexSize() != 0 {
		t.Errorf("clear left %d files, %d hashes", ix.FileCount(), ix.IndexSize())
	}

	// The index is immediately reusable and ids restart from zero.
	id, err := ix.AddFile("b", newFP(t, randomWords(81, 100), "b"))
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("id after clear = %d, want 0", id)
	}
}
