package audiodup

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

// stubProducer serves canned fingerprints by base name, standing in for the
// ffmpeg+fpcalc pipeline.
type stubProducer struct {
	fingerprints map[string]*fingerprint.Fingerprint
}

func (s *stubProducer) Fingerprint(_ context.Context, path string) (*fingerprint.Fingerprint, error) {
	fp, ok := s.fingerprints[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("no canned fingerprint for %s", path)
	}
	return fp, nil
}

func words(seed int64, length int, flips int) []uint32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]uint32, length)
	for i := range out {
		out[i] = rng.Uint32()
	}
	mutator := rand.New(rand.NewSource(seed + 1000))
	for i := 0; i < flips; i++ {
		out[mutator.Intn(length)] ^= 1 << uint(mutator.Intn(32))
	}
	return out
}

func canned(t *testing.T, data []uint32, name string) *fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.New(data, fingerprint.SampleRate, float64(len(data))*0.124, name)
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

// setupTree creates empty placeholder audio files for the stub producer.
func setupTree(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanDirectoryFindsGroups(t *testing.T) {
	base := words(1, 300, 0)
	producer := &stubProducer{fingerprints: map[string]*fingerprint.Fingerprint{
		"song.mp3":      canned(t, base, "song.mp3"),
		"song-copy.mp3": canned(t, words(1, 300, 25), "song-copy.mp3"),
		"other.mp3":     canned(t, words(2, 300, 0), "other.mp3"),
	}}

	dir := setupTree(t, "song.mp3", "song-copy.mp3", "other.mp3")

	service, err := NewService(WithProducer(producer))
	if err != nil {
		t.Fatal(err)
	}
	defer service.Close()

	var lastDone, lastTotal int
	result, err := service.ScanDirectory(context.Background(), dir, func(done, total int) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.FilesScanned != 3 {
		t.Errorf("files scanned = %d, want 3", result.FilesScanned)
	}
	if lastDone != 3 || lastTotal != 3 {
		t.Errorf("progress ended at %d/%d, want 3/3", lastDone, lastTotal)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("groups = %+v, want exactly one", result.Groups)
	}
	if len(result.Groups[0].FileIDs) != 2 {
		t.Errorf("group size = %d, want 2", len(result.Groups[0].FileIDs))
	}
}

func TestScanDirectorySkipsFailingFiles(t *testing.T) {
	producer := &stubProducer{fingerprints: map[string]*fingerprint.Fingerprint{
		"good.mp3": canned(t, words(3, 200, 0), "good.mp3"),
		// broken.mp3 intentionally absent: the producer fails on it.
	}}

	dir := setupTree(t, "good.mp3", "broken.mp3")

	service, err := NewService(WithProducer(producer))
	if err != nil {
		t.Fatal(err)
	}
	defer service.Close()

	result, err := service.ScanDirectory(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesScanned != 1 {
		t.Errorf("files scanned = %d, want 1 (bad file skipped, scan continues)", result.FilesScanned)
	}
}

func TestAddFileAndCompareFiles(t *testing.T) {
	base := words(4, 250, 0)
	producer := &stubProducer{fingerprints: map[string]*fingerprint.Fingerprint{
		"a.mp3": canned(t, base, "a.mp3"),
		"b.mp3": canned(t, words(4, 250, 10), "b.mp3"),
	}}

	service, err := NewService(WithProducer(producer))
	if err != nil {
		t.Fatal(err)
	}
	defer service.Close()

	id, err := service.AddFile(context.Background(), "a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("first id = %d, want 0", id)
	}

	result, err := service.CompareFiles(context.Background(), "a.mp3", "b.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsDuplicate {
		t.Errorf("10-bit mutation not a duplicate: %+v", result)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cfg := compare.DefaultConfig()
	cfg.SimilarityThreshold = 7

	if _, err := NewService(WithComparatorConfig(cfg)); err == nil {
		t.Error("expected configuration rejection")
	}
}

func TestServiceClosed(t *testing.T) {
	service, err := NewService(WithProducer(&stubProducer{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := service.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := service.AddFile(context.Background(), "x.mp3"); err != ErrClosed {
		t.Errorf("AddFile on closed service = %v, want ErrClosed", err)
	}
	if _, err := service.ScanDirectory(context.Background(), ".", nil); err != ErrClosed {
		t.Errorf("ScanDirectory on closed service = %v, want ErrClosed", err)
	}
}
