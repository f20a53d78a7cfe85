// Package audiodup is the façade over the duplicate-detection pipeline:
// fingerprint production, the in-memory index, the fingerprint cache, and
// duplicate discovery.
package audiodup

import (
	"context"
	"fmt"
	"time"

	"github.com/mcande21/audio-duplicates/internal/producer"
	"github.com/mcande21/audio-duplicates/internal/scan"
	"github.com/mcande21/audio-duplicates/internal/storage"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/index"
	"github.com/mcande21/audio-duplicates/pkg/logger"
)

// ErrClosed is returned for operations on a closed service. It wraps
// index.ErrNotInitialized so callers can test either way.
var ErrClosed = fmt.Errorf("audiodup: service is closed: %w", index.ErrNotInitialized)

// Producer turns an audio file into a fingerprint.
type Producer interface {
	Fingerprint(ctx context.Context, path string) (*fingerprint.Fingerprint, error)
}

// Cache persists fingerprints between scans.
type Cache interface {
	Lookup(path string, mtimeNS, sizeBytes int64) (*fingerprint.Fingerprint, bool, error)
	Save(fp *fingerprint.Fingerprint, mtimeNS, sizeBytes int64) error
}

// ScanResult is the outcome of one directory scan.
type ScanResult struct {
	Root         string
	FilesScanned int
	Groups       []index.DuplicateGroup
	Elapsed      time.Duration
}

// Service wires the pipeline together. Safe for concurrent use after
// construction; Close is not.
type Service struct {
	cfg      *Config
	index    *index.Index
	producer Producer
	cache    Cache
	store    *storage.Store // owned sqlite store, nil when caller supplied Cache
	log      *logger.Logger
	closed   bool
}

// NewService builds a service from options.
func NewService(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	comparator, err := compare.NewWithConfig(cfg.Comparator)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:   cfg,
		index: index.NewWithComparator(comparator),
		log:   cfg.Logger,
	}

	if cfg.Producer != nil {
		s.producer = cfg.Producer
	} else {
		p := producer.New(cfg.TempDir)
		p.Preprocess = cfg.Preprocess
		p.Log = cfg.Logger
		s.producer = p
	}

	switch {
	case cfg.Cache != nil:
		s.cache = cfg.Cache
	case cfg.CachePath != "":
		store, err := storage.Open(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("opening fingerprint cache: %w", err)
		}
		s.store = store
		s.cache = store
	}

	return s, nil
}

// Index exposes the underlying index for configuration and inspection.
func (s *Service) Index() *index.Index { return s.index }

// AddFile fingerprints one file and registers it, returning its file id.
func (s *Service) AddFile(ctx context.Context, path string) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	fp, err := s.producer.Fingerprint(ctx, path)
	if err != nil {
		return 0, err
	}
	return s.index.AddFile(path, fp)
}

// ScanDirectory fingerprints every audio file under root, runs parallel
// duplicate discovery, and records the scan in the cache database when one
// is attached. progress may be nil.
func (s *Service) ScanDirectory(ctx context.Context, root string, progress func(done, total int)) (*ScanResult, error) {
	if s.closed {
		return nil, ErrClosed
	}
	started := time.Now()

	runner := &scan.Runner{
		Producer: s.producer,
		Cache:    s.cache,
		Index:    s.index,
		Log:      s.log,
		Workers:  s.cfg.Workers,
		Progress: progress,
	}
	scanned, err := runner.Run(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	s.log.Infof("indexed %d files from %s", scanned, root)

	groups := s.index.FindAllDuplicatesParallel(s.cfg.Workers)
	elapsed := time.Since(started)
	s.log.Infof("found %d duplicate group(s) in %s", len(groups), elapsed.Round(time.Millisecond))

	if s.store != nil {
		if _, err := s.store.RecordScan(root, scanned, len(groups), started, time.Now()); err != nil {
			s.log.Warnf("recording scan: %v", err)
		}
	}

	return &ScanResult{
		Root:         root,
		FilesScanned: scanned,
		Groups:       groups,
		Elapsed:      elapsed,
	}, nil
}

// CompareFiles fingerprints two files and compares them directly, using the
// sliding-window mode when configured.
func (s *Service) CompareFiles(ctx context.Context, pathA, pathB string) (compare.MatchResult, error) {
	if s.closed {
		return compare.MatchResult{}, ErrClosed
	}

	fpA, err := s.producer.Fingerprint(ctx, pathA)
	if err != nil {
		return compare.MatchResult{}, fmt.Errorf("fingerprinting %s: %w", pathA, err)
	}
	fpB, err := s.producer.Fingerprint(ctx, pathB)
	if err != nil {
		return compare.MatchResult{}, fmt.Errorf("fingerprinting %s: %w", pathB, err)
	}

	comparator := s.index.Comparator()
	if s.cfg.Sliding {
		return comparator.CompareSlidingWindow(fpA, fpB), nil
	}
	return comparator.Compare(fpA, fpB), nil
}

// CacheStats returns the hit/miss counters of the service's own sqlite
// cache. They are zero when no cache path is set or when the cache was
// supplied through WithCache.
func (s *Service) CacheStats() (hits, misses int64) {
	if s.store == nil {
		return 0, 0
	}
	return s.store.Stats()
}

// Close releases the cache database. The in-memory index stays readable.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// ensure the sqlite store satisfies the cache surface.
var _ Cache = (*storage.Store)(nil)
