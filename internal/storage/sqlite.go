// Package storage caches fingerprints in sqlite between scans so unchanged
// files are not decoded and fingerprinted again. Word sequences are stored
// LZ4-compressed; cache entries are keyed on path and invalidated by
// modification time and size.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
)

// DefaultDBFile is the cache database created when no path is configured.
const DefaultDBFile = "audiodup-cache.sqlite3"

var errStoreNil = errors.New("storage: store is nil")

// Store is the sqlite-backed fingerprint cache.
type Store struct {
	DB *gorm.DB
	db *sql.DB

	hits   atomic.Int64
	misses atomic.Int64
}

// CachedFingerprint is one cached fingerprint row.
type CachedFingerprint struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Path       string `gorm:"uniqueIndex:idx_path"`
	MTimeNS    int64
	SizeBytes  int64
	SampleRate int
	Duration   float64
	WordCount  int
	Compressed bool
	Blob       []byte
	CreatedAt  time.Time
}

// ScanRecord summarizes one completed scan run.
type ScanRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Root         string
	FilesScanned int
	GroupsFound  int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Open creates or opens the cache database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite cache: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CachedFingerprint{}, &ScanRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the cached fingerprint for path when the stored mtime and
// size still match, or ok=false on a miss.
func (s *Store) Lookup(path string, mtimeNS, sizeBytes int64) (*fingerprint.Fingerprint, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, errStoreNil
	}

	var row CachedFingerprint
	err := s.DB.Where("path = ?", path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache for %s: %w", path, err)
	}
	if row.MTimeNS != mtimeNS || row.SizeBytes != sizeBytes {
		s.misses.Add(1)
		return nil, false, nil
	}

	words, err := decompressWords(row.Blob, row.WordCount, row.Compressed)
	if err != nil {
		// A corrupt blob is a miss, not a fault; the caller re-fingerprints.
		s.misses.Add(1)
		return nil, false, nil
	}

	fp, err := fingerprint.New(words, row.SampleRate, row.Duration, path)
	if err != nil {
		s.misses.Add(1)
		return nil, false, nil
	}

	s.hits.Add(1)
	return fp, true, nil
}

// Save upserts the fingerprint for its path.
func (s *Store) Save(fp *fingerprint.Fingerprint, mtimeNS, sizeBytes int64) error {
	if s == nil || s.DB == nil {
		return errStoreNil
	}

	blob, compressed, err := compressWords(fp.Data())
	if err != nil {
		return err
	}

	row := CachedFingerprint{
		Path:       fp.FilePath(),
		MTimeNS:    mtimeNS,
		SizeBytes:  sizeBytes,
		SampleRate: fp.SampleRate(),
		Duration:   fp.Duration(),
		WordCount:  fp.Size(),
		Compressed: compressed,
		Blob:       blob,
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path = ?", row.Path).Delete(&CachedFingerprint{}).Error; err != nil {
			return fmt.Errorf("replacing cache row: %w", err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting cache row: %w", err)
		}
		return nil
	})
}

// RecordScan persists a scan summary and returns its id.
func (s *Store) RecordScan(root string, filesScanned, groupsFound int, startedAt, finishedAt time.Time) (string, error) {
	if s == nil || s.DB == nil {
		return "", errStoreNil
	}

	record := ScanRecord{
		ID:           uuid.NewString(),
		Root:         root,
		FilesScanned: filesScanned,
		GroupsFound:  groupsFound,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		return "", fmt.Errorf("recording scan: %w", err)
	}
	return record.ID, nil
}

// Stats returns the cache hit and miss counters for this session.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
