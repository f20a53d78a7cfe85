// Package scan discovers audio files under a root and drives the
// fingerprint-and-index pipeline with bounded concurrency. A file that fails
// to fingerprint is logged and skipped; the scan continues.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/fingerprint"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/index"
	"github.com/mcande21/audio-duplicates/pkg/logger"
)

// audioExtensions are the file types handed to the producer.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".wma":  true,
	".aiff": true,
}

// IsAudioFile reports whether path has a recognized audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Walk returns the audio files under root in sorted order.
func Walk(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Producer turns one audio file into a fingerprint.
type Producer interface {
	Fingerprint(ctx context.Context, path string) (*fingerprint.Fingerprint, error)
}

// Cache looks fingerprints up between scans. Either method may be a no-op.
type Cache interface {
	Lookup(path string, mtimeNS, sizeBytes int64) (*fingerprint.Fingerprint, bool, error)
	Save(fp *fingerprint.Fingerprint, mtimeNS, sizeBytes int64) error
}

// Runner owns one scan's moving parts.
type Runner struct {
	Producer Producer
	Cache    Cache // optional
	Index    *index.Index
	Log      *logger.Logger
	Workers  int
	Progress func(done, total int) // optional, called after each file
}

// Run fingerprints every audio file under root and registers the results in
// the index. Registration happens in path order regardless of which worker
// finished first, so file ids are deterministic for a given tree. Returns
// the number of files successfully indexed.
func (r *Runner) Run(ctx context.Context, root string) (int, error) {
	files, err := Walk(root)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	log := r.Log
	if log == nil {
		log = logger.GetLogger()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*fingerprint.Fingerprint, len(files))
	var done int

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var progressCh chan int
	progressDone := make(chan struct{})
	if r.Progress != nil {
		progressCh = make(chan int, len(files))
		go func() {
			defer close(progressDone)
			for range progressCh {
				done++
				r.Progress(done, len(files))
			}
		}()
	} else {
		close(progressDone)
	}

	for i, path := range files {
		g.Go(func() error {
			fp, err := r.fingerprintOne(ctx, path)
			if err != nil {
				log.Warnf("skipping %s: %v", path, err)
			} else {
				results[i] = fp
			}
			if progressCh != nil {
				progressCh <- 1
			}
			return ctx.Err()
		})
	}

	err = g.Wait()
	if progressCh != nil {
		close(progressCh)
	}
	<-progressDone
	if err != nil {
		return 0, err
	}

	batch := make([]index.File, 0, len(files))
	for i, fp := range results {
		if fp != nil {
			batch = append(batch, index.File{Path: files[i], Fingerprint: fp})
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if _, err := r.Index.AddFilesBatch(batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// fingerprintOne resolves one file through the cache or the producer.
func (r *Runner) fingerprintOne(ctx context.Context, path string) (*fingerprint.Fingerprint, error) {
	var mtimeNS, size int64
	if info, err := os.Stat(path); err == nil {
		mtimeNS = info.ModTime().UnixNano()
		size = info.Size()
	}

	if r.Cache != nil {
		if fp, ok, err := r.Cache.Lookup(path, mtimeNS, size); err == nil && ok {
			return fp, nil
		}
	}

	fp, err := r.Producer.Fingerprint(ctx, path)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		if err := r.Cache.Save(fp, mtimeNS, size); err != nil {
			logger.GetLogger().Warnf("caching fingerprint for %s: %v", path, err)
		}
	}
	return fp, nil
}
