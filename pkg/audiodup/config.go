package audiodup

import (
	"os"

	"github.com/mcande21/audio-duplicates/internal/preprocess"
	"github.com/mcande21/audio-duplicates/pkg/audiodup/compare"
	"github.com/mcande21/audio-duplicates/pkg/logger"
)

// Config collects service construction options.
type Config struct {
	CachePath  string // "" disables the fingerprint cache
	TempDir    string
	Workers    int
	Sliding    bool // use sliding-window comparison for pairwise CompareFiles
	Comparator compare.Config
	Preprocess preprocess.Config
	Logger     *logger.Logger
	Producer   Producer
	Cache      Cache
}

// Option mutates the service configuration.
type Option func(*Config)

// WithCachePath sets the sqlite fingerprint cache location. Empty disables
// caching.
func WithCachePath(path string) Option {
	return func(c *Config) { c.CachePath = path }
}

// WithTempDir sets the directory for intermediate WAV files.
func WithTempDir(dir string) Option {
	return func(c *Config) { c.TempDir = dir }
}

// WithWorkers bounds fingerprinting and discovery concurrency.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithSlidingWindow makes CompareFiles use the sliding-window mode.
func WithSlidingWindow() Option {
	return func(c *Config) { c.Sliding = true }
}

// WithComparatorConfig sets the full comparator configuration.
func WithComparatorConfig(cfg compare.Config) Option {
	return func(c *Config) { c.Comparator = cfg }
}

// WithPreprocessConfig sets the producer-side preprocessing configuration.
func WithPreprocessConfig(cfg preprocess.Config) Option {
	return func(c *Config) { c.Preprocess = cfg }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

// WithProducer replaces the default ffmpeg+fpcalc producer.
func WithProducer(p Producer) Option {
	return func(c *Config) { c.Producer = p }
}

// WithCache replaces the default sqlite-backed fingerprint cache.
func WithCache(cache Cache) Option {
	return func(c *Config) { c.Cache = cache }
}

func defaultConfig() *Config {
	return &Config{
		TempDir:    os.TempDir(),
		Comparator: compare.DefaultConfig(),
		Preprocess: preprocess.DefaultConfig(),
	}
}
