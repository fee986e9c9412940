// Package config loads and validates glance configuration from YAML,
// applying defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete glance configuration.
type Config struct {
	// Root is the directory tree to index. Default: the user home dir.
	Root string `yaml:"root"`

	// IndexPath is where the index database lives.
	// Default: <user cache dir>/glance/index.db
	IndexPath string `yaml:"index_path"`

	Scan    ScanConfig    `yaml:"scan"`
	Watch   WatchConfig   `yaml:"watch"`
	Exclude ExcludeConfig `yaml:"exclude"`
	Logging LoggingConfig `yaml:"logging"`
}

// ScanConfig tunes scan behavior.
type ScanConfig struct {
	// MinFileSize is the smallest file worth indexing, in bytes.
	MinFileSize int64 `yaml:"min_file_size"`

	// BatchSize is the number of entries committed per transaction.
	BatchSize int `yaml:"batch_size"`

	// RescanInterval is how often serve triggers an incremental rescan,
	// as a duration string (e.g. "10m"). Empty or "0" disables the ticker.
	RescanInterval string `yaml:"rescan_interval"`
}

// RescanIntervalDuration parses RescanInterval, falling back to fallback on
// an empty or malformed value.
func (c ScanConfig) RescanIntervalDuration(fallback time.Duration) time.Duration {
	if c.RescanInterval == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.RescanInterval)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// WatchConfig tunes the filesystem watcher.
type WatchConfig struct {
	// Enabled turns the watcher on in serve mode.
	Enabled bool `yaml:"enabled"`

	// DebounceWindow is how long to coalesce rapid events, as a duration
	// string (e.g. "200ms").
	DebounceWindow string `yaml:"debounce_window"`
}

// DebounceWindowDuration parses DebounceWindow, falling back to fallback on
// an empty or malformed value.
func (c WatchConfig) DebounceWindowDuration(fallback time.Duration) time.Duration {
	if c.DebounceWindow == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.DebounceWindow)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ExcludeConfig adds user exclusions on top of the built-in policy.
type ExcludeConfig struct {
	// Dirs are extra directory basenames to skip.
	Dirs []string `yaml:"dirs"`

	// Globs are extra basename globs to skip.
	Globs []string `yaml:"globs"`
}

// LoggingConfig configures structured file logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Root:      home,
		IndexPath: filepath.Join(cacheDir(), "index.db"),
		Scan: ScanConfig{
			MinFileSize:    100,
			BatchSize:      1000,
			RescanInterval: "10m",
		},
		Watch: WatchConfig{
			Enabled:        true,
			DebounceWindow: "200ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			FilePath:  filepath.Join(cacheDir(), "logs", "glance.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads configuration from path, layered over defaults. A missing file
// is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if c.Scan.MinFileSize < 0 {
		return fmt.Errorf("scan.min_file_size must not be negative")
	}
	if c.Scan.BatchSize < 0 {
		return fmt.Errorf("scan.batch_size must not be negative")
	}
	if c.Scan.RescanInterval != "" {
		if _, err := time.ParseDuration(c.Scan.RescanInterval); err != nil {
			return fmt.Errorf("scan.rescan_interval: %w", err)
		}
	}
	if c.Watch.DebounceWindow != "" {
		if _, err := time.ParseDuration(c.Watch.DebounceWindow); err != nil {
			return fmt.Errorf("watch.debounce_window: %w", err)
		}
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "glance", "config.yaml")
}

// cacheDir returns the per-user glance cache directory.
func cacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "glance")
}
