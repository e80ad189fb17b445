// Package config handles jcontainers.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chloeruka/jcontainers/collections"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "jcontainers.toml"

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a jcontainers.toml file.
type Config struct {
	Autorelease Autorelease `toml:"autorelease"`
	Storage     Storage     `toml:"storage"`
	Log         Log         `toml:"log"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-"`
}

// Autorelease configures the deferred release worker.
type Autorelease struct {
	Lifetime time.Duration `toml:"lifetime"`
	Interval time.Duration `toml:"interval"`
}

// Storage configures where save slots live.
type Storage struct {
	Database string `toml:"database"`
}

// Log configures the log backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Autorelease: Autorelease{
			Lifetime: collections.DefaultAutoreleaseLifetime,
			Interval: collections.DefaultAutoreleaseInterval,
		},
		Storage: Storage{Database: "saves.db"},
		Log:     Log{Verbosity: 1},
	}
}

// Load parses the config file in dir. Keys missing from the file keep their
// Default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a config file, then loads and
// returns it. Returns nil if no config file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	if c.Autorelease.Lifetime <= 0 {
		return fmt.Errorf("%w: autorelease.lifetime must be positive, got %s", ErrInvalid, c.Autorelease.Lifetime)
	}
	if c.Autorelease.Interval <= 0 {
		return fmt.Errorf("%w: autorelease.interval must be positive, got %s", ErrInvalid, c.Autorelease.Interval)
	}
	if c.Storage.Database == "" {
		return fmt.Errorf("%w: storage.database is empty", ErrInvalid)
	}
	return nil
}

// StoreOptions returns the collections options described by c.
func (c *Config) StoreOptions() collections.Options {
	return collections.Options{
		Lifetime: c.Autorelease.Lifetime,
		Interval: c.Autorelease.Interval,
	}
}

// DatabasePath returns the slot database path, resolved against Dir when
// relative.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Storage.Database)
}

// LogFile returns the log file path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.resolve(c.Log.File)
	return &path
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}
