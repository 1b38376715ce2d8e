// Package config loads the tunables cmd/ptmdemo and the engine
// constructors need (region size, registry capacity, log level) from an
// optional TOML file, the corpus's usual format for this sort of static
// configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/registry"
)

// DefaultRegionSize is the size, in bytes, of a freshly created persistent
// region when no override is given: 512 MiB.
const DefaultRegionSize int64 = 512 << 20

// Config holds every tunable read from a TOML file plus their defaults.
type Config struct {
	// RegionSize is the size in bytes of a freshly created nvm region.
	RegionSize int64 `toml:"region_size"`
	// MaxThreads overrides registry.DefaultMaxThreads (0 keeps the default).
	MaxThreads int `toml:"max_threads"`
	// LogLevel names a logiface level ("debug", "info", "warning", "error",
	// "disabled"); unrecognized or empty values fall back to "info".
	LogLevel string `toml:"log_level"`
	// DataDir is the directory cmd/ptmdemo creates its region files in.
	DataDir string `toml:"data_dir"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		RegionSize: DefaultRegionSize,
		MaxThreads: registry.DefaultMaxThreads,
		LogLevel:   "info",
		DataDir:    ".",
	}
}

// Load reads path as TOML over top of Default(), so a file that sets only
// one field leaves the rest at their defaults. A missing path is not an
// error: it returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Level maps LogLevel to a logging.Level, defaulting to LevelInfo.
func (c Config) Level() logging.Level {
	switch c.LogLevel {
	case "debug":
		return logging.LevelDebug
	case "info", "":
		return logging.LevelInfo
	case "warning":
		return logging.LevelWarning
	case "error":
		return logging.LevelError
	case "disabled":
		return logging.LevelDisabled
	default:
		return logging.LevelInfo
	}
}
