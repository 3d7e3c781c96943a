// Package config loads the runtime's optional TOML configuration file
// (SPEC_FULL.md §2.2). A non-zero heap_size_override takes priority over the
// heap-size environment variables; when it is unset, those variables decide.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds settings that the reference implementation either
// hard-codes or controls only via compile-time flags. None of these change
// the meaning of any spec.md operation; they select between two documented,
// equally valid behaviors (e.g. ordered vs. unordered RMA).
type Config struct {
	// HeapSizeOverride, if non-zero, takes priority over the entire
	// environment-variable list in spec.md §4.3.
	HeapSizeOverride int64 `toml:"heap_size_override"`

	// OrderedRMA selects the ordered-RMA build option from spec.md §4.5 and
	// §9 (the source's ENABLE_RMA_ORDERING flag), at runtime instead of
	// compile time.
	OrderedRMA bool `toml:"ordered_rma"`

	// CommCacheSize is loaded and defaulted to 16 if zero, but nothing reads
	// it: internal/activeset's communicator cache is fixed at 16 slots
	// (spec.md §3, "bounded, e.g. 16 slots") whatever this field holds.
	CommCacheSize int `toml:"comm_cache_size"`

	// LogLevel is a zerolog level name ("debug", "info", "warn", "error").
	// Defaults to "info".
	LogLevel string `toml:"log_level"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		CommCacheSize: 16,
		LogLevel:      "info",
	}
}

// Load reads path (if non-empty and it exists) as TOML, overlaying it on
// Default. A missing path is not an error: the config file is optional.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.CommCacheSize <= 0 {
		cfg.CommCacheSize = 16
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}
