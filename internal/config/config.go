// Package config resolves blz's data/config directories and loads the
// engine-wide KDL tuning file, following the teacher's layered
// Load/LoadKDL/Validator structure (internal/config in the teacher)
// adapted from project-local code-indexing knobs to blz's fetch/
// index/search tuning (spec §6 "Configuration").
package config

import (
	"os"
	"path/filepath"
)

// Config holds every tunable knob for one blz engine instance. Zero
// value is never used directly: Load always returns a value merged
// with Default().
type Config struct {
	DataDir   string
	ConfigDir string
	Fetch     Fetch
	Index     Index
	Search    Search
	Log       Log
}

// Fetch tunes internal/fetcher.
type Fetch struct {
	TimeoutSec    int
	MaxBytes      int64
	RetryAttempts int
	BaseDelayMs   int
	PreferFull    bool
}

// Index holds index tuning. Only SnippetMaxLen reaches internal/index;
// HeadingsBoost and PhraseBoost are parsed and validated but not read
// there, and scoring uses internal/index's fixed HeadingsBoost and
// PhraseBoostMultiplier constants.
type Index struct {
	HeadingsBoost float64
	PhraseBoost   float64
	SnippetMaxLen int
}

// Search bounds the public search surface's page size (spec §6).
type Search struct {
	DefaultLimit int
	MaxLimit     int
}

// Log holds the log level from blz.kdl. internal/obslog does not read
// it: obslog.Default takes its level from BLZ_LOG_LEVEL only.
type Log struct {
	Level string
}

// envDataDir and envConfigDir are the override variables from spec §6.
const (
	envDataDir   = "BLZ_DATA_DIR"
	envConfigDir = "BLZ_CONFIG_DIR"
)

// Default returns the engine's built-in tuning, used whenever no
// blz.kdl is present or a field is left unset in one.
func Default() *Config {
	return &Config{
		DataDir:   ResolveDataDir(),
		ConfigDir: ResolveConfigDir(),
		Fetch: Fetch{
			TimeoutSec:    30,
			MaxBytes:      10 * 1024 * 1024,
			RetryAttempts: 3,
			BaseDelayMs:   250,
			PreferFull:    true,
		},
		Index: Index{
			HeadingsBoost: 3.0,
			PhraseBoost:   1.2,
			SnippetMaxLen: 300,
		},
		Search: Search{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Log: Log{Level: "info"},
	}
}

// ResolveDataDir honors BLZ_DATA_DIR, defaulting to ~/.blz/data.
func ResolveDataDir() string {
	if v := os.Getenv(envDataDir); v != "" {
		return v
	}
	return filepath.Join(homeOrDot(), ".blz", "data")
}

// ResolveConfigDir honors BLZ_CONFIG_DIR, defaulting to ~/.blz/config.
func ResolveConfigDir() string {
	if v := os.Getenv(envConfigDir); v != "" {
		return v
	}
	return filepath.Join(homeOrDot(), ".blz", "config")
}

func homeOrDot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Load resolves directories, loads blz.kdl from the config directory
// if present, validates the result, and applies smart defaults for
// anything left unset.
func Load() (*Config, error) {
	cfg := Default()

	fileCfg, err := LoadKDL(cfg.ConfigDir)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		cfg = fileCfg
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
