// Package config loads the translator's process-wide configuration (spec
// §6 External Interfaces): strict_mode and log_level, plus the optional
// cache persistence seam.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the knobs the frame hook and cache consult at runtime.
type Config struct {
	// StrictMode re-raises translation errors instead of falling back to
	// the host's default evaluation (spec §5, InstructionTranslatorCache).
	StrictMode bool `yaml:"strict_mode"`

	// LogLevel gates tracelog verbosity, 0 (silent) to 5 (per-instruction).
	LogLevel int `yaml:"log_level"`

	// CacheDB, if non-empty, is a path to a SQLite file used to persist
	// guard-hit statistics across process restarts (SPEC_FULL §3). Empty
	// disables persistence; the in-memory cache still works.
	CacheDB string `yaml:"cache_db"`
}

// Default returns the zero-config translator: non-strict, quiet, no
// persistence, matching the host's default-evaluation fallback behavior.
func Default() *Config {
	return &Config{
		StrictMode: false,
		LogLevel:   1,
		CacheDB:    "",
	}
}

// Load reads a YAML configuration file. A missing file is not an error —
// it yields Default() — because most embeddings of this translator never
// ship a config file at all.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.LogLevel < 0 {
		cfg.LogLevel = 0
	}
	if cfg.LogLevel > 5 {
		cfg.LogLevel = 5
	}
	return cfg, nil
}
