// Package config provides configuration management for the frontier CLI.
// It defines configuration structures and default values for store,
// loading and persistence parameters.
package config

import (
	"time"

	"github.com/tidewalk/crawlspace/internal/frontier"
)

// Config holds the runtime configuration assembled from flags, environment
// variables and an optional config file.
type Config struct {
	// Store parameters
	Compressed        bool          `mapstructure:"compressed" yaml:"compressed"`                   // Hold URL ledgers compressed in memory
	DefaultDelay      time.Duration `mapstructure:"default_delay" yaml:"default_delay"`             // Politeness delay when robots.txt names none
	ExpectedURLs      uint          `mapstructure:"expected_urls" yaml:"expected_urls"`             // Sizing hint for the known-URL filter
	FalsePositiveRate float64       `mapstructure:"false_positive_rate" yaml:"false_positive_rate"` // Acceptable filter false-positive rate

	// Input filtering
	Strict         bool   `mapstructure:"strict" yaml:"strict"`                   // Aggressive canonicalization (query allowlist)
	Language       string `mapstructure:"language" yaml:"language"`               // Keep only URLs matching this language, empty keeps all
	KeepNavigation bool   `mapstructure:"keep_navigation" yaml:"keep_navigation"` // Keep category/pagination pages
	AllowExternal  bool   `mapstructure:"allow_external" yaml:"allow_external"`   // Keep off-site links when loading from HTML

	// Scheduling
	TimeLimit time.Duration `mapstructure:"time_limit" yaml:"time_limit"` // Planning horizon for schedules

	// Persistence
	SnapshotPath string `mapstructure:"snapshot" yaml:"snapshot"` // SQLite snapshot database, empty disables persistence
	Resume       bool   `mapstructure:"resume" yaml:"resume"`     // Restore the snapshot before loading input

	// Diagnostics
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose"`     // Dump frontier state on interrupt
	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // debug, info, warn or error
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`   // Log destination, empty logs to stderr
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultDelay:      frontier.DefaultDelay,
		ExpectedURLs:      1 << 20,
		FalsePositiveRate: 0.01,
		TimeLimit:         time.Hour,
		LogLevel:          "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DefaultDelay < 0 {
		return ErrInvalidDelay
	}

	if c.TimeLimit <= 0 {
		return ErrInvalidTimeLimit
	}

	if c.Resume && c.SnapshotPath == "" {
		return ErrResumeWithoutSnapshot
	}

	// Keep the known-URL filter usable when the rate is out of range
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 0.01
	}

	return nil
}

// StoreConfig maps the runtime configuration onto the frontier store's.
func (c *Config) StoreConfig() frontier.Config {
	return frontier.Config{
		Compressed:        c.Compressed,
		Language:          c.Language,
		Strict:            c.Strict,
		Verbose:           c.Verbose,
		DefaultDelay:      c.DefaultDelay,
		ExpectedURLs:      c.ExpectedURLs,
		FalsePositiveRate: c.FalsePositiveRate,
	}
}
