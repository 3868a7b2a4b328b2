// Package config provides the unified configuration for the engine.
// A single Config structure covers storage layout, materialization
// parallelism and logging, organized into logical sections.
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.Storage.Dir = "/var/lib/strata"
//	cfg.Performance.Workers = 8
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// Storage controls the on-disk segment layout
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Performance controls materialization parallelism
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Logging configures the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StorageConfig contains on-disk layout settings.
type StorageConfig struct {
	// Dir is the directory segment stores are written under
	Dir string `yaml:"dir" json:"dir"`
	// SegmentRows is the target row count per segment when the engine
	// chooses segmentation itself (constants, sequences, host imports)
	SegmentRows int `yaml:"segment_rows" json:"segment_rows"`
	// Compression selects the segment payload compression algorithm
	// (none, snappy, lz4, zstd, s2)
	Compression string `yaml:"compression" json:"compression"`
	// CompressionLevel controls the speed/ratio trade-off (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
}

// PerformanceConfig contains parallelism settings.
type PerformanceConfig struct {
	// Workers caps concurrent segment evaluations; 0 means NumCPU
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
	Encoding    string `yaml:"encoding" json:"encoding"`
}

// DefaultConfig returns a Config with sensible defaults. The storage
// directory defaults to a per-process temp directory and should normally
// be overridden.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:              os.TempDir(),
			SegmentRows:      64 * 1024,
			Compression:      "zstd",
			CompressionLevel: 3,
		},
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for consistency and fills defaulted
// fields.
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}
	if c.Storage.SegmentRows <= 0 {
		return fmt.Errorf("storage.segment_rows must be positive, got %d", c.Storage.SegmentRows)
	}
	switch c.Storage.Compression {
	case "", "none", "snappy", "lz4", "zstd", "s2":
	default:
		return fmt.Errorf("unknown compression algorithm %q", c.Storage.Compression)
	}
	if c.Storage.CompressionLevel < 0 || c.Storage.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be in [0,9], got %d", c.Storage.CompressionLevel)
	}
	if c.Performance.Workers < 0 {
		return fmt.Errorf("performance.workers must not be negative")
	}
	if c.Performance.Workers == 0 {
		c.Performance.Workers = runtime.NumCPU()
	}
	return nil
}

// Load reads a YAML configuration file, applying defaults for absent
// fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
