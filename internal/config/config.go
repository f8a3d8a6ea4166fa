// Package config provides the application configuration, loaded from an
// optional YAML file with sane defaults for everything else.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Harvest HarvestConfig `yaml:"harvest"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DataConfig holds storage locations
type DataConfig struct {
	Dir       string `yaml:"dir"`        // base directory for the database and outputs
	OutputDir string `yaml:"output_dir"` // default directory for tabular output files
}

// HarvestConfig holds engine defaults applied when a session request leaves
// them unset.
type HarvestConfig struct {
	ChunkSize          int           `yaml:"chunk_size"`
	Workers            int           `yaml:"workers"`
	TaskTimeout        time.Duration `yaml:"task_timeout"`
	ChunkPause         time.Duration `yaml:"chunk_pause"`          // wait between chunks
	ControlPollEvery   time.Duration `yaml:"control_poll_every"`   // poll interval during the chunk pause
	ProgressEveryItems int           `yaml:"progress_every_items"` // progress event throttle
	CrawlDepth         int           `yaml:"crawl_depth"`
	CrawlFileCap       int           `yaml:"crawl_file_cap"`
	CleanupAfterDays   int           `yaml:"cleanup_after_days"`
}

var (
	mu  sync.RWMutex
	cfg *Config
)

// GetDefaultConfig returns the built-in defaults
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Data: DataConfig{
			Dir:       "./data",
			OutputDir: "./data/output",
		},
		Harvest: HarvestConfig{
			ChunkSize:          100,
			Workers:            4,
			TaskTimeout:        60 * time.Second,
			ChunkPause:         2 * time.Second,
			ControlPollEvery:   250 * time.Millisecond,
			ProgressEveryItems: 25,
			CrawlDepth:         8,
			CrawlFileCap:       50000,
			CleanupAfterDays:   30,
		},
	}
}

// Load reads configuration from the given path. A missing or empty path keeps
// the defaults; a malformed file is an error.
func Load(path string) error {
	mu.Lock()
	defer mu.Unlock()

	cfg = GetDefaultConfig()

	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Get returns the current configuration, loading defaults if Load was never
// called.
func Get() *Config {
	mu.RLock()
	if cfg != nil {
		defer mu.RUnlock()
		return cfg
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if cfg == nil {
		cfg = GetDefaultConfig()
	}
	return cfg
}
