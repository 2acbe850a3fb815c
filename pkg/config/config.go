// Package config loads this module's runtime configuration: dataset and
// cache locations, round-protocol sizing, and logging — from an optional
// YAML file with environment-variable overrides layered on top, the same
// defaults-then-file-then-env precedence the reference validator service
// used for its own settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the round protocol and CLI need.
type Config struct {
	// DatasetPath points at the edge-list file to load as the initial graph.
	DatasetPath string `yaml:"dataset_path"`
	// CacheDir is where round state (timestamps, committed roots) persists
	// across process restarts.
	CacheDir string `yaml:"cache_dir"`

	// Rounds is the total number of update/query rounds to run.
	Rounds int `yaml:"rounds"`
	// QueryInterval is how many update rounds occur between query rounds
	// (1 means every round is also a query round).
	QueryInterval int `yaml:"query_interval"`
	// BatchSize bounds how many elements an addition or deletion round
	// touches at once.
	BatchSize int `yaml:"batch_size"`
	// TimestampSize is the zero-padded byte width of the round timestamp
	// string every party derives the decoy seed and signature binding from.
	TimestampSize int `yaml:"timestamp_size"`
	// DecoySetSize is k, the number of decoy "from" IDs (and, symmetrically,
	// "to" IDs) the per-round decoy mapping generates, i.e. |S| per round.
	DecoySetSize int `yaml:"decoy_set_size"`

	// RSAKeyBits is the modulus size for the blind-signature key.
	RSAKeyBits int `yaml:"rsa_key_bits"`
	// WorkerPoolSize bounds concurrency for the RSA-heavy encryption step
	// (0 means use all available CPUs).
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`

	// MetricsAddr is loaded from the file and environment like the other
	// settings; nothing in this module reads it or serves metrics over HTTP.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in defaults, matching the reference
// implementation's Config.py constants (67 rounds, batch size 10000,
// 20-byte timestamps, a query every round).
func Default() *Config {
	return &Config{
		DatasetPath:    "./data/graph.edgelist",
		CacheDir:       "./data/cache",
		Rounds:         67,
		QueryInterval:  1,
		BatchSize:      10000,
		TimestampSize:  20,
		DecoySetSize:   20,
		RSAKeyBits:     1024,
		WorkerPoolSize: 0,
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsAddr:    "",
	}
}

// LoadFile reads a YAML config file on top of Default(), leaving any field
// absent from the file at its default value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment-variable overrides on top of cfg, using the
// GRAPHVERIFY_ prefix for every setting.
func (c *Config) ApplyEnv() {
	c.DatasetPath = getEnv("GRAPHVERIFY_DATASET_PATH", c.DatasetPath)
	c.CacheDir = getEnv("GRAPHVERIFY_CACHE_DIR", c.CacheDir)
	c.Rounds = getEnvInt("GRAPHVERIFY_ROUNDS", c.Rounds)
	c.QueryInterval = getEnvInt("GRAPHVERIFY_QUERY_INTERVAL", c.QueryInterval)
	c.BatchSize = getEnvInt("GRAPHVERIFY_BATCH_SIZE", c.BatchSize)
	c.TimestampSize = getEnvInt("GRAPHVERIFY_TIMESTAMP_SIZE", c.TimestampSize)
	c.DecoySetSize = getEnvInt("GRAPHVERIFY_DECOY_SET_SIZE", c.DecoySetSize)
	c.RSAKeyBits = getEnvInt("GRAPHVERIFY_RSA_KEY_BITS", c.RSAKeyBits)
	c.WorkerPoolSize = getEnvInt("GRAPHVERIFY_WORKER_POOL_SIZE", c.WorkerPoolSize)
	c.LogLevel = getEnv("GRAPHVERIFY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("GRAPHVERIFY_LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = getEnv("GRAPHVERIFY_METRICS_ADDR", c.MetricsAddr)
}

// Validate checks the settings the round protocol cannot tolerate being
// nonsensical.
func (c *Config) Validate() error {
	if c.DatasetPath == "" {
		return fmt.Errorf("config: dataset_path is required")
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("config: rounds must be positive, got %d", c.Rounds)
	}
	if c.QueryInterval <= 0 {
		return fmt.Errorf("config: query_interval must be positive, got %d", c.QueryInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.DecoySetSize <= 0 {
		return fmt.Errorf("config: decoy_set_size must be positive, got %d", c.DecoySetSize)
	}
	if c.RSAKeyBits < 512 || c.RSAKeyBits%2 != 0 {
		return fmt.Errorf("config: rsa_key_bits must be an even number >= 512, got %d", c.RSAKeyBits)
	}
	return nil
}

// RoundTimeout derives a generous per-round timeout from batch size, used
// by the round protocol to bound how long it waits on the RSA-heavy
// encryption step before giving up.
func (c *Config) RoundTimeout() time.Duration {
	base := 5 * time.Second
	perItem := time.Duration(c.BatchSize) * time.Millisecond
	return base + perItem
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
