package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/hoangsonww/ed2k/internal/errors"
)

type HashingConfig struct {
	Legacy         bool  `yaml:"legacy"`
	Threads        int   `yaml:"threads"` // 0 = GOMAXPROCS
	BufferSize     int   `yaml:"buffer_size"`
	MaxBytesPerSec int64 `yaml:"max_bytes_per_sec"` // 0 = unlimited
}

type CacheConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	LRUSize       int    `yaml:"lru_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type OutputConfig struct {
	Manifest         string `yaml:"manifest"`
	CompressionLevel int    `yaml:"compression_level"`
}

type Config struct {
	Hashing HashingConfig `yaml:"hashing"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WrapError(apperrors.ErrCodeConfigMissing, "failed to open config file", err)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, apperrors.WrapError(apperrors.ErrCodeConfigInvalid, "failed to decode config", err)
	}

	return cfg.finish()
}

// Default returns the configuration used when no config file is given.
// Environment overrides still apply.
func Default() (*Config, error) {
	var cfg Config
	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	// Override with environment variables
	if err := c.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	// Apply defaults
	c.applyDefaults()

	// Validate configuration
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return c, nil
}

// applyEnvironmentOverrides overrides config values with environment variables if set
func (c *Config) applyEnvironmentOverrides() error {
	if val := os.Getenv("ED2K_LEGACY"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError("ED2K_LEGACY", val, err)
		}
		c.Hashing.Legacy = b
	}
	if val := os.Getenv("ED2K_THREADS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("ED2K_THREADS", val, err)
		}
		c.Hashing.Threads = n
	}
	if val := os.Getenv("ED2K_MAX_BYTES_PER_SEC"); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return envError("ED2K_MAX_BYTES_PER_SEC", val, err)
		}
		c.Hashing.MaxBytesPerSec = n
	}
	if val := os.Getenv("ED2K_CACHE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError("ED2K_CACHE", val, err)
		}
		c.Cache.Enabled = b
	}
	if val := os.Getenv("ED2K_CACHE_PATH"); val != "" {
		c.Cache.Path = val
	}
	if val := os.Getenv("ED2K_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("ED2K_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	return nil
}

func envError(name, val string, err error) error {
	return apperrors.WrapError(apperrors.ErrCodeConfigInvalid, fmt.Sprintf("invalid %s=%q", name, val), err)
}

// applyDefaults sets default values for unset configuration fields
func (c *Config) applyDefaults() {
	// Hashing defaults
	if c.Hashing.BufferSize == 0 {
		c.Hashing.BufferSize = 64 * 1024
	}

	// Cache defaults
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath()
	}
	if c.Cache.RetentionDays == 0 {
		c.Cache.RetentionDays = 90
	}
	if c.Cache.LRUSize == 0 {
		c.Cache.LRUSize = 1024
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	// Output defaults
	if c.Output.CompressionLevel == 0 {
		c.Output.CompressionLevel = 3
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate hashing settings
	if c.Hashing.Threads < 0 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("threads must be >= 0, got %d", c.Hashing.Threads))
	}
	if c.Hashing.BufferSize < 512 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("buffer_size must be >= 512, got %d", c.Hashing.BufferSize))
	}
	if c.Hashing.MaxBytesPerSec < 0 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("max_bytes_per_sec must be >= 0, got %d", c.Hashing.MaxBytesPerSec))
	}

	// Validate cache settings
	if c.Cache.Enabled && c.Cache.Path == "" {
		return apperrors.NewConfigInvalidError("cache path cannot be empty when the cache is enabled")
	}
	if c.Cache.RetentionDays < 0 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("retention_days must be >= 0, got %d", c.Cache.RetentionDays))
	}
	if c.Cache.LRUSize < 1 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("lru_size must be >= 1, got %d", c.Cache.LRUSize))
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("invalid log level: %s (must be debug, info, warn or error)",
			c.Logging.Level))
	}

	// Validate log format
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("invalid log format: %s (must be json or text)", c.Logging.Format))
	}

	// Validate output settings
	if c.Output.CompressionLevel < 1 || c.Output.CompressionLevel > 22 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("compression_level must be 1-22, got %d", c.Output.CompressionLevel))
	}

	return nil
}

// DefaultCachePath returns <user cache dir>/ed2k/cache.db, or a path in the
// working directory if the user cache dir is unknown.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".ed2k", "cache.db")
	}
	return filepath.Join(dir, "ed2k", "cache.db")
}
