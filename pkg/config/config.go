// Package config handles corpusdb configuration loaded from environment
// variables, with an optional YAML file layered underneath them.
//
// Configuration is loaded with LoadFromEnv() (or LoadFromFile() plus
// LoadFromEnv() to let the environment override a file) and validated with
// Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv(nil)
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	fmt.Printf("cache cap: %d bytes\n", cfg.Cache.MaxAllowedCacheSize)
//
// Environment variables, all prefixed CORPUSDB_:
//
//	CORPUSDB_DATA_DIR               - root directory holding one subdirectory per corpus
//	CORPUSDB_MAX_CACHE_SIZE         - eviction budget in bytes (default 1GB)
//	CORPUSDB_PRELOAD                - sets storage.preload (see StorageConfig)
//	CORPUSDB_ADMIN_TOKEN_HASH       - bcrypt hash of the admin token checked by Manager.RequireAdmin
//	CORPUSDB_LOG_LEVEL              - DEBUG, INFO, WARN, ERROR
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all corpusdb configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
	Auth    AuthConfig    `yaml:"auth"`
}

// StorageConfig controls where and how corpora are persisted on disk.
type StorageConfig struct {
	// DataDir is the root directory; each corpus gets DataDir/<name>/.
	DataDir string `yaml:"data_dir"`
	// Preload is parsed and stored but not read: the loader always
	// registers components as lazy (on-demand) entries (§4.4).
	Preload bool `yaml:"preload"`
	// FsyncOnWrite is parsed and stored but not read by the snapshot code.
	FsyncOnWrite bool `yaml:"fsync_on_write"`
}

// CacheConfig controls the storage manager's multi-corpus cache (§4.6).
type CacheConfig struct {
	// MaxAllowedCacheSize bounds the sum of estimated in-memory corpus sizes.
	MaxAllowedCacheSize int64 `yaml:"max_allowed_cache_size"`
	// EvictionCheckInterval is parsed and stored but not read: the serve
	// command runs its periodic eviction sweep on its --write-interval.
	EvictionCheckInterval time.Duration `yaml:"eviction_check_interval"`
}

// QueryConfig tunes the query engine's planner and executor.
type QueryConfig struct {
	// DefaultMaxDistance is parsed and stored but not read by the query
	// engine.
	DefaultMaxDistance uint32 `yaml:"default_max_distance"`
}

// LoggingConfig controls log verbosity. corpusdb logs with the standard
// library "log" package; Level only gates which calls are made, there is
// no structured logging backend (out of scope per spec.md §1).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig holds the admin token hash that Manager.RequireAdmin checks
// for destructive operations (deleteCorpus, importCorpus); the manager's
// ImportCorpus and DeleteCorpus and the CLI do not call that check
// themselves. This is an AMBIENT addition; spec.md is silent on
// authentication.
type AuthConfig struct {
	// AdminTokenHash is the bcrypt hash of the admin token; empty disables
	// the gate entirely (default, matching spec.md's silence on auth).
	AdminTokenHash string `yaml:"admin_token_hash"`
}

// Default returns a Config with sensible defaults, used as the base that
// LoadFromFile and LoadFromEnv layer on top of.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:      "./data",
			Preload:      false,
			FsyncOnWrite: true,
		},
		Cache: CacheConfig{
			MaxAllowedCacheSize: 1 << 30, // 1GB
		},
		Query: QueryConfig{
			DefaultMaxDistance: 50,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadFromFile layers a YAML config file on top of Default().
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from CORPUSDB_* environment variables,
// starting from base (or Default() if base is nil). Environment variables
// always win over the base, so callers typically do:
//
//	cfg, _ := config.LoadFromFile("corpusdb.yaml")
//	cfg = config.LoadFromEnv(cfg)
func LoadFromEnv(base *Config) *Config {
	cfg := base
	if cfg == nil {
		cfg = Default()
	}

	if v := os.Getenv("CORPUSDB_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CORPUSDB_PRELOAD"); v != "" {
		cfg.Storage.Preload = parseBool(v, cfg.Storage.Preload)
	}
	if v := os.Getenv("CORPUSDB_FSYNC"); v != "" {
		cfg.Storage.FsyncOnWrite = parseBool(v, cfg.Storage.FsyncOnWrite)
	}
	if v := os.Getenv("CORPUSDB_MAX_CACHE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxAllowedCacheSize = n
		}
	}
	if v := os.Getenv("CORPUSDB_DEFAULT_MAX_DISTANCE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Query.DefaultMaxDistance = uint32(n)
		}
	}
	if v := os.Getenv("CORPUSDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CORPUSDB_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Auth.AdminTokenHash = v
	}
	return cfg
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Cache.MaxAllowedCacheSize <= 0 {
		return fmt.Errorf("cache.max_allowed_cache_size must be positive")
	}
	switch c.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", c.Logging.Level)
	}
	return nil
}
