// Package config handles rewind configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the top-level rewind configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
	Routes  RoutesConfig  `yaml:"routes"`
}

// CaptureConfig controls the in-memory log and its durable mirror.
type CaptureConfig struct {
	MemoryRetention  time.Duration `yaml:"memory_retention"`  // delta horizon of the live log
	PersistRetention time.Duration `yaml:"persist_retention"` // delta horizon of the mirrored copy
	ReplayDuration   time.Duration `yaml:"replay_duration"`   // default window when a request names none
	EventsKey        string        `yaml:"events_key"`
	StatusKey        string        `yaml:"status_key"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	Backend string       `yaml:"backend"` // memory | sqlite | redis
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"` // ms
	Synchronous string `yaml:"synchronous"`  // PRAGMA synchronous
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Cluster      bool          `yaml:"cluster"`
	ClusterNodes []string      `yaml:"cluster_nodes"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// HTTPConfig configures the control API listener.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	MaxBody int64  `yaml:"max_body"` // bytes accepted per request body
}

// RoutesConfig points the action router at an optional SQLite routes
// table. An empty DB disables table routing: every action runs locally.
type RoutesConfig struct {
	DB           string        `yaml:"db"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Capture.MemoryRetention <= 0 {
		c.Capture.MemoryRetention = 5 * time.Minute
	}
	if c.Capture.PersistRetention <= 0 {
		c.Capture.PersistRetention = c.Capture.MemoryRetention
	}
	if c.Capture.ReplayDuration <= 0 {
		c.Capture.ReplayDuration = 30 * time.Second
	}
	if c.Capture.EventsKey == "" {
		c.Capture.EventsKey = "recording-events"
	}
	if c.Capture.StatusKey == "" {
		c.Capture.StatusKey = "record-state"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "data/rewind.db"
	}
	if c.Store.SQLite.BusyTimeout <= 0 {
		c.Store.SQLite.BusyTimeout = 10_000
	}
	if c.Store.SQLite.Synchronous == "" {
		c.Store.SQLite.Synchronous = "NORMAL"
	}
	if c.Store.Redis.Host == "" {
		c.Store.Redis.Host = "localhost"
	}
	if c.Store.Redis.Port <= 0 {
		c.Store.Redis.Port = 6379
	}
	if c.Store.Redis.PoolSize <= 0 {
		c.Store.Redis.PoolSize = 20
	}
	if c.Store.Redis.MaxRetries <= 0 {
		c.Store.Redis.MaxRetries = 3
	}
	if c.Store.Redis.DialTimeout <= 0 {
		c.Store.Redis.DialTimeout = 5 * time.Second
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "rewind:"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8790"
	}
	if c.HTTP.MaxBody <= 0 {
		c.HTTP.MaxBody = 8 << 20
	}
	if c.Routes.PollInterval <= 0 {
		c.Routes.PollInterval = time.Second
	}
}

// Validate rejects configurations that cannot be served.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Store.Redis.Cluster && len(c.Store.Redis.ClusterNodes) == 0 {
			return fmt.Errorf("config: store.redis.cluster_nodes is required when cluster=true")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch strings.ToUpper(c.Store.SQLite.Synchronous) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("config: unknown store.sqlite.synchronous %q", c.Store.SQLite.Synchronous)
	}
	if c.Capture.EventsKey == c.Capture.StatusKey {
		return fmt.Errorf("config: events_key and status_key must differ (both %q)", c.Capture.EventsKey)
	}
	return nil
}
