package capture

import (
	"github.com/hazyhaar/rewind/capture/internal/config"
)

// Config is the top-level rewind configuration. Re-exported from internal.
type Config = config.Config

// CaptureConfig controls retention horizons and store keys.
type CaptureConfig = config.CaptureConfig

// StoreConfig selects the durable backend.
type StoreConfig = config.StoreConfig

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig = config.SQLiteConfig

// RedisConfig configures the Redis backend.
type RedisConfig = config.RedisConfig

// HTTPConfig configures the control API listener.
type HTTPConfig = config.HTTPConfig

// RoutesConfig configures the optional action routes table.
type RoutesConfig = config.RoutesConfig

// Store backends.
const (
	BackendMemory = config.BackendMemory
	BackendSQLite = config.BackendSQLite
	BackendRedis  = config.BackendRedis
)

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
