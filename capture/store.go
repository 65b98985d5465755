package capture

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/rewind/durable"
)

// OpenStore builds the durable store selected by cfg. SQLite needs the
// driver registered by the caller (import _ "modernc.org/sqlite").
func OpenStore(cfg StoreConfig) (durable.Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return durable.NewMemory(), nil
	case BackendSQLite:
		s, err := durable.OpenSQLite(cfg.SQLite.Path,
			durable.WithBusyTimeout(cfg.SQLite.BusyTimeout),
			durable.WithSynchronous(strings.ToUpper(cfg.SQLite.Synchronous)),
			durable.WithMkdirAll())
		if err != nil {
			return nil, fmt.Errorf("capture: open store: %w", err)
		}
		return s, nil
	case BackendRedis:
		r := cfg.Redis
		s, err := durable.NewRedis(&durable.RedisConfig{
			Host:         r.Host,
			Port:         r.Port,
			Password:     r.Password,
			DB:           r.DB,
			Cluster:      r.Cluster,
			ClusterNodes: r.ClusterNodes,
			PoolSize:     r.PoolSize,
			MaxRetries:   r.MaxRetries,
			DialTimeout:  r.DialTimeout,
			KeyPrefix:    r.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("capture: open store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("capture: unknown store backend %q", cfg.Backend)
	}
}
