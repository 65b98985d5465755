package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// Watch polls PRAGMA data_version at the given interval and reloads the
// routes whenever it changes. It blocks until ctx is cancelled:
//
//	go router.Watch(ctx, db, time.Second)
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}
	var lastVersion int64
	db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&lastVersion)

	r.logger.Info("connectivity: watcher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("connectivity: watcher stopped")
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				r.logger.Warn("connectivity: data_version poll failed", "error", err)
				continue
			}
			if ver == lastVersion {
				continue
			}
			r.logger.Info("connectivity: routes changed, reloading", "old_version", lastVersion, "new_version", ver)
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("connectivity: reload failed", "error", err)
			}
			lastVersion = ver
		}
	}
}
