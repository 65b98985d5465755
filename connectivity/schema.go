package connectivity

import (
	"database/sql"

	"github.com/hazyhaar/rewind/durable"
)

// Schema defines the action routes table. Each row maps an action name to
// a dispatch strategy:
//   - "local":    run the handler registered with RegisterLocal.
//   - "http":     forward the action to a peer's /api/message endpoint.
//   - "disabled": reject the action.
//
// Actions without a row run locally. The config column holds per-route
// JSON; timeout_ms bounds every call of the action. Any write bumps PRAGMA data_version, which Watch
// polls to trigger a reload.
const Schema = `
CREATE TABLE IF NOT EXISTS action_routes (
    action     TEXT PRIMARY KEY,
    strategy   TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'disabled')),
    endpoint   TEXT,
    config     TEXT DEFAULT '{}',
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// OpenDB opens the routes database at path with WAL journaling and a 5s
// busy timeout. The caller must blank-import the SQLite driver.
func OpenDB(path string) (*sql.DB, error) {
	return durable.OpenDB(path, durable.WithBusyTimeout(5000), durable.WithMkdirAll())
}

// Init creates the routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
