package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as BIGINT unix nanoseconds everywhere. Integer
// comparison behaves identically on both engines, and nanosecond precision
// gives the outbox the fine-grained capture ordering it needs under rapid
// writes.

// Migrate creates the store layout on first run and is safe to call on every
// start. It also clears the persisted remote-apply guard flag: the guard is
// scoped to a live apply, so after a crash or restart it must never be left
// set (that would silently disable capture forever).
func Migrate(ctx context.Context, db *sql.DB, driver Driver) error {
	serial := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS assets (
			local_id %s,
			uuid TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL,
			host TEXT NOT NULL,
			port BIGINT NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			key_chain_uuid TEXT,
			version BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS key_chains (
			local_id %s,
			uuid TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL,
			key_type TEXT NOT NULL DEFAULT '',
			public_key TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_outbox (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			table_name TEXT NOT NULL,
			record_uuid TEXT NOT NULL,
			operation TEXT NOT NULL,
			change_data TEXT,
			before_data TEXT,
			created_at BIGINT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			retry_count BIGINT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		)`, serial),
		`CREATE TABLE IF NOT EXISTS sync_cursors (
			table_name TEXT PRIMARY KEY,
			last_sync_time BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_outbox_pending
			ON sync_outbox (sync_status, table_name, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_updated_at ON assets (updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_key_chains_updated_at ON key_chains (updated_at)`,
		`INSERT INTO sync_meta (key, value) VALUES ('remote_apply_guard', '0')
			ON CONFLICT (key) DO UPDATE SET value = '0'`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run schema statement: %w", err)
		}
	}
	return nil
}
