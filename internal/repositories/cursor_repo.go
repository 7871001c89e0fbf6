package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	metaKeySequenceID = "last_sequence_id"
	metaKeyGuardFlag  = "remote_apply_guard"
)

// SQLCursorRepository holds the durable sync positions: one pull cursor per
// channel, plus the global remote-sequence watermark and the persisted guard
// flag in the metadata table. Cursors must only be advanced after the
// corresponding batch was durably applied or transmitted.
type SQLCursorRepository struct {
	db *sql.DB
}

func NewSQLCursorRepository(db *sql.DB) *SQLCursorRepository {
	return &SQLCursorRepository{db: db}
}

// LastSyncTime returns the last successful pull time for the channel. A
// channel that has never synced reports the zero time.
func (r *SQLCursorRepository) LastSyncTime(ctx context.Context, channel string) (time.Time, error) {
	query := `SELECT last_sync_time FROM sync_cursors WHERE table_name = $1`

	var ns int64
	err := r.db.QueryRowContext(ctx, query, channel).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}
	return fromNS(ns), nil
}

func (r *SQLCursorRepository) SetLastSyncTime(ctx context.Context, channel string, t time.Time) error {
	query := `INSERT INTO sync_cursors (table_name, last_sync_time) VALUES ($1, $2)
	          ON CONFLICT (table_name) DO UPDATE SET last_sync_time = excluded.last_sync_time`

	if _, err := r.db.ExecContext(ctx, query, channel, toNS(t)); err != nil {
		return fmt.Errorf("failed to set last sync time: %w", err)
	}
	return nil
}

// LastSequenceID returns the global inbound-stream watermark; zero when the
// stream has never been consumed.
func (r *SQLCursorRepository) LastSequenceID(ctx context.Context) (int64, error) {
	raw, err := r.getMeta(ctx, metaKeySequenceID)
	if err != nil || raw == "" {
		return 0, err
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence watermark %q: %w", raw, err)
	}
	return seq, nil
}

func (r *SQLCursorRepository) SetLastSequenceID(ctx context.Context, seq int64) error {
	return r.setMeta(ctx, metaKeySequenceID, strconv.FormatInt(seq, 10))
}

// GuardFlag reports the persisted remote-apply guard state. The in-process
// guard drives the capture condition; this row exists so the flag is visible
// to inspection and is reset by schema bootstrap after a crash.
func (r *SQLCursorRepository) GuardFlag(ctx context.Context) (bool, error) {
	raw, err := r.getMeta(ctx, metaKeyGuardFlag)
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

func (r *SQLCursorRepository) SetGuardFlag(ctx context.Context, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return r.setMeta(ctx, metaKeyGuardFlag, value)
}

func (r *SQLCursorRepository) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %q: %w", key, err)
	}
	return value, nil
}

func (r *SQLCursorRepository) setMeta(ctx context.Context, key, value string) error {
	query := `INSERT INTO sync_meta (key, value) VALUES ($1, $2)
	          ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set meta %q: %w", key, err)
	}
	return nil
}
