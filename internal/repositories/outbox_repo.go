package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/localsync/internal/capture"
	"github.com/prudhvinik1/localsync/internal/models"
)

const outboxColumns = `seq, id, table_name, record_uuid, operation, change_data, before_data, created_at, sync_status, retry_count, error_message`

// SQLOutboxRepository is the durable, ordered change outbox. It also
// implements capture.Interceptor, so the record stores append to it inside
// their own mutation transactions.
type SQLOutboxRepository struct {
	db *sql.DB
}

func NewSQLOutboxRepository(db *sql.DB) *SQLOutboxRepository {
	return &SQLOutboxRepository{db: db}
}

// Capture appends exactly one pending change record for the event, using the
// caller's transaction. The change id is generated here, at capture time.
func (r *SQLOutboxRepository) Capture(ctx context.Context, tx *sql.Tx, event capture.ChangeEvent) error {
	changeData, err := marshalSnapshot(event.After)
	if err != nil {
		return err
	}
	beforeData, err := marshalSnapshot(event.Before)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_outbox (id, table_name, record_uuid, operation, change_data, before_data, created_at, sync_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.ExecContext(ctx, query,
		uuid.New().String(),
		event.Channel,
		event.RecordUUID.String(),
		string(event.Operation),
		changeData,
		beforeData,
		time.Now().UnixNano(),
		string(models.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to append change record: %w", err)
	}
	return nil
}

// PendingChanges returns every pending record across all channels in capture
// order: created_at ascending, insertion order breaking ties.
func (r *SQLOutboxRepository) PendingChanges(ctx context.Context) ([]*models.ChangeRecord, error) {
	query := `SELECT ` + outboxColumns + ` FROM sync_outbox
	          WHERE sync_status = $1
	          ORDER BY created_at ASC, seq ASC`

	return r.queryChanges(ctx, query, string(models.StatusPending))
}

// PendingChangesPage returns a stably-ordered slice of one channel's backlog
// so a large backlog never has to be loaded or transmitted in one unit.
func (r *SQLOutboxRepository) PendingChangesPage(ctx context.Context, channel string, limit, offset int) ([]*models.ChangeRecord, error) {
	query := `SELECT ` + outboxColumns + ` FROM sync_outbox
	          WHERE sync_status = $1 AND table_name = $2
	          ORDER BY created_at ASC, seq ASC
	          LIMIT $3 OFFSET $4`

	return r.queryChanges(ctx, query, string(models.StatusPending), channel, limit, offset)
}

func (r *SQLOutboxRepository) CountPending(ctx context.Context, channel string) (int64, error) {
	query := `SELECT COUNT(*) FROM sync_outbox WHERE sync_status = $1 AND table_name = $2`

	var count int64
	err := r.db.QueryRowContext(ctx, query, string(models.StatusPending), channel).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

func (r *SQLOutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	query := `SELECT ` + outboxColumns + ` FROM sync_outbox WHERE id = $1`

	change, err := scanChange(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change record: %w", err)
	}
	return change, nil
}

// MarkSynced transitions the whole id set from pending to synced in one
// transaction. Empty id sets are a no-op. Status transitions are
// one-directional: a record that already left pending is never touched.
func (r *SQLOutboxRepository) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	return r.transition(ctx, ids, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`UPDATE sync_outbox SET sync_status = $1 WHERE sync_status = $2 AND id IN (%s)`,
			placeholders(3, len(ids)),
		)
		args := append([]any{string(models.StatusSynced), string(models.StatusPending)}, idArgs(ids)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark changes synced: %w", err)
		}
		return nil
	})
}

// MarkFailed transitions the id set from pending to failed, recording the
// reason and bumping the retry counter. Requeueing a failed record is an
// explicit operator action outside this engine.
func (r *SQLOutboxRepository) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	return r.transition(ctx, ids, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`UPDATE sync_outbox
			 SET sync_status = $1, error_message = $2, retry_count = retry_count + 1
			 WHERE sync_status = $3 AND id IN (%s)`,
			placeholders(4, len(ids)),
		)
		args := append([]any{string(models.StatusFailed), reason, string(models.StatusPending)}, idArgs(ids)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark changes failed: %w", err)
		}
		return nil
	})
}

// transition wraps a bulk status update in a single transaction so a crash
// mid-batch cannot leave a partially-marked set.
func (r *SQLOutboxRepository) transition(ctx context.Context, ids []uuid.UUID, fn func(tx *sql.Tx) error) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status transition: %w", err)
	}
	return nil
}

func (r *SQLOutboxRepository) queryChanges(ctx context.Context, query string, args ...any) ([]*models.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.ChangeRecord
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change record: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}
	return changes, nil
}

func scanChange(row interface{ Scan(dest ...any) error }) (*models.ChangeRecord, error) {
	var (
		change     models.ChangeRecord
		rawID      string
		rawRecord  string
		operation  string
		status     string
		changeData sql.NullString
		beforeData sql.NullString
		createdAt  int64
	)

	err := row.Scan(
		&change.Seq,
		&rawID,
		&change.TableName,
		&rawRecord,
		&operation,
		&changeData,
		&beforeData,
		&createdAt,
		&status,
		&change.RetryCount,
		&change.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	change.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid change id %q: %w", rawID, err)
	}
	change.RecordUUID, err = uuid.Parse(rawRecord)
	if err != nil {
		return nil, fmt.Errorf("invalid record uuid %q: %w", rawRecord, err)
	}
	change.Operation = models.Operation(operation)
	change.SyncStatus = models.SyncStatus(status)
	change.CreatedAt = fromNS(createdAt)

	if changeData.Valid {
		if change.ChangeData, err = unmarshalSnapshot(&changeData.String); err != nil {
			return nil, err
		}
	}
	if beforeData.Valid {
		if change.BeforeData, err = unmarshalSnapshot(&beforeData.String); err != nil {
			return nil, err
		}
	}
	return &change, nil
}

func idArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}
