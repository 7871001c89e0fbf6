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

const keyChainColumns = `local_id, uuid, label, key_type, public_key, fingerprint, version, created_at, updated_at`

// SQLKeyChainRepository is the versioned record store for key chains. Same
// contract as the asset store: mutation and capture commit together.
type SQLKeyChainRepository struct {
	db          *sql.DB
	interceptor capture.Interceptor
	guard       *capture.Guard
}

func NewSQLKeyChainRepository(db *sql.DB, interceptor capture.Interceptor, guard *capture.Guard) *SQLKeyChainRepository {
	return &SQLKeyChainRepository{db: db, interceptor: interceptor, guard: guard}
}

func (r *SQLKeyChainRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.KeyChain, error) {
	return getKeyChainByUUID(ctx, r.db, id)
}

func getKeyChainByUUID(ctx context.Context, q rowQuerier, id uuid.UUID) (*models.KeyChain, error) {
	query := `SELECT ` + keyChainColumns + ` FROM key_chains WHERE uuid = $1`

	keyChain, err := scanKeyChain(q.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key chain: %w", err)
	}
	return keyChain, nil
}

func (r *SQLKeyChainRepository) ListChangedSince(ctx context.Context, since time.Time) ([]*models.KeyChain, error) {
	query := `SELECT ` + keyChainColumns + ` FROM key_chains WHERE updated_at > $1 ORDER BY updated_at ASC, local_id ASC`

	rows, err := r.db.QueryContext(ctx, query, toNS(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query key chains: %w", err)
	}
	defer rows.Close()

	var keyChains []*models.KeyChain
	for rows.Next() {
		keyChain, err := scanKeyChain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key chain: %w", err)
		}
		keyChains = append(keyChains, keyChain)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key chains: %w", err)
	}
	return keyChains, nil
}

// Upsert follows the asset store contract: uuid decides insert vs update,
// the caller decides the version, zero Version advances from current.
func (r *SQLKeyChainRepository) Upsert(ctx context.Context, keyChain *models.KeyChain) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getKeyChainByUUID(ctx, tx, keyChain.UUID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	now := time.Now()
	var event capture.ChangeEvent

	if existing == nil {
		if keyChain.Version == 0 {
			keyChain.Version = 1
		}
		keyChain.CreatedAt = now
		keyChain.UpdatedAt = now

		query := `INSERT INTO key_chains (uuid, label, key_type, public_key, fingerprint, version, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		          RETURNING local_id`

		err = tx.QueryRowContext(ctx, query,
			keyChain.UUID.String(),
			keyChain.Label,
			keyChain.KeyType,
			keyChain.PublicKey,
			keyChain.Fingerprint,
			keyChain.Version,
			toNS(keyChain.CreatedAt),
			toNS(keyChain.UpdatedAt),
		).Scan(&keyChain.LocalID)
		if err != nil {
			return fmt.Errorf("failed to create key chain: %w", err)
		}

		event = capture.ChangeEvent{
			Channel:    models.ChannelKeyChain,
			RecordUUID: keyChain.UUID,
			Operation:  models.OpInsert,
			After:      keyChain.Snapshot(),
		}
	} else {
		if keyChain.Version == 0 {
			keyChain.Version = existing.Version + 1
		}
		keyChain.LocalID = existing.LocalID
		keyChain.CreatedAt = existing.CreatedAt
		keyChain.UpdatedAt = now

		query := `UPDATE key_chains
		          SET label = $1, key_type = $2, public_key = $3, fingerprint = $4,
		              version = $5, updated_at = $6
		          WHERE uuid = $7`

		_, err = tx.ExecContext(ctx, query,
			keyChain.Label,
			keyChain.KeyType,
			keyChain.PublicKey,
			keyChain.Fingerprint,
			keyChain.Version,
			toNS(keyChain.UpdatedAt),
			keyChain.UUID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update key chain: %w", err)
		}

		event = capture.ChangeEvent{
			Channel:    models.ChannelKeyChain,
			RecordUUID: keyChain.UUID,
			Operation:  models.OpUpdate,
			Before:     existing.Snapshot(),
			After:      keyChain.Snapshot(),
		}
	}

	if !r.guard.Suppressed() {
		if err := r.interceptor.Capture(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to capture key chain change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key chain upsert: %w", err)
	}
	return nil
}

// Delete removes the key chain by uuid; absent uuid is a no-op.
func (r *SQLKeyChainRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getKeyChainByUUID(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM key_chains WHERE uuid = $1`, id.String()); err != nil {
		return fmt.Errorf("failed to delete key chain: %w", err)
	}

	if !r.guard.Suppressed() {
		event := capture.ChangeEvent{
			Channel:    models.ChannelKeyChain,
			RecordUUID: id,
			Operation:  models.OpDelete,
			Before:     existing.Snapshot(),
		}
		if err := r.interceptor.Capture(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to capture key chain delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key chain delete: %w", err)
	}
	return nil
}

func (r *SQLKeyChainRepository) BumpVersion(ctx context.Context, id uuid.UUID, currentVersion int64) error {
	if id == uuid.Nil || currentVersion == 0 {
		return nil
	}

	query := `UPDATE key_chains SET version = $1, updated_at = $2 WHERE uuid = $3`
	result, err := r.db.ExecContext(ctx, query, currentVersion+1, toNS(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("failed to bump key chain version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to bump key chain version: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanKeyChain(row interface{ Scan(dest ...any) error }) (*models.KeyChain, error) {
	var (
		keyChain  models.KeyChain
		rawUUID   string
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&keyChain.LocalID,
		&rawUUID,
		&keyChain.Label,
		&keyChain.KeyType,
		&keyChain.PublicKey,
		&keyChain.Fingerprint,
		&keyChain.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	keyChain.UUID, err = uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid key chain uuid %q: %w", rawUUID, err)
	}
	keyChain.CreatedAt = fromNS(createdAt)
	keyChain.UpdatedAt = fromNS(updatedAt)
	return &keyChain, nil
}
