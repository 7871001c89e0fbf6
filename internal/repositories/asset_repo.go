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

// rowQuerier is satisfied by both *sql.DB and *sql.Tx so lookups can run
// inside the mutation transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const assetColumns = `local_id, uuid, label, host, port, username, key_chain_uuid, version, created_at, updated_at`

// SQLAssetRepository is the versioned record store for assets. Every
// mutation runs in one transaction together with its change capture, so a
// write can never commit without its outbox record.
type SQLAssetRepository struct {
	db          *sql.DB
	interceptor capture.Interceptor
	guard       *capture.Guard
}

func NewSQLAssetRepository(db *sql.DB, interceptor capture.Interceptor, guard *capture.Guard) *SQLAssetRepository {
	return &SQLAssetRepository{db: db, interceptor: interceptor, guard: guard}
}

func (r *SQLAssetRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	return getAssetByUUID(ctx, r.db, id)
}

func getAssetByUUID(ctx context.Context, q rowQuerier, id uuid.UUID) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE uuid = $1`

	asset, err := scanAsset(q.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// ListChangedSince returns assets with updated_at strictly after since,
// oldest first. This is the pull-loop "rows changed since T" read.
func (r *SQLAssetRepository) ListChangedSince(ctx context.Context, since time.Time) ([]*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE updated_at > $1 ORDER BY updated_at ASC, local_id ASC`

	rows, err := r.db.QueryContext(ctx, query, toNS(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return assets, nil
}

// Upsert inserts the asset if its uuid is unknown, otherwise updates every
// mutable field. The caller decides the new version: the apply engine passes
// the remote-authoritative value, local writes pass current+1. A zero
// Version means "advance from current" (1 on insert, current+1 on update).
// The mutation and its change capture commit together.
func (r *SQLAssetRepository) Upsert(ctx context.Context, asset *models.Asset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getAssetByUUID(ctx, tx, asset.UUID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	now := time.Now()
	var event capture.ChangeEvent

	if existing == nil {
		if asset.Version == 0 {
			asset.Version = 1
		}
		asset.CreatedAt = now
		asset.UpdatedAt = now

		query := `INSERT INTO assets (uuid, label, host, port, username, key_chain_uuid, version, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		          RETURNING local_id`

		err = tx.QueryRowContext(ctx, query,
			asset.UUID.String(),
			asset.Label,
			asset.Host,
			asset.Port,
			asset.Username,
			nullableUUID(asset.KeyChainUUID),
			asset.Version,
			toNS(asset.CreatedAt),
			toNS(asset.UpdatedAt),
		).Scan(&asset.LocalID)
		if err != nil {
			return fmt.Errorf("failed to create asset: %w", err)
		}

		event = capture.ChangeEvent{
			Channel:    models.ChannelAsset,
			RecordUUID: asset.UUID,
			Operation:  models.OpInsert,
			After:      asset.Snapshot(),
		}
	} else {
		if asset.Version == 0 {
			asset.Version = existing.Version + 1
		}
		asset.LocalID = existing.LocalID
		asset.CreatedAt = existing.CreatedAt
		asset.UpdatedAt = now

		query := `UPDATE assets
		          SET label = $1, host = $2, port = $3, username = $4, key_chain_uuid = $5,
		              version = $6, updated_at = $7
		          WHERE uuid = $8`

		_, err = tx.ExecContext(ctx, query,
			asset.Label,
			asset.Host,
			asset.Port,
			asset.Username,
			nullableUUID(asset.KeyChainUUID),
			asset.Version,
			toNS(asset.UpdatedAt),
			asset.UUID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}

		event = capture.ChangeEvent{
			Channel:    models.ChannelAsset,
			RecordUUID: asset.UUID,
			Operation:  models.OpUpdate,
			Before:     existing.Snapshot(),
			After:      asset.Snapshot(),
		}
	}

	if !r.guard.Suppressed() {
		if err := r.interceptor.Capture(ctx, tx, event); err != nil {
			// Capture loss breaks the sync guarantee; roll the write back too.
			return fmt.Errorf("failed to capture asset change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit asset upsert: %w", err)
	}
	return nil
}

// Delete removes the asset by uuid. Deleting an absent uuid is a no-op, not
// an error, and produces no change record.
func (r *SQLAssetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getAssetByUUID(ctx, tx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE uuid = $1`, id.String()); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	if !r.guard.Suppressed() {
		event := capture.ChangeEvent{
			Channel:    models.ChannelAsset,
			RecordUUID: id,
			Operation:  models.OpDelete,
			Before:     existing.Snapshot(),
		}
		if err := r.interceptor.Capture(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to capture asset delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit asset delete: %w", err)
	}
	return nil
}

// BumpVersion advances the version to currentVersion+1 after the local
// change was confirmed synced. It is a no-op when id or currentVersion is
// unset, and it deliberately bypasses capture: the bump is bookkeeping for
// an already-transmitted change, not a new one.
func (r *SQLAssetRepository) BumpVersion(ctx context.Context, id uuid.UUID, currentVersion int64) error {
	if id == uuid.Nil || currentVersion == 0 {
		return nil
	}

	query := `UPDATE assets SET version = $1, updated_at = $2 WHERE uuid = $3`
	result, err := r.db.ExecContext(ctx, query, currentVersion+1, toNS(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("failed to bump asset version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to bump asset version: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAsset(row interface{ Scan(dest ...any) error }) (*models.Asset, error) {
	var (
		asset        models.Asset
		rawUUID      string
		keyChainUUID sql.NullString
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(
		&asset.LocalID,
		&rawUUID,
		&asset.Label,
		&asset.Host,
		&asset.Port,
		&asset.Username,
		&keyChainUUID,
		&asset.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.UUID, err = uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid asset uuid %q: %w", rawUUID, err)
	}
	if keyChainUUID.Valid {
		kc, err := uuid.Parse(keyChainUUID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid key chain uuid %q: %w", keyChainUUID.String, err)
		}
		asset.KeyChainUUID = &kc
	}
	asset.CreatedAt = fromNS(createdAt)
	asset.UpdatedAt = fromNS(updatedAt)
	return &asset, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
