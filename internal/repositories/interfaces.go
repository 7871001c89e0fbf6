package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/localsync/internal/models"
)

type AssetRepository interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	ListChangedSince(ctx context.Context, since time.Time) ([]*models.Asset, error)
	Upsert(ctx context.Context, asset *models.Asset) error
	Delete(ctx context.Context, id uuid.UUID) error
	BumpVersion(ctx context.Context, id uuid.UUID, currentVersion int64) error
}

type KeyChainRepository interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.KeyChain, error)
	ListChangedSince(ctx context.Context, since time.Time) ([]*models.KeyChain, error)
	Upsert(ctx context.Context, keyChain *models.KeyChain) error
	Delete(ctx context.Context, id uuid.UUID) error
	BumpVersion(ctx context.Context, id uuid.UUID, currentVersion int64) error
}

type OutboxRepository interface {
	PendingChanges(ctx context.Context) ([]*models.ChangeRecord, error)
	PendingChangesPage(ctx context.Context, channel string, limit, offset int) ([]*models.ChangeRecord, error)
	CountPending(ctx context.Context, channel string) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error)
	MarkSynced(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error
}

type CursorRepository interface {
	LastSyncTime(ctx context.Context, channel string) (time.Time, error)
	SetLastSyncTime(ctx context.Context, channel string, t time.Time) error
	LastSequenceID(ctx context.Context) (int64, error)
	SetLastSequenceID(ctx context.Context, seq int64) error
	GuardFlag(ctx context.Context) (bool, error)
	SetGuardFlag(ctx context.Context, enabled bool) error
}
