package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/localsync/internal/capture"
	"github.com/prudhvinik1/localsync/internal/database"
	"github.com/prudhvinik1/localsync/internal/models"
)

// TestAssetRepository_Upsert_Create tests inserting a brand-new asset
func TestAssetRepository_Upsert_Create(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	// ACT: Upsert an asset with an unknown uuid
	asset := &models.Asset{
		UUID:  uuid.New(),
		Label: "build box",
		Host:  "10.0.0.5",
		Port:  22,
	}
	err := repo.Upsert(ctx, asset)

	// ASSERT: Row created at version 1 with store-assigned fields populated
	require.NoError(t, err)
	assert.NotZero(t, asset.LocalID, "local id should be assigned")
	assert.Equal(t, int64(1), asset.Version, "new asset should start at version 1")
	assert.False(t, asset.CreatedAt.IsZero(), "CreatedAt should be set")

	// ASSERT: Exactly one pending INSERT change was captured
	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OpInsert, changes[0].Operation)
	assert.Equal(t, models.ChannelAsset, changes[0].TableName)
	assert.Equal(t, asset.UUID, changes[0].RecordUUID)
	assert.Nil(t, changes[0].BeforeData, "INSERT has no pre-image")
	assert.Equal(t, "build box", changes[0].ChangeData["label"])
}

// TestAssetRepository_Upsert_Update tests the full before/after round trip:
// updating {label:"a", port:22} to {label:"b", port:22} must capture a
// change whose before_data.label is "a" and change_data.label is "b".
func TestAssetRepository_Upsert_Update(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "a", Host: "h", Port: 22}))

	// ACT: Update the label, leaving the port alone
	updated := &models.Asset{UUID: id, Label: "b", Host: "h", Port: 22}
	err := repo.Upsert(ctx, updated)

	// ASSERT: Version advanced by exactly 1
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	update := changes[1]
	assert.Equal(t, models.OpUpdate, update.Operation)
	assert.Equal(t, "a", update.BeforeData["label"])
	assert.Equal(t, "b", update.ChangeData["label"])
	assert.EqualValues(t, 22, update.BeforeData["port"])
	assert.EqualValues(t, 22, update.ChangeData["port"])
	assert.EqualValues(t, 1, update.BeforeData["version"])
	assert.EqualValues(t, 2, update.ChangeData["version"])
}

// TestAssetRepository_CaptureOneToOne tests the 1:1 capture property: every
// write produces exactly one pending change record.
func TestAssetRepository_CaptureOneToOne(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "one", Host: "h"}))
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "two", Host: "h"}))
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: uuid.New(), Label: "other", Host: "h"}))
	require.NoError(t, repo.Delete(ctx, id))

	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 4, "4 writes must produce exactly 4 change records")
}

// TestAssetRepository_GuardSuppressesCapture tests that writes performed
// while the echo guard is enabled produce no change records at all.
func TestAssetRepository_GuardSuppressesCapture(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	// ACT: N writes under the guard
	guard.Set(true)
	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "remote", Host: "h"}))
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "remote2", Host: "h"}))
	require.NoError(t, repo.Delete(ctx, id))
	guard.Set(false)

	// ASSERT: Zero captured
	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes, "guarded writes must not be captured")

	// ASSERT: Capture resumes once the guard is released
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: uuid.New(), Label: "local", Host: "h"}))
	changes, err = outbox.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

// TestAssetRepository_CaptureFailureRollsBackWrite tests that a write whose
// change record cannot be appended does not survive: the whole transaction
// rolls back.
func TestAssetRepository_CaptureFailureRollsBackWrite(t *testing.T) {
	db, _, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, failingInterceptor{}, guard)
	ctx := context.Background()

	id := uuid.New()
	err := repo.Upsert(ctx, &models.Asset{UUID: id, Label: "doomed", Host: "h"})

	require.Error(t, err)
	_, err = repo.GetByUUID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound, "row must not exist after capture failure")
}

// TestAssetRepository_Delete_Idempotent tests that deleting an absent uuid
// is a no-op, not an error, and captures nothing.
func TestAssetRepository_Delete_Idempotent(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, uuid.New()))

	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

// TestAssetRepository_Delete_CapturesBeforeImage tests that a real delete
// removes the row and captures a DELETE with the full pre-image.
func TestAssetRepository_Delete_CapturesBeforeImage(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "gone soon", Host: "h", Port: 2222}))

	require.NoError(t, repo.Delete(ctx, id))

	_, err := repo.GetByUUID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	del := changes[1]
	assert.Equal(t, models.OpDelete, del.Operation)
	assert.Nil(t, del.ChangeData, "DELETE has no post-image")
	assert.Equal(t, "gone soon", del.BeforeData["label"])
	assert.EqualValues(t, 2222, del.BeforeData["port"])
}

// TestAssetRepository_BumpVersion tests the confirmed-sync bookkeeping bump:
// version advances without producing a change record.
func TestAssetRepository_BumpVersion(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: id, Label: "x", Host: "h"}))

	// ACT: Bump with known baseline
	require.NoError(t, repo.BumpVersion(ctx, id, 1))

	asset, err := repo.GetByUUID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), asset.Version)

	// ASSERT: Bump is not a tracked mutation
	changes, err := outbox.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 1, "only the original insert should be captured")

	// ASSERT: Unknown baselines are guarded no-ops
	assert.NoError(t, repo.BumpVersion(ctx, uuid.Nil, 2))
	assert.NoError(t, repo.BumpVersion(ctx, id, 0))
	assert.ErrorIs(t, repo.BumpVersion(ctx, uuid.New(), 5), ErrNotFound)
}

// TestAssetRepository_ListChangedSince tests the pull-loop incremental read.
func TestAssetRepository_ListChangedSince(t *testing.T) {
	db, outbox, guard := openTestStore(t)
	repo := NewSQLAssetRepository(db, outbox, guard)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Asset{UUID: uuid.New(), Label: "old", Host: "h"}))
	cutoff := time.Now()
	newer := &models.Asset{UUID: uuid.New(), Label: "new", Host: "h"}
	require.NoError(t, repo.Upsert(ctx, newer))

	assets, err := repo.ListChangedSince(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, newer.UUID, assets[0].UUID)

	all, err := repo.ListChangedSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "zero time returns everything")
}

// Helper functions for test setup

// openTestStore opens an in-memory store with the full schema and returns
// the handles shared by every repository test.
func openTestStore(t *testing.T) (*sql.DB, *SQLOutboxRepository, *capture.Guard) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err, "failed to open in-memory store")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	return db, NewSQLOutboxRepository(db), capture.NewGuard()
}

// failingInterceptor simulates an outbox that cannot accept the change.
type failingInterceptor struct{}

func (failingInterceptor) Capture(ctx context.Context, tx *sql.Tx, event capture.ChangeEvent) error {
	return errors.New("outbox unavailable")
}
