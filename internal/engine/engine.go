package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhvinik1/localsync/internal/capture"
	"github.com/prudhvinik1/localsync/internal/models"
	"github.com/prudhvinik1/localsync/internal/repositories"
)

// Engine applies remote-origin changes to the local store. Each apply runs
// under the echo guard so the mutation is not re-captured into the outbox,
// and applies are mutually exclusive: two concurrent applies interleaving
// guard state could leak a remote change into the outbox.
type Engine struct {
	mu sync.Mutex

	assets    repositories.AssetRepository
	keyChains repositories.KeyChainRepository
	cursors   repositories.CursorRepository
	guard     *capture.Guard
	logger    *zap.Logger
}

func New(
	assets repositories.AssetRepository,
	keyChains repositories.KeyChainRepository,
	cursors repositories.CursorRepository,
	guard *capture.Guard,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		assets:    assets,
		keyChains: keyChains,
		cursors:   cursors,
		guard:     guard,
		logger:    logger.Named("engine"),
	}
}

// Apply reconciles one inbound change against the local store:
// guard on -> applied or rejected -> guard off. The guard release is
// deferred, so a failed or cancelled apply can never leave capture disabled.
//
// INSERT/UPDATE upsert the snapshot with the remote version as-is (the
// remote already merged and ordered on its side); DELETE removes by uuid. A
// local row at an equal or newer version rejects the change with
// ErrApplyConflict and stays untouched.
func (e *Engine) Apply(ctx context.Context, change *models.ChangeRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	release := e.guard.Acquire()
	defer release()

	return e.applyLocked(ctx, change)
}

func (e *Engine) applyLocked(ctx context.Context, change *models.ChangeRecord) error {
	switch change.TableName {
	case models.ChannelAsset:
		return e.applyAsset(ctx, change)
	case models.ChannelKeyChain:
		return e.applyKeyChain(ctx, change)
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrApplyFailure, change.TableName)
	}
}

func (e *Engine) applyAsset(ctx context.Context, change *models.ChangeRecord) error {
	if change.Operation == models.OpDelete {
		return e.assets.Delete(ctx, change.RecordUUID)
	}

	incoming, err := models.AssetFromSnapshot(change.ChangeData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailure, err)
	}

	local, err := e.assets.GetByUUID(ctx, incoming.UUID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if local != nil && local.Version >= incoming.Version {
		e.logger.Warn("rejecting stale remote change",
			zap.String("channel", change.TableName),
			zap.String("record_uuid", incoming.UUID.String()),
			zap.Int64("local_version", local.Version),
			zap.Int64("incoming_version", incoming.Version),
		)
		return fmt.Errorf("%w: asset %s local=%d incoming=%d",
			ErrApplyConflict, incoming.UUID, local.Version, incoming.Version)
	}

	return e.assets.Upsert(ctx, incoming)
}

func (e *Engine) applyKeyChain(ctx context.Context, change *models.ChangeRecord) error {
	if change.Operation == models.OpDelete {
		return e.keyChains.Delete(ctx, change.RecordUUID)
	}

	incoming, err := models.KeyChainFromSnapshot(change.ChangeData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyFailure, err)
	}

	local, err := e.keyChains.GetByUUID(ctx, incoming.UUID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if local != nil && local.Version >= incoming.Version {
		e.logger.Warn("rejecting stale remote change",
			zap.String("channel", change.TableName),
			zap.String("record_uuid", incoming.UUID.String()),
			zap.Int64("local_version", local.Version),
			zap.Int64("incoming_version", incoming.Version),
		)
		return fmt.Errorf("%w: key chain %s local=%d incoming=%d",
			ErrApplyConflict, incoming.UUID, local.Version, incoming.Version)
	}

	return e.keyChains.Upsert(ctx, incoming)
}

// ApplyBatch applies remote changes in the declared order; the engine never
// reorders. Conflicts are collected and reported, not fatal; any other
// failure stops the batch and the watermark is not advanced past it. After a
// fully processed batch the sequence watermark moves to seq — only then, so
// a crash mid-batch resumes from the previous watermark.
func (e *Engine) ApplyBatch(ctx context.Context, changes []*models.ChangeRecord, seq int64) (conflicts []uuid.UUID, err error) {
	for _, change := range changes {
		if err := e.Apply(ctx, change); err != nil {
			if errors.Is(err, ErrApplyConflict) {
				conflicts = append(conflicts, change.ID)
				continue
			}
			return conflicts, err
		}
	}

	if err := e.cursors.SetLastSequenceID(ctx, seq); err != nil {
		return conflicts, fmt.Errorf("failed to advance sequence watermark: %w", err)
	}
	e.logger.Debug("applied remote batch",
		zap.Int("changes", len(changes)),
		zap.Int("conflicts", len(conflicts)),
		zap.Int64("sequence", seq),
	)
	return conflicts, nil
}

// SetRemoteApplyGuard toggles capture suppression for orchestrator-driven
// bulk remote-apply batches that bypass Apply. The flag is mirrored into the
// metadata table; schema bootstrap clears the persisted copy on startup so a
// crash mid-batch cannot leave capture disabled.
func (e *Engine) SetRemoteApplyGuard(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.guard.Set(enabled)
	if err := e.cursors.SetGuardFlag(ctx, enabled); err != nil {
		return err
	}
	e.logger.Info("remote apply guard set", zap.Bool("enabled", enabled))
	return nil
}
