package capture

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/prudhvinik1/localsync/internal/models"
)

// ChangeEvent is the full pre/post image of one mutation to a tracked row.
// Snapshots are complete row images, never diffs: the remote apply side
// cannot assume it has any prior state.
type ChangeEvent struct {
	Channel    string
	RecordUUID uuid.UUID
	Operation  models.Operation
	Before     models.Snapshot // nil for INSERT
	After      models.Snapshot // nil for DELETE
}

// Interceptor receives every mutation to a tracked table, synchronously and
// inside the same transaction as the row write. Returning an error aborts
// that transaction: a row write must never commit without its change record.
type Interceptor interface {
	Capture(ctx context.Context, tx *sql.Tx, event ChangeEvent) error
}
