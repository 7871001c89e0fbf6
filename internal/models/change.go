package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel names identify the logical sync stream of each tracked table.
// They are what crosses the sync boundary; physical table names never do.
const (
	ChannelAsset    = "asset"
	ChannelKeyChain = "key-chain"
)

// Channels lists every tracked channel in a stable order.
func Channels() []string {
	return []string{ChannelAsset, ChannelKeyChain}
}

type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
)

// ChangeRecord is one captured mutation in the outbox. Seq is the local
// insertion order and never crosses the sync boundary; ID is the globally
// unique change identity. Records are immutable once written except for
// SyncStatus, RetryCount and ErrorMessage.
type ChangeRecord struct {
	Seq          int64      `json:"-"`
	ID           uuid.UUID  `json:"id"`
	TableName    string     `json:"table_name"`
	RecordUUID   uuid.UUID  `json:"record_uuid"`
	Operation    Operation  `json:"operation"`
	ChangeData   Snapshot   `json:"change_data,omitempty"`
	BeforeData   Snapshot   `json:"before_data,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SyncStatus   SyncStatus `json:"sync_status"`
	RetryCount   int64      `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
