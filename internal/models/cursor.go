package models

import "time"

// SyncCursor records the last successful pull position for one channel.
type SyncCursor struct {
	TableName    string    `json:"table_name"`
	LastSyncTime time.Time `json:"last_sync_time"`
}
