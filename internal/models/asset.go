package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset is a tracked connection target (a host the user can reach).
// LocalID is assigned by the store and never crosses the sync boundary;
// UUID is the only identity the remote side ever sees.
type Asset struct {
	LocalID      int64      `json:"-"`
	UUID         uuid.UUID  `json:"uuid"`
	Label        string     `json:"label"`
	Host         string     `json:"host"`
	Port         int64      `json:"port"`
	Username     string     `json:"username"`
	KeyChainUUID *uuid.UUID `json:"key_chain_uuid,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Snapshot returns the full sync-visible image of the asset. Store-assigned
// fields (local id, timestamps) are excluded: the remote apply side cannot
// assume it has prior state, so everything else must be present.
func (a *Asset) Snapshot() Snapshot {
	s := Snapshot{
		"uuid":     a.UUID.String(),
		"label":    a.Label,
		"host":     a.Host,
		"port":     a.Port,
		"username": a.Username,
		"version":  a.Version,
	}
	if a.KeyChainUUID != nil {
		s["key_chain_uuid"] = a.KeyChainUUID.String()
	}
	return s
}

// AssetFromSnapshot rebuilds an asset from a change snapshot. UUID and a
// version >= 1 are required; the remaining fields default to their zero
// values when absent.
func AssetFromSnapshot(s Snapshot) (*Asset, error) {
	id, err := s.uuidField("uuid")
	if err != nil {
		return nil, err
	}
	version, err := s.versionField()
	if err != nil {
		return nil, err
	}

	asset := &Asset{
		UUID:     id,
		Label:    s.stringField("label"),
		Host:     s.stringField("host"),
		Port:     s.intField("port"),
		Username: s.stringField("username"),
		Version:  version,
	}
	if raw := s.stringField("key_chain_uuid"); raw != "" {
		kc, err := uuid.Parse(raw)
		if err != nil {
			return nil, &SnapshotError{Field: "key_chain_uuid", Reason: "not a valid uuid"}
		}
		asset.KeyChainUUID = &kc
	}
	return asset, nil
}
