package models

import (
	"time"

	"github.com/google/uuid"
)

// KeyChain is a tracked credential reference. Only the public half and the
// fingerprint are stored here; secret material lives outside this core.
type KeyChain struct {
	LocalID     int64     `json:"-"`
	UUID        uuid.UUID `json:"uuid"`
	Label       string    `json:"label"`
	KeyType     string    `json:"key_type"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns the full sync-visible image of the key chain.
func (k *KeyChain) Snapshot() Snapshot {
	return Snapshot{
		"uuid":        k.UUID.String(),
		"label":       k.Label,
		"key_type":    k.KeyType,
		"public_key":  k.PublicKey,
		"fingerprint": k.Fingerprint,
		"version":     k.Version,
	}
}

// KeyChainFromSnapshot rebuilds a key chain from a change snapshot.
func KeyChainFromSnapshot(s Snapshot) (*KeyChain, error) {
	id, err := s.uuidField("uuid")
	if err != nil {
		return nil, err
	}
	version, err := s.versionField()
	if err != nil {
		return nil, err
	}

	return &KeyChain{
		UUID:        id,
		Label:       s.stringField("label"),
		KeyType:     s.stringField("key_type"),
		PublicKey:   s.stringField("public_key"),
		Fingerprint: s.stringField("fingerprint"),
		Version:     version,
	}, nil
}
