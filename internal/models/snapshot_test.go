package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssetSnapshotRoundTrip tests that an asset survives the snapshot ->
// JSON -> snapshot -> asset path, including the float64 numbers JSON
// decoding produces.
func TestAssetSnapshotRoundTrip(t *testing.T) {
	keyChainID := uuid.New()
	asset := &Asset{
		UUID:         uuid.New(),
		Label:        "jump host",
		Host:         "203.0.113.7",
		Port:         2222,
		Username:     "ops",
		KeyChainUUID: &keyChainID,
		Version:      3,
	}

	// ACT: Serialize and re-parse the snapshot the way the outbox does
	data, err := json.Marshal(asset.Snapshot())
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	rebuilt, err := AssetFromSnapshot(decoded)
	require.NoError(t, err)

	assert.Equal(t, asset.UUID, rebuilt.UUID)
	assert.Equal(t, asset.Label, rebuilt.Label)
	assert.Equal(t, asset.Host, rebuilt.Host)
	assert.Equal(t, int64(2222), rebuilt.Port, "port must survive the float64 detour")
	assert.Equal(t, asset.Username, rebuilt.Username)
	require.NotNil(t, rebuilt.KeyChainUUID)
	assert.Equal(t, keyChainID, *rebuilt.KeyChainUUID)
	assert.Equal(t, int64(3), rebuilt.Version)
}

// TestAssetFromSnapshot_Validation tests the required-field checks that back
// the apply-failure taxonomy.
func TestAssetFromSnapshot_Validation(t *testing.T) {
	_, err := AssetFromSnapshot(Snapshot{"label": "no identity"})
	require.Error(t, err)

	var snapErr *SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, "uuid", snapErr.Field)

	_, err = AssetFromSnapshot(Snapshot{"uuid": uuid.New().String()})
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, "version", snapErr.Field)

	_, err = AssetFromSnapshot(Snapshot{"uuid": "not-a-uuid", "version": int64(1)})
	assert.Error(t, err)

	_, err = AssetFromSnapshot(Snapshot{
		"uuid":           uuid.New().String(),
		"version":        int64(1),
		"key_chain_uuid": "bogus",
	})
	assert.Error(t, err)
}

// TestKeyChainSnapshotRoundTrip mirrors the asset round trip for the second
// tracked entity.
func TestKeyChainSnapshotRoundTrip(t *testing.T) {
	keyChain := &KeyChain{
		UUID:        uuid.New(),
		Label:       "ci key",
		KeyType:     "rsa",
		PublicKey:   "AAAAB3Nza...",
		Fingerprint: "SHA256:xyz",
		Version:     7,
	}

	data, err := json.Marshal(keyChain.Snapshot())
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	rebuilt, err := KeyChainFromSnapshot(decoded)
	require.NoError(t, err)
	assert.Equal(t, keyChain.UUID, rebuilt.UUID)
	assert.Equal(t, keyChain.PublicKey, rebuilt.PublicKey)
	assert.Equal(t, int64(7), rebuilt.Version)
}

// TestSnapshotIntField covers the numeric forms a snapshot can carry.
func TestSnapshotIntField(t *testing.T) {
	assert.Equal(t, int64(5), Snapshot{"n": int64(5)}.intField("n"))
	assert.Equal(t, int64(5), Snapshot{"n": 5}.intField("n"))
	assert.Equal(t, int64(5), Snapshot{"n": float64(5)}.intField("n"))
	assert.Equal(t, int64(5), Snapshot{"n": json.Number("5")}.intField("n"))
	assert.Zero(t, Snapshot{"n": "5"}.intField("n"), "strings are not numbers")
	assert.Zero(t, Snapshot{}.intField("missing"))
}
