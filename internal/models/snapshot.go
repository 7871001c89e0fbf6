package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Snapshot is the structured form of a change payload: a full row image keyed
// by field name. It stays structured inside the engine and is serialized to
// JSON only at the storage boundary, so numeric fields may come back as
// float64 or json.Number after a round trip.
type Snapshot map[string]any

// SnapshotError reports a snapshot that cannot be turned back into a row.
type SnapshotError struct {
	Field  string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot field %q: %s", e.Field, e.Reason)
}

func (s Snapshot) stringField(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s Snapshot) intField(key string) int64 {
	switch v := s[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return n
		}
	}
	return 0
}

func (s Snapshot) uuidField(key string) (uuid.UUID, error) {
	raw, ok := s[key].(string)
	if !ok || raw == "" {
		return uuid.Nil, &SnapshotError{Field: key, Reason: "missing"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &SnapshotError{Field: key, Reason: "not a valid uuid"}
	}
	return id, nil
}

func (s Snapshot) versionField() (int64, error) {
	v := s.intField("version")
	if v < 1 {
		return 0, &SnapshotError{Field: "version", Reason: "missing or below 1"}
	}
	return v, nil
}
