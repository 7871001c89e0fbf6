package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prudhvinik1/localsync/internal/models"
)

// Timestamps are persisted as unix nanoseconds; see the schema notes in
// internal/database.

func toNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNS(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// marshalSnapshot serializes a snapshot for storage. A nil snapshot maps to
// SQL NULL (DELETE has no post-image, INSERT has no pre-image).
func marshalSnapshot(s models.Snapshot) (any, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return string(data), nil
}

func unmarshalSnapshot(raw *string) (models.Snapshot, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var s models.Snapshot
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return s, nil
}

// placeholders renders "$start, $start+1, ..." for an IN clause.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
