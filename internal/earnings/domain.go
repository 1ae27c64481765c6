package earnings

import (
	"time"

	"github.com/google/uuid"
)

// RawValue is one platform value entered through the model's calculator.
// Rows stay mutable while the period is open and are deleted by the closure
// pipeline once archived.
type RawValue struct {
	ModelID    uuid.UUID
	PlatformID string
	PeriodDate time.Time
	Value      float64
	UpdatedAt  time.Time
}

// Consolidate keeps the most recently updated row per platform,
// last-write-wins within the period. Input order is preserved for the
// surviving rows.
func Consolidate(values []RawValue) []RawValue {
	latest := make(map[string]int, len(values))
	var out []RawValue
	for _, v := range values {
		idx, seen := latest[v.PlatformID]
		if !seen {
			latest[v.PlatformID] = len(out)
			out = append(out, v)
			continue
		}
		if v.UpdatedAt.After(out[idx].UpdatedAt) {
			out[idx] = v
		}
	}
	return out
}
