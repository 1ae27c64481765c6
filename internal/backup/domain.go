package backup

import (
	"time"

	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/shared"
)

// namespace scopes the deterministic logical period key. Fixed forever:
// the same (period, type, model) must always map to the same snapshot id.
var namespace = uuid.MustParse("9c0f1a7e-1b6d-4a53-8f12-5d2c3b9e4a01")

// LogicalPeriodKey derives the deterministic snapshot identifier for a
// (periodDate, periodType, modelID) triple. Repeated snapshot calls for
// the same logical period hit the same row.
func LogicalPeriodKey(periodDate time.Time, periodType shared.PeriodType, modelID uuid.UUID) uuid.UUID {
	name := periodDate.Format("2006-01-02") + "|" + string(periodType) + "|" + modelID.String()
	return uuid.NewSHA1(namespace, []byte(name))
}

// SafetyRow is one raw value copied aside immediately before deletion,
// together with the rate and config snapshot used for the run.
type SafetyRow struct {
	ModelID     uuid.UUID
	PlatformID  string
	ValueDate   time.Time
	PeriodDate  time.Time
	PeriodType  shared.PeriodType
	Value       float64
	UpdatedAt   time.Time
	RatesJSON   []byte
	ConfigJSON  []byte
	Verified    bool
	DeletedFrom bool // deleted_from_model_values, set only after the live delete succeeds
	BackedUpAt  time.Time
}

// Snapshot is the second, independent recovery path: the full raw-value,
// rate-history, and config payload for a logical period.
type Snapshot struct {
	ID         uuid.UUID
	ModelID    uuid.UUID
	PeriodDate time.Time
	PeriodType shared.PeriodType
	Payload    []byte
	Checksum   string
	CreatedAt  time.Time
}
