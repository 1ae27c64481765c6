package freeze

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Mark records that a (model, platform) pair is immutable for a period.
// Once present the calculator UI must reject edits for that platform, but
// the frozen value still counts toward period totals.
type Mark struct {
	PeriodDate time.Time
	ModelID    uuid.UUID
	PlatformID string
	FrozenAt   time.Time
}

// ErrNoPlatforms indicates a freeze request without platform ids.
var ErrNoPlatforms = errors.New("freeze: at least one platform id required")
