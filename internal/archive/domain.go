package archive

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/shared"
)

// Record is one immutable archived earning row, the system of record once
// a period closes. Unique on (model_id, platform_id, period_date,
// period_type).
type Record struct {
	ModelID            uuid.UUID         `json:"model_id"`
	PlatformID         string            `json:"platform_id"`
	PeriodDate         time.Time         `json:"period_date"`
	PeriodType         shared.PeriodType `json:"period_type"`
	Value              float64           `json:"value"`
	RateEURUSD         float64           `json:"rate_eur_usd"`
	RateGBPUSD         float64           `json:"rate_gbp_usd"`
	RateUSDCOP         float64           `json:"rate_usd_cop"`
	PlatformPercentage float64           `json:"platform_percentage"`
	ValueUSDBruto      float64           `json:"value_usd_bruto"`
	ValueUSDModelo     float64           `json:"value_usd_modelo"`
	ValueCOPModelo     float64           `json:"value_cop_modelo"`
	ArchivedAt         time.Time         `json:"archived_at"`
}

// Result reports a finished archive-and-reset run.
type Result struct {
	Archived int
	Deleted  int
}

// VerifyReport is what the archive table actually contains for one
// (model, period, type) after the write step.
type VerifyReport struct {
	Count        int
	PlatformIDs  []string
	NullNumerics int
}

var (
	// ErrArchiveCountMismatch indicates the archive row count does not
	// match what was intended to be written.
	ErrArchiveCountMismatch = errors.New("archive: archived row count mismatch")
	// ErrArchivePlatformMismatch indicates the archived platform id set
	// diverges from the consolidated input.
	ErrArchivePlatformMismatch = errors.New("archive: archived platform set mismatch")
	// ErrArchiveNullNumerics indicates archived rows with null computed
	// values.
	ErrArchiveNullNumerics = errors.New("archive: archived rows carry null computed values")
	// ErrBackupCountMismatch indicates the safety backup does not cover
	// every raw row about to be deleted.
	ErrBackupCountMismatch = errors.New("archive: safety backup count mismatch")
	// ErrRawCountDrift indicates raw rows were written after the run
	// loaded them, so deleting would destroy unarchived data.
	ErrRawCountDrift = errors.New("archive: raw values changed during run")
)
