package rates

import (
	"time"

	"github.com/google/uuid"
)

// RateSet is the active currency exchange rate set. At most one open-ended
// set (ValidTo nil) is active at a time; it is supplied by an external
// collaborator and read-only here.
type RateSet struct {
	USDCOP    float64    `json:"rate_usd_cop"`
	EURUSD    float64    `json:"rate_eur_usd"`
	GBPUSD    float64    `json:"rate_gbp_usd"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	Active    bool       `json:"active"`
}

// ModelConfig carries a model's revenue-share configuration.
type ModelConfig struct {
	ModelID            uuid.UUID
	PercentageOverride *float64
	GroupPercentage    *float64
	Active             bool
}

// Defaults hold the fallback values applied when no active configuration
// exists. They are configurable, not re-derived.
type Defaults struct {
	USDCOP          float64
	EURUSD          float64
	GBPUSD          float64
	ModelPercentage float64
}

// ResolvedPercentage applies the override/group/default chain.
func (c ModelConfig) ResolvedPercentage(fallback float64) float64 {
	if c.PercentageOverride != nil {
		return *c.PercentageOverride
	}
	if c.GroupPercentage != nil {
		return *c.GroupPercentage
	}
	return fallback
}
