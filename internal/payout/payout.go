package payout

import (
	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/rates"
)

// Breakdown carries the three derived values archived for a platform row.
type Breakdown struct {
	USDGross float64
	USDModel float64
	COPModel float64
}

// Compute derives the full breakdown for one platform value. percentage is
// the model's resolved share (0-100); superfoon overrides it to 100.
func Compute(value float64, platformID string, currency catalog.Currency, percentage float64, r rates.RateSet) Breakdown {
	gross := USDGross(value, platformID, currency, r)
	share := percentage
	if IsSuperfoon(platformID) {
		share = 100
	}
	usdModel := gross * (share / 100)
	return Breakdown{
		USDGross: gross,
		USDModel: usdModel,
		COPModel: usdModel * r.USDCOP,
	}
}
