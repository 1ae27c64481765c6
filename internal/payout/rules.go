// Package payout holds the pure conversion math that turns a raw
// platform-reported value into USD gross, USD model share, and COP model
// share. The rule table below is the single source of truth for every
// calculation site; the factors reproduce historical payouts bit-for-bit
// and must not be re-derived.
package payout

import (
	"strings"

	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/rates"
)

// platformFactors maps a normalised platform id to its payout discount
// factor. Ids absent from the table convert with factor 1 in their
// platform currency.
var platformFactors = map[string]float64{
	// EUR platforms
	"big7":  0.84,
	"mondo": 0.78,
	// GBP platforms
	"aw": 0.677,
	// USD platforms
	"cmd":           0.75,
	"camlust":       0.75,
	"skypvt":        0.75,
	"chaturbate":    0.05, // token conversion
	"myfreecams":    0.05,
	"stripchat":     0.05,
	"dxlive":        0.60,
	"secretfriends": 0.5,
	"superfoon":     1,
}

// superfoonKey is the normalised id of the platform that always pays the
// model 100% of gross regardless of configured percentage.
const superfoonKey = "superfoon"

// Normalize lowercases a platform id or name and strips every
// non-alphanumeric rune. Comparisons against the rule table and the
// superfoon exception happen on this form only.
func Normalize(idOrName string) string {
	var b strings.Builder
	b.Grow(len(idOrName))
	for _, r := range strings.ToLower(idOrName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsSuperfoon reports whether the platform id or name normalises to the
// superfoon platform.
func IsSuperfoon(idOrName string) bool {
	return Normalize(idOrName) == superfoonKey
}

// Factor returns the payout discount factor for a platform id.
func Factor(platformID string) float64 {
	if f, ok := platformFactors[Normalize(platformID)]; ok {
		return f
	}
	return 1
}

// USDGross converts a raw platform value into USD gross using the
// platform's factor and, for EUR/GBP platforms, the matching exchange rate.
func USDGross(value float64, platformID string, currency catalog.Currency, r rates.RateSet) float64 {
	factor := Factor(platformID)
	switch currency {
	case catalog.CurrencyEUR:
		return value * r.EURUSD * factor
	case catalog.CurrencyGBP:
		return value * r.GBPUSD * factor
	default:
		return value * factor
	}
}
