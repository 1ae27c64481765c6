package payout

import (
	"math"
	"testing"

	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/rates"
)

func fixedRates() rates.RateSet {
	return rates.RateSet{USDCOP: 4000, EURUSD: 1.0, GBPUSD: 1.2}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUSDGrossRuleTable(t *testing.T) {
	r := fixedRates()
	cases := []struct {
		name     string
		platform string
		currency catalog.Currency
		value    float64
		want     float64
	}{
		{"big7 eur discount", "big7", catalog.CurrencyEUR, 100, 84},
		{"mondo eur discount", "mondo", catalog.CurrencyEUR, 100, 78},
		{"eur default", "livejasmin", catalog.CurrencyEUR, 100, 100},
		{"aw gbp discount", "aw", catalog.CurrencyGBP, 100, 100 * 1.2 * 0.677},
		{"gbp default", "onlyfansuk", catalog.CurrencyGBP, 100, 120},
		{"cmd usd", "cmd", catalog.CurrencyUSD, 100, 75},
		{"camlust usd", "camlust", catalog.CurrencyUSD, 100, 75},
		{"skypvt usd", "skypvt", catalog.CurrencyUSD, 100, 75},
		{"chaturbate tokens", "chaturbate", catalog.CurrencyUSD, 1000, 50},
		{"myfreecams tokens", "myfreecams", catalog.CurrencyUSD, 1000, 50},
		{"stripchat tokens", "stripchat", catalog.CurrencyUSD, 1000, 50},
		{"dxlive usd", "dxlive", catalog.CurrencyUSD, 100, 60},
		{"secretfriends usd", "secretfriends", catalog.CurrencyUSD, 100, 50},
		{"superfoon usd", "superfoon", catalog.CurrencyUSD, 100, 100},
		{"usd default", "streamate", catalog.CurrencyUSD, 200, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := USDGross(tc.value, tc.platform, tc.currency, r)
			if !almostEqual(got, tc.want) {
				t.Fatalf("USDGross(%q) = %v, want %v", tc.platform, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Superfoon":   "superfoon",
		"SUPER-FOON":  "superfoon",
		"super_foon!": "superfoon",
		"Big 7":       "big7",
		"AW ":         "aw",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSuperfoonAlwaysTakesFullGross(t *testing.T) {
	r := fixedRates()
	for _, pct := range []float64{0, 50, 80, 100} {
		bd := Compute(130, "superfoon", catalog.CurrencyUSD, pct, r)
		if !almostEqual(bd.USDModel, bd.USDGross) {
			t.Fatalf("superfoon share at %v%% = %v, want full gross %v", pct, bd.USDModel, bd.USDGross)
		}
	}
	// normalised variants of the name behave identically
	bd := Compute(130, "Super-Foon", catalog.CurrencyUSD, 50, r)
	if !almostEqual(bd.USDModel, 130) {
		t.Fatalf("normalised superfoon share = %v, want 130", bd.USDModel)
	}
}

func TestComputeBreakdown(t *testing.T) {
	r := fixedRates()

	a := Compute(200, "platforma", catalog.CurrencyUSD, 80, r)
	if !almostEqual(a.USDGross, 200) || !almostEqual(a.USDModel, 160) || !almostEqual(a.COPModel, 640000) {
		t.Fatalf("default usd breakdown = %+v", a)
	}

	b := Compute(100, "big7", catalog.CurrencyEUR, 80, r)
	if !almostEqual(b.USDGross, 84) || !almostEqual(b.USDModel, 67.2) || !almostEqual(b.COPModel, 268800) {
		t.Fatalf("big7 breakdown = %+v", b)
	}
}
