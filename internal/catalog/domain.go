package catalog

// Currency enumerates the currencies platforms report in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Platform describes an external content platform. The catalog is static;
// each id carries a hard-coded payout conversion rule (see internal/payout).
type Platform struct {
	ID       string
	Name     string
	Currency Currency
	Active   bool
}

// Index maps platform id to its definition for conversion lookups.
type Index map[string]Platform

// CurrencyFor returns the platform's currency, defaulting to USD for
// unknown ids so a stray value still converts with the identity rule.
func (ix Index) CurrencyFor(platformID string) Currency {
	if p, ok := ix[platformID]; ok {
		return p.Currency
	}
	return CurrencyUSD
}
