package protocol

// Currency is a fiat currency the receiver accepts amounts in, listed in the lookup response. All amounts are in the
// currency's smallest unit, e.g. cents.
type Currency struct {
	// Code is the ISO 4217 code, or a ticker for crypto assets.
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	// MillisatoshiPerUnit is the Lightning multiplier: millisats per smallest unit at current BTC prices.
	MillisatoshiPerUnit int64 `json:"multiplier"`

	Convertible ConvertibleCurrency `json:"convertible"`

	// Decimals places the smallest unit for display, e.g. 2 for USD.
	Decimals int `json:"decimals"`
}

// ConvertibleCurrency is the per-payment amount range of a Currency, in its smallest unit.
type ConvertibleCurrency struct {
	MinSendable int64 `json:"min"`
	MaxSendable int64 `json:"max"`
}

// Contains reports whether units lies within the range. A zero bound is open.
func (c ConvertibleCurrency) Contains(units int64) bool {
	if c.MinSendable > 0 && units < c.MinSendable {
		return false
	}
	return c.MaxSendable <= 0 || units <= c.MaxSendable
}
