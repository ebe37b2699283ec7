// Package rates fetches and caches spot prices for the assets receivers can be paid in.
package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a ticker snapshot for one asset, priced in the source's quote asset. A quote is never mutated once
// it has been cached.
type PriceQuote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	Volume    decimal.Decimal `json:"volume"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// FetchedAtEpochMs is the fetch completion time in milliseconds since the epoch.
func (q *PriceQuote) FetchedAtEpochMs() int64 {
	return q.FetchedAt.UnixMilli()
}

// Age is how long ago the quote was fetched, as seen at now.
func (q *PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}
