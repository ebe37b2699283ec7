package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/multiplier"
)

// TickerSource fetches ticker snapshots from an upstream feed.
//
// FetchTickers returns one quote per symbol it could price. Symbols the upstream did not return, or returned in a
// form that could not be parsed, are left out of the map; that is not an error. An error means the call as a whole
// failed.
type TickerSource interface {
	Name() string
	FetchTickers(ctx context.Context, symbols []string) (map[string]PriceQuote, error)
}

// DefaultFixedPrices are the USD prices served in fixed-price mode.
var DefaultFixedPrices = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(100000),
	"USDT": decimal.NewFromInt(1),
}

// FixedSource serves quotes from a static price table. It is used for local development and tests so that the
// service never needs network access to a price feed.
type FixedSource struct {
	prices map[string]decimal.Decimal
}

// NewFixedSource returns a source serving DefaultFixedPrices, with overrides replacing or adding entries.
func NewFixedSource(overrides map[string]decimal.Decimal) *FixedSource {
	prices := make(map[string]decimal.Decimal, len(DefaultFixedPrices)+len(overrides))
	for symbol, price := range DefaultFixedPrices {
		prices[symbol] = price
	}
	for symbol, price := range overrides {
		prices[multiplier.NormalizeAsset(symbol)] = price
	}
	return &FixedSource{prices: prices}
}

func (s *FixedSource) Name() string {
	return "fixed"
}

func (s *FixedSource) FetchTickers(_ context.Context, symbols []string) (map[string]PriceQuote, error) {
	quotes := make(map[string]PriceQuote, len(symbols))
	for _, symbol := range symbols {
		price, ok := s.prices[symbol]
		if !ok {
			continue
		}
		quotes[symbol] = PriceQuote{
			Symbol:    symbol,
			Bid:       price,
			Ask:       price,
			LastPrice: price,
			Volume:    decimal.Zero,
			High:      price,
			Low:       price,
		}
	}
	if len(quotes) == 0 && len(symbols) > 0 {
		return nil, fmt.Errorf("fixed source has no price for %v", symbols)
	}
	return quotes, nil
}
