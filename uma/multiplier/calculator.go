// Package multiplier converts between fiat currency units and settlement asset units.
//
// A multiplier is the number of the asset's smallest units that one smallest unit of a currency is worth. At a BTC
// price of $100,000 one US cent is worth 10,000 millisatoshis, so the USD multiplier for BTC is 10000.
package multiplier

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
)

const (
	// MillisatsPerBTC is 100,000,000 sats of 1,000 millisats each.
	MillisatsPerBTC int64 = 100_000_000_000
	// USDTMultiplier is micro-USDT per US cent, assuming a 1:1 peg and 6 decimals.
	USDTMultiplier int64 = 10_000
	// USDTDecimals is the number of decimals of every USDT variant we settle.
	USDTDecimals = 6

	centsPerDollar = 100
)

const (
	currencyUSD = "USD"
	assetBTC    = "BTC"
	assetUSDT   = "USDT"
)

// PriceSource supplies the last traded USD price of an asset.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Calculator computes multipliers for settlement assets.
type Calculator struct {
	prices PriceSource
}

func NewCalculator(prices PriceSource) *Calculator {
	return &Calculator{prices: prices}
}

// NormalizeAsset strips the chain suffix from an asset identifier, so "USDT_POLYGON" becomes "USDT".
func NormalizeAsset(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if i := strings.IndexByte(asset, '_'); i > 0 {
		asset = asset[:i]
	}
	return asset
}

// ComputeMultipliers returns the multiplier of asset for each currency it can be priced in. Currencies with no
// known conversion are left out of the result. The asset price is only fetched when some currency needs it, and a
// price failure is returned as is.
func (c *Calculator) ComputeMultipliers(ctx context.Context, asset string, currencies []string) (map[string]int64, error) {
	asset = NormalizeAsset(asset)
	multipliers := make(map[string]int64, len(currencies))
	for _, currency := range currencies {
		currency = strings.ToUpper(currency)
		if currency != currencyUSD {
			continue
		}
		switch asset {
		case assetUSDT:
			multipliers[currency] = USDTMultiplier
		case assetBTC:
			if _, done := multipliers[currency]; done {
				continue
			}
			price, err := c.prices.LastPrice(ctx, assetBTC)
			if err != nil {
				return nil, err
			}
			m, err := BTCMultiplier(price)
			if err != nil {
				return nil, err
			}
			multipliers[currency] = m
		}
	}
	return multipliers, nil
}

// BTCMultiplier is millisats per US cent at the given USD price of one BTC, rounded half away from zero.
// Prices so high that a cent is worth less than half a millisat are floored to 1.
func BTCMultiplier(priceUSD decimal.Decimal) (int64, error) {
	if !priceUSD.IsPositive() {
		return 0, &errors.UmaError{
			Reason:    "non-positive price " + priceUSD.String(),
			ErrorCode: generated.InternalError,
		}
	}
	centsPerBTC := priceUSD.Mul(decimal.NewFromInt(centsPerDollar))
	m := decimal.NewFromInt(MillisatsPerBTC).Div(centsPerBTC).Round(0).IntPart()
	if m < 1 {
		m = 1
	}
	return m, nil
}

// CurrencyUnitsToMillisats converts an amount in a currency's smallest unit to asset units.
func CurrencyUnitsToMillisats(units, multiplier int64) int64 {
	return units * multiplier
}

// MillisatsToCurrencyUnits converts asset units back to the currency's smallest unit, rounded half away from zero.
func MillisatsToCurrencyUnits(amount, multiplier int64) int64 {
	if multiplier <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(multiplier)).Round(0).IntPart()
}

// AssetUnitsToWhole converts an amount in an asset's smallest unit to whole units, e.g. micro-USDT to USDT.
func AssetUnitsToWhole(amount int64, decimals int32) decimal.Decimal {
	return decimal.New(amount, -decimals)
}
