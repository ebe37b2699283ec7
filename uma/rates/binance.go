package rates

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultQuoteAsset = "USDT"

// BinanceSource reads 24h tickers from the Binance spot REST API. An asset symbol such as "BTC" is priced through
// the pair formed with the quote asset, e.g. "BTCUSDT". The quote asset itself is always priced at 1.
type BinanceSource struct {
	client     *binance.Client
	quoteAsset string
	log        logrus.FieldLogger
}

// BinanceSourceConfig configures a BinanceSource. Zero values select the public endpoint and USDT pairs.
type BinanceSourceConfig struct {
	BaseURL    string
	QuoteAsset string
	Logger     logrus.FieldLogger
}

func NewBinanceSource(cfg BinanceSourceConfig) *BinanceSource {
	// Tickers are public market data, no API key needed.
	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	quoteAsset := strings.ToUpper(cfg.QuoteAsset)
	if quoteAsset == "" {
		quoteAsset = defaultQuoteAsset
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BinanceSource{
		client:     client,
		quoteAsset: quoteAsset,
		log:        log.WithField("component", "binance_source"),
	}
}

func (s *BinanceSource) Name() string {
	return "binance"
}

func (s *BinanceSource) FetchTickers(ctx context.Context, symbols []string) (map[string]PriceQuote, error) {
	quotes := make(map[string]PriceQuote, len(symbols))
	pairToSymbol := make(map[string]string, len(symbols))
	pairs := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if symbol == s.quoteAsset {
			quotes[symbol] = parValueQuote(symbol)
			continue
		}
		pair := symbol + s.quoteAsset
		if _, ok := pairToSymbol[pair]; ok {
			continue
		}
		pairToSymbol[pair] = symbol
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return quotes, nil
	}

	stats, err := s.client.NewListPriceChangeStatsService().Symbols(pairs).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker request for %s: %w", strings.Join(pairs, ","), err)
	}
	for _, stat := range stats {
		if stat == nil {
			continue
		}
		symbol, ok := pairToSymbol[stat.Symbol]
		if !ok {
			continue
		}
		quote, err := quoteFromStats(symbol, stat)
		if err != nil {
			s.log.WithError(err).WithField("pair", stat.Symbol).Debug("dropping malformed ticker row")
			continue
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}

func quoteFromStats(symbol string, stat *binance.PriceChangeStats) (PriceQuote, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"bidPrice", stat.BidPrice},
		{"askPrice", stat.AskPrice},
		{"lastPrice", stat.LastPrice},
		{"volume", stat.Volume},
		{"highPrice", stat.HighPrice},
		{"lowPrice", stat.LowPrice},
	}
	parsed := make([]decimal.Decimal, len(fields))
	for i, field := range fields {
		value, err := decimal.NewFromString(field.value)
		if err != nil {
			return PriceQuote{}, fmt.Errorf("parse %s %q: %w", field.name, field.value, err)
		}
		parsed[i] = value
	}
	if !parsed[2].IsPositive() {
		return PriceQuote{}, fmt.Errorf("non-positive last price %s", parsed[2])
	}
	return PriceQuote{
		Symbol:    symbol,
		Bid:       parsed[0],
		Ask:       parsed[1],
		LastPrice: parsed[2],
		Volume:    parsed[3],
		High:      parsed[4],
		Low:       parsed[5],
	}, nil
}

func parValueQuote(symbol string) PriceQuote {
	one := decimal.NewFromInt(1)
	return PriceQuote{Symbol: symbol, Bid: one, Ask: one, LastPrice: one, Volume: decimal.Zero, High: one, Low: one}
}
