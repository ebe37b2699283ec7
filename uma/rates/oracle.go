package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/uma-universal-money-address/uma-settlement-go/internal/metrics"
	umaerrors "github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/multiplier"
)

const (
	// DefaultTTL is how long a fetched quote is served without asking the source again.
	DefaultTTL = 30 * time.Second
	// DefaultFetchTimeout bounds one shared upstream fetch.
	DefaultFetchTimeout = 10 * time.Second
)

// OracleConfig configures an Oracle. Source is required; everything else has a default.
type OracleConfig struct {
	Source TickerSource
	Clock  clock.Clock
	TTL    time.Duration
	// FetchTimeout bounds a shared fetch, which runs detached from the cancellation of the caller that started it.
	FetchTimeout time.Duration
	// RateLimit bounds upstream calls per second. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int
	Logger    logrus.FieldLogger
	Metrics   metrics.Publisher
}

// Oracle serves spot prices from a per-symbol cache in front of a TickerSource.
//
// A cached quote is fresh for TTL after the fetch that produced it completed. Stale entries are refreshed on
// demand. When a refresh fails the stale quote is served instead, and only a symbol that has never been fetched
// successfully yields PRICE_UNAVAILABLE. Concurrent refreshes of the same symbols share one upstream call.
type Oracle struct {
	source       TickerSource
	clock        clock.Clock
	ttl          time.Duration
	fetchTimeout time.Duration
	limiter      *rate.Limiter
	log          logrus.FieldLogger
	metrics      metrics.Publisher

	mu     sync.RWMutex
	quotes map[string]*PriceQuote

	flights singleflight.Group
}

func NewOracle(cfg OracleConfig) *Oracle {
	o := &Oracle{
		source:       cfg.Source,
		clock:        cfg.Clock,
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		quotes:       make(map[string]*PriceQuote),
	}
	if o.clock == nil {
		o.clock = clock.NewDefaultClock()
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}
	if o.fetchTimeout <= 0 {
		o.fetchTimeout = DefaultFetchTimeout
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.log = o.log.WithFields(logrus.Fields{"component": "rate_oracle", "source": cfg.Source.Name()})
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	limit, burst := cfg.RateLimit, cfg.Burst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	o.limiter = rate.NewLimiter(limit, burst)
	return o
}

// GetPrice returns the quote for symbol, refreshing it if the cached one is stale.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (*PriceQuote, error) {
	symbol = multiplier.NormalizeAsset(symbol)
	if quote, fresh := o.lookup(symbol); fresh {
		return quote, nil
	}
	fetched, err := o.refresh(ctx, []string{symbol})
	if quote, ok := fetched[symbol]; ok {
		return quote, nil
	}
	if err == nil {
		err = fmt.Errorf("%s returned no ticker for %s", o.source.Name(), symbol)
	}
	return o.fallback(ctx, symbol, err)
}

// GetPrices returns quotes for every symbol that has a usable one, refreshing all stale symbols with a single
// upstream call. The error joins one PRICE_UNAVAILABLE per symbol left without any quote, so a partial result comes
// back as a non-empty map together with a non-nil error.
func (o *Oracle) GetPrices(ctx context.Context, symbols []string) (map[string]*PriceQuote, error) {
	result := make(map[string]*PriceQuote, len(symbols))
	var stale []string
	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		symbol = multiplier.NormalizeAsset(symbol)
		if _, dup := seen[symbol]; dup || symbol == "" {
			continue
		}
		seen[symbol] = struct{}{}
		if quote, fresh := o.lookup(symbol); fresh {
			result[symbol] = quote
			continue
		}
		stale = append(stale, symbol)
	}
	if len(stale) == 0 {
		return result, nil
	}

	fetched, fetchErr := o.refresh(ctx, stale)
	var errs []error
	for _, symbol := range stale {
		if quote, ok := fetched[symbol]; ok {
			result[symbol] = quote
			continue
		}
		cause := fetchErr
		if cause == nil {
			cause = fmt.Errorf("%s returned no ticker for %s", o.source.Name(), symbol)
		}
		quote, err := o.fallback(ctx, symbol, cause)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result[symbol] = quote
	}
	return result, errors.Join(errs...)
}

// LastPrice returns the last traded price of symbol.
func (o *Oracle) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := o.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.LastPrice, nil
}

// GetMultipliers returns the per-currency multipliers of asset at current prices.
func (o *Oracle) GetMultipliers(ctx context.Context, asset string, currencies []string) (map[string]int64, error) {
	return multiplier.NewCalculator(o).ComputeMultipliers(ctx, asset, currencies)
}

// Cached returns whatever quote is cached for symbol, fresh or not, without touching the source.
func (o *Oracle) Cached(symbol string) (*PriceQuote, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	quote, ok := o.quotes[multiplier.NormalizeAsset(symbol)]
	return quote, ok
}

func (o *Oracle) lookup(symbol string) (*PriceQuote, bool) {
	o.mu.RLock()
	quote, ok := o.quotes[symbol]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return quote, quote.Age(o.clock.Now()) < o.ttl
}

// refresh fetches symbols from the source and caches what comes back. Callers asking for the same symbol set at
// the same time share one fetch. A caller whose ctx ends stops waiting; the fetch carries on for the others.
func (o *Oracle) refresh(ctx context.Context, symbols []string) (map[string]*PriceQuote, error) {
	key := make([]string, len(symbols))
	copy(key, symbols)
	sort.Strings(key)

	ch := o.flights.DoChan(strings.Join(key, ","), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()
		return o.fetch(fetchCtx, symbols)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*PriceQuote), nil
	}
}

func (o *Oracle) fetch(ctx context.Context, symbols []string) (map[string]*PriceQuote, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s rate limit: %w", o.source.Name(), err)
	}
	tickers, err := o.source.FetchTickers(ctx, symbols)
	if err != nil {
		o.metrics.Count(ctx, metrics.PriceFetchFailed, 1, metrics.Dimensions{"source": o.source.Name()})
		return nil, err
	}
	fetchedAt := o.clock.Now()

	fetched := make(map[string]*PriceQuote, len(tickers))
	for _, symbol := range symbols {
		ticker, ok := tickers[symbol]
		if !ok {
			continue
		}
		quote := ticker
		quote.Symbol = symbol
		quote.FetchedAt = fetchedAt
		fetched[symbol] = &quote
	}

	o.mu.Lock()
	for symbol, quote := range fetched {
		o.quotes[symbol] = quote
	}
	o.mu.Unlock()

	o.log.WithField("symbols", strings.Join(symbols, ",")).Debug("refreshed price quotes")
	return fetched, nil
}

func (o *Oracle) fallback(ctx context.Context, symbol string, cause error) (*PriceQuote, error) {
	if quote, ok := o.Cached(symbol); ok {
		o.log.WithError(cause).WithFields(logrus.Fields{
			"symbol": symbol,
			"age":    quote.Age(o.clock.Now()).String(),
		}).Warn("price refresh failed, serving stale quote")
		o.metrics.Count(ctx, metrics.PriceStaleServed, 1, metrics.Dimensions{"symbol": symbol})
		return quote, nil
	}
	o.metrics.Count(ctx, metrics.PriceUnavailable, 1, metrics.Dimensions{"symbol": symbol})
	return nil, umaerrors.Wrap(generated.PriceUnavailable, "no price available for "+symbol, cause)
}
