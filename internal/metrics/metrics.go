// Package metrics publishes counters for the responder and the rate oracle.
package metrics

import (
	"context"
	"sync"
)

// Metric names emitted by the service.
const (
	LookupServed       = "lookup_served"
	LookupNotFound     = "lookup_not_found"
	PayServed          = "pay_served"
	PayRejected        = "pay_rejected"
	DuplicateNonce     = "duplicate_nonce"
	PriceFetchFailed   = "price_fetch_failed"
	PriceStaleServed   = "price_stale_served"
	PriceUnavailable   = "price_unavailable"
	InvoiceCreateError = "invoice_create_failed"
)

// Dimensions are name/value pairs attached to a datum.
type Dimensions map[string]string

// Publisher records counter increments. Implementations must be safe for concurrent use and must not block callers
// on network errors.
type Publisher interface {
	Count(ctx context.Context, name string, value float64, dims Dimensions)
}

// Nop discards every datum.
type Nop struct{}

func (Nop) Count(context.Context, string, float64, Dimensions) {}

// Recorder keeps counters in memory. Tests use it to assert on emitted metrics.
type Recorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[string]float64)}
}

func (r *Recorder) Count(_ context.Context, name string, value float64, _ Dimensions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
}

// Get returns the accumulated value of name.
func (r *Recorder) Get(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}
