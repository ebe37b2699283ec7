package store

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// MemoryRegistry is an in-memory Registry and Seeder.
type MemoryRegistry struct {
	mu      sync.RWMutex
	domains map[string]*Domain
	users   map[string]*User
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		domains: make(map[string]*Domain),
		users:   make(map[string]*User),
	}
}

func (r *MemoryRegistry) GetDomain(_ context.Context, name string) (*Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domain, ok := r.domains[normalizeDomain(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return domain, nil
}

func (r *MemoryRegistry) GetUser(_ context.Context, domainID, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userKey(domainID, username)]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *MemoryRegistry) PutDomain(_ context.Context, domain *Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[normalizeDomain(domain.Name)] = domain
	return nil
}

func (r *MemoryRegistry) PutUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userKey(user.DomainID, user.Username)] = user
	return nil
}

func userKey(domainID, username string) string {
	return domainID + "/" + normalizeUsername(username)
}

// MemoryPaymentRequestStore keeps payment requests in a sync.Map keyed by nonce. It does not survive restarts.
//
// Expired requests lose their payload on Sweep but their nonce stays reserved, so an expired nonce is still rejected.
type MemoryPaymentRequestStore struct {
	requests sync.Map
	clock    clock.Clock
}

// spentNonce replaces a swept request.
type spentNonce struct{}

func NewMemoryPaymentRequestStore(clk clock.Clock) *MemoryPaymentRequestStore {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &MemoryPaymentRequestStore{clock: clk}
}

func (s *MemoryPaymentRequestStore) Create(_ context.Context, request *PaymentRequest) error {
	stored := *request
	if _, loaded := s.requests.LoadOrStore(request.Nonce, &stored); loaded {
		return ErrDuplicateNonce
	}
	return nil
}

func (s *MemoryPaymentRequestStore) Get(_ context.Context, nonce string) (*PaymentRequest, error) {
	value, ok := s.requests.Load(nonce)
	if !ok {
		return nil, ErrNotFound
	}
	stored, ok := value.(*PaymentRequest)
	if !ok {
		return nil, ErrNotFound
	}
	request := *stored
	return &request, nil
}

func (s *MemoryPaymentRequestStore) Ping(context.Context) error {
	return nil
}

// StartSweeper drops expired request payloads every interval until ctx is done.
func (s *MemoryPaymentRequestStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := s.clock.TickAfter(interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker:
				s.Sweep()
				ticker = s.clock.TickAfter(interval)
			}
		}
	}()
}

// Sweep replaces every request whose expiry has passed with a bare nonce reservation and returns how many were
// replaced.
func (s *MemoryPaymentRequestStore) Sweep() int {
	now := s.clock.Now()
	swept := 0
	s.requests.Range(func(key, value interface{}) bool {
		request, ok := value.(*PaymentRequest)
		if ok && request.ExpiresAt.Before(now) && s.requests.CompareAndSwap(key, value, spentNonce{}) {
			swept++
		}
		return true
	})
	return swept
}
