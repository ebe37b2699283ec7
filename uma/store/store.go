// Package store holds the receiver registry and the payment request store, with in-memory, Postgres and Redis
// implementations.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a domain or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateNonce is returned by PaymentRequestStore.Create when a record with the same nonce exists.
	ErrDuplicateNonce = errors.New("nonce already used")
)

// Domain is a receiving VASP domain and its sending limits.
type Domain struct {
	ID               string
	Name             string
	MinSendableMsats int64
	MaxSendableMsats int64
	// Description is the text/plain entry of the lookup metadata.
	Description string
	Currencies  []DomainCurrency
}

// DomainCurrency is a fiat currency senders may quote amounts in. Limits are in the currency's smallest unit and
// zero means no limit.
type DomainCurrency struct {
	Code        string
	Name        string
	Symbol      string
	Decimals    int
	MinSendable int64
	MaxSendable int64
}

func (d *Domain) CurrencyCodes() []string {
	codes := make([]string, 0, len(d.Currencies))
	for _, currency := range d.Currencies {
		codes = append(codes, currency.Code)
	}
	return codes
}

// Currency looks up a supported currency by code, ignoring case.
func (d *Domain) Currency(code string) (DomainCurrency, bool) {
	for _, currency := range d.Currencies {
		if strings.EqualFold(currency.Code, code) {
			return currency, true
		}
	}
	return DomainCurrency{}, false
}

// HasLimits reports whether either bound is set.
func (c DomainCurrency) HasLimits() bool {
	return c.MinSendable > 0 || c.MaxSendable > 0
}

// ChainAddress is a receiver's deposit address on one chain.
type ChainAddress struct {
	ChainKey string
	Address  string
	IsActive bool
}

// User is a receiver. Addresses are kept in the order they were registered.
type User struct {
	ID       string
	Username string
	DomainID string
	// SparkPublicKey is the hex secp256k1 key used for Lightning settlement.
	SparkPublicKey *string
	Addresses      []ChainAddress
}

// ActiveAddresses returns the active addresses in registration order.
func (u *User) ActiveAddresses() []ChainAddress {
	active := make([]ChainAddress, 0, len(u.Addresses))
	for _, address := range u.Addresses {
		if address.IsActive {
			active = append(active, address)
		}
	}
	return active
}

// AddressFor returns the first active address registered under chainKey.
func (u *User) AddressFor(chainKey string) (ChainAddress, bool) {
	for _, address := range u.Addresses {
		if address.IsActive && address.ChainKey == chainKey {
			return address, true
		}
	}
	return ChainAddress{}, false
}

// PaymentRequest records one pay phase request. Nonce is unique across all records.
type PaymentRequest struct {
	ID              uuid.UUID `json:"id"`
	Nonce           string    `json:"nonce"`
	UserID          string    `json:"userId"`
	AmountMsats     int64     `json:"amountMsats"`
	Currency        string    `json:"currency,omitempty"`
	SettlementLayer string    `json:"settlementLayer"`
	AssetIdentifier string    `json:"assetIdentifier"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Registry resolves domains and users. Both lookups return ErrNotFound for unknown keys.
type Registry interface {
	GetDomain(ctx context.Context, name string) (*Domain, error)
	GetUser(ctx context.Context, domainID, username string) (*User, error)
}

// Seeder writes registry entries. Existing entries with the same key are replaced.
type Seeder interface {
	PutDomain(ctx context.Context, domain *Domain) error
	PutUser(ctx context.Context, user *User) error
}

// PaymentRequestStore persists pay phase requests.
//
// Create must check nonce uniqueness and insert the record as one atomic operation, returning ErrDuplicateNonce
// when the nonce is taken. A failed Create leaves nothing behind.
type PaymentRequestStore interface {
	Create(ctx context.Context, request *PaymentRequest) error
	Get(ctx context.Context, nonce string) (*PaymentRequest, error)
	Ping(ctx context.Context) error
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(username, "$"))
}

func normalizeDomain(name string) string {
	return strings.ToLower(name)
}
