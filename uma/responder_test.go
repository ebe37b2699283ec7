package uma_test

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uma-universal-money-address/uma-settlement-go/internal/metrics"
	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	umaerrors "github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/lightning"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/multiplier"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/protocol"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/rates"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/store"
)

// Compressed secp256k1 generator point.
const testSigningKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

type fakeInvoiceCreator struct {
	invoice string
	err     error
	calls   []lightning.InvoiceParams
}

func (f *fakeInvoiceCreator) CreateInvoice(_ context.Context, params lightning.InvoiceParams) (string, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return "", f.err
	}
	return f.invoice, nil
}

type failingMultipliers struct{}

func (failingMultipliers) ComputeMultipliers(context.Context, string, []string) (map[string]int64, error) {
	return nil, umaerrors.New(generated.PriceUnavailable, "no price for BTC")
}

type responderFixture struct {
	clock     *clock.TestClock
	registry  *store.MemoryRegistry
	requests  *store.MemoryPaymentRequestStore
	invoices  *fakeInvoiceCreator
	recorder  *metrics.Recorder
	responder *uma.Responder
}

type fixtureOption func(*uma.ResponderConfig)

func withCalculator(source uma.MultiplierSource) fixtureOption {
	return func(cfg *uma.ResponderConfig) { cfg.Calculator = source }
}

func newResponderFixture(t *testing.T, opts ...fixtureOption) *responderFixture {
	t.Helper()
	ctx := context.Background()
	testClock := clock.NewTestClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	registry := store.NewMemoryRegistry()
	require.NoError(t, registry.PutDomain(ctx, &store.Domain{
		ID:               "d1",
		Name:             "example.com",
		MinSendableMsats: 1000,
		MaxSendableMsats: 100_000_000_000,
		Currencies: []store.DomainCurrency{
			{Code: "USD", Name: "US Dollar", Symbol: "$", Decimals: 2},
		},
	}))
	require.NoError(t, registry.PutUser(ctx, &store.User{
		ID:       "u-alice",
		Username: "alice",
		DomainID: "d1",
		Addresses: []store.ChainAddress{
			{ChainKey: "polygon", Address: "0xABC...", IsActive: true},
		},
	}))

	oracle := rates.NewOracle(rates.OracleConfig{Source: rates.NewFixedSource(nil), Clock: testClock})
	fixture := &responderFixture{
		clock:    testClock,
		registry: registry,
		requests: store.NewMemoryPaymentRequestStore(testClock),
		invoices: &fakeInvoiceCreator{invoice: "lnbc100n1fake"},
		recorder: metrics.NewRecorder(),
	}
	cfg := uma.ResponderConfig{
		Registry:        registry,
		PaymentRequests: fixture.requests,
		Calculator:      multiplier.NewCalculator(oracle),
		InvoiceCreator:  fixture.invoices,
		Clock:           testClock,
		Metrics:         fixture.recorder,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	fixture.responder = uma.NewResponder(cfg)
	return fixture
}

func (f *responderFixture) putUser(t *testing.T, user *store.User) {
	t.Helper()
	user.DomainID = "d1"
	require.NoError(t, f.registry.PutUser(context.Background(), user))
}

func strPtr(s string) *string {
	return &s
}

func payRequest(username, nonce string, amount int64, layer, asset string) *protocol.PayRequest {
	request := &protocol.PayRequest{Username: username, Domain: "example.com", AmountMsats: amount, Nonce: nonce}
	if layer != "" {
		request.SettlementLayer = strPtr(layer)
	}
	if asset != "" {
		request.AssetIdentifier = strPtr(asset)
	}
	return request
}

func requireUmaError(t *testing.T, err error, code generated.ErrorCode) *umaerrors.UmaError {
	t.Helper()
	require.Error(t, err)
	var umaErr *umaerrors.UmaError
	require.True(t, errors.As(err, &umaErr), "expected UmaError, got %v", err)
	assert.Equal(t, code.Code, umaErr.ErrorCode.Code)
	return umaErr
}

func TestLookupUnknownReceiver(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	response, err := f.responder.GetLnurlpResponse(ctx, "nobody", "example.com")
	assert.NoError(t, err)
	assert.Nil(t, response)

	response, err = f.responder.GetLnurlpResponse(ctx, "alice", "unknown.com")
	assert.NoError(t, err)
	assert.Nil(t, response)
	assert.Equal(t, float64(2), f.recorder.Get(metrics.LookupNotFound))
}

func TestLookupChainOnlyReceiver(t *testing.T) {
	f := newResponderFixture(t)

	response, err := f.responder.GetLnurlpResponse(context.Background(), "$Alice", "example.com")
	require.NoError(t, err)
	require.NotNil(t, response)

	assert.Equal(t, "payRequest", response.Tag)
	assert.Equal(t, "https://example.com/.well-known/lnurlp/alice", response.Callback)
	assert.Equal(t, int64(1000), response.MinSendable)
	assert.Equal(t, int64(100_000_000_000), response.MaxSendable)
	assert.Equal(t, uma.UmaProtocolVersion, response.UmaVersion)
	assert.Equal(t, `[["text/plain","Pay to alice@example.com"],["text/identifier","alice@example.com"]]`, response.EncodedMetadata)
	require.NotNil(t, response.RequiredPayerData)
	assert.True(t, (*response.RequiredPayerData)["identifier"].Mandatory)

	require.Len(t, response.SettlementOptions, 1)
	assert.Nil(t, response.SettlementOption("ln"))
	polygon := response.SettlementOption("polygon")
	require.NotNil(t, polygon)
	require.Len(t, polygon.Assets, 1)
	assert.Equal(t, "USDT_POLYGON", polygon.Assets[0].Identifier)
	assert.Equal(t, map[string]int64{"USD": 10000}, polygon.Assets[0].Multipliers)

	assert.Empty(t, response.Currencies, "currencies are only quoted with a lightning option")
	assert.Equal(t, float64(1), f.recorder.Get(metrics.LookupServed))
}

func TestLookupOrdersLightningFirstAndDedupesAddresses(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{
		ID:             "u-bob",
		Username:       "bob",
		SparkPublicKey: strPtr(testSigningKey),
		Addresses: []store.ChainAddress{
			{ChainKey: "base", Address: "0xB1", IsActive: true},
			{ChainKey: "dogecoin", Address: "D123", IsActive: true},
			{ChainKey: "polygon", Address: "0xP1", IsActive: false},
			{ChainKey: "solana", Address: "So1", IsActive: true},
			{ChainKey: "base", Address: "0xB2", IsActive: true},
		},
	})

	response, err := f.responder.GetLnurlpResponse(context.Background(), "bob", "example.com")
	require.NoError(t, err)
	require.NotNil(t, response)

	layers := make([]string, 0, len(response.SettlementOptions))
	for _, option := range response.SettlementOptions {
		layers = append(layers, option.SettlementLayer)
		assert.Len(t, option.Assets, 1, option.SettlementLayer)
	}
	assert.Equal(t, []string{"ln", "base", "solana"}, layers)

	ln := response.SettlementOption("ln")
	require.NotNil(t, ln)
	assert.Equal(t, "BTC", ln.Assets[0].Identifier)
	assert.Equal(t, map[string]int64{"USD": 10000}, ln.Assets[0].Multipliers)
	assert.Equal(t, map[string]int64{"USD": 10000}, response.SettlementOption("solana").Asset("USDT_SOLANA").Multipliers)

	require.Len(t, response.Currencies, 1)
	usd := response.Currencies[0]
	assert.Equal(t, "USD", usd.Code)
	assert.Equal(t, int64(10000), usd.MillisatoshiPerUnit)
	assert.Equal(t, 2, usd.Decimals)
	assert.Equal(t, int64(0), usd.Convertible.MinSendable)
	assert.Equal(t, int64(10_000_000), usd.Convertible.MaxSendable)
}

func TestLookupSkipsLightningAddressesWithoutSigningKey(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{
		ID:       "u-dave",
		Username: "dave",
		Addresses: []store.ChainAddress{
			{ChainKey: "spark", Address: "sp1dave", IsActive: true},
			{ChainKey: "polygon", Address: "0xD", IsActive: true},
		},
	})

	response, err := f.responder.GetLnurlpResponse(context.Background(), "dave", "example.com")
	require.NoError(t, err)
	require.Len(t, response.SettlementOptions, 1)
	assert.Equal(t, "polygon", response.SettlementOptions[0].SettlementLayer)
	assert.Empty(t, response.Currencies)
}

func TestLookupMultiplierMapsAreIndependent(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{
		ID:       "u-carol",
		Username: "carol",
		Addresses: []store.ChainAddress{
			{ChainKey: "polygon", Address: "0xP", IsActive: true},
			{ChainKey: "base", Address: "0xB", IsActive: true},
		},
	})

	response, err := f.responder.GetLnurlpResponse(context.Background(), "carol", "example.com")
	require.NoError(t, err)
	response.SettlementOption("polygon").Assets[0].Multipliers["USD"] = 1
	assert.Equal(t, int64(10000), response.SettlementOption("base").Assets[0].Multipliers["USD"])
}

func TestLookupPriceUnavailable(t *testing.T) {
	f := newResponderFixture(t, withCalculator(failingMultipliers{}))

	_, err := f.responder.GetLnurlpResponse(context.Background(), "alice", "example.com")
	requireUmaError(t, err, generated.PriceUnavailable)
}

func TestPayChainSettlement(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	response, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	require.NoError(t, err)
	assert.Equal(t, "0xABC...", response.EncodedInvoice)
	require.NotNil(t, response.Disposable)
	assert.False(t, *response.Disposable)
	assert.Empty(t, response.Routes)
	require.NotNil(t, response.Settlement)
	assert.Equal(t, "polygon", response.Settlement.Layer)
	assert.Equal(t, "USDT_POLYGON", response.Settlement.AssetIdentifier)
	require.NotNil(t, response.SuccessAction)
	assert.Equal(t, "Payment to alice@example.com", (*response.SuccessAction)["message"])

	record, err := f.requests.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", record.UserID)
	assert.Equal(t, "polygon", record.SettlementLayer)
	assert.Equal(t, "USDT_POLYGON", record.AssetIdentifier)
	assert.Equal(t, record.CreatedAt.Add(uma.DefaultPaymentRequestTTL), record.ExpiresAt)
	assert.Equal(t, float64(1), f.recorder.Get(metrics.PayServed))
}

func TestPayDefaultsAssetForLayer(t *testing.T) {
	f := newResponderFixture(t)

	response, err := f.responder.GetPayReqResponse(context.Background(), payRequest("alice", "n1", 10000, "polygon", ""))
	require.NoError(t, err)
	require.NotNil(t, response.Settlement)
	assert.Equal(t, "USDT_POLYGON", response.Settlement.AssetIdentifier)
}

func TestPayRejectsDuplicateNonce(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	require.NoError(t, err)

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.DuplicateNonce)
	assert.Equal(t, float64(1), f.recorder.Get(metrics.DuplicateNonce))
	assert.Equal(t, float64(1), f.recorder.Get(metrics.PayRejected))
}

func TestPayRejectsNonceAfterExpiry(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	require.NoError(t, err)

	f.clock.SetTime(f.clock.Now().Add(uma.DefaultPaymentRequestTTL + time.Minute))
	require.Equal(t, 1, f.requests.Sweep())

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.DuplicateNonce)
}

func TestPayNonceSpentByFailedRequest(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n2", 10000, "base", "USDT_BASE"))
	requireUmaError(t, err, generated.UnsupportedSettlementLayer)

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n2", 10000, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.DuplicateNonce)
}

func TestPayLightningWithoutSigningKey(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "", ""))
	umaErr := requireUmaError(t, err, generated.MissingCredential)
	assert.Contains(t, umaErr.Reason, "signing key")

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n2", 10000, "spark", "BTC"))
	requireUmaError(t, err, generated.MissingCredential)
	assert.Empty(t, f.invoices.calls)
}

func TestPayLightningSettlement(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{ID: "u-bob", Username: "bob", SparkPublicKey: strPtr(testSigningKey)})
	ctx := context.Background()

	response, err := f.responder.GetPayReqResponse(ctx, payRequest("bob", "n1", 50_000, "", ""))
	require.NoError(t, err)
	assert.Equal(t, "lnbc100n1fake", response.EncodedInvoice)
	assert.True(t, response.IsDisposable())
	assert.Nil(t, response.Settlement)

	require.Len(t, f.invoices.calls, 1)
	params := f.invoices.calls[0]
	assert.Equal(t, int64(50_000), params.AmountMsats)
	assert.Equal(t, "Payment to bob@example.com", params.Description)
	require.NotNil(t, params.ReceiverPubKey)
	assert.Equal(t, testSigningKey, hex.EncodeToString(params.ReceiverPubKey.SerializeCompressed()))

	lookup, err := f.responder.GetLnurlpResponse(ctx, "bob", "example.com")
	require.NoError(t, err)
	assert.Equal(t, lightning.MetadataHash(lookup.EncodedMetadata), params.DescriptionHash)

	record, err := f.requests.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "ln", record.SettlementLayer)
	assert.Equal(t, "BTC", record.AssetIdentifier)
}

func TestPayLightningEchoesExplicitLayer(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{ID: "u-bob", Username: "bob", SparkPublicKey: strPtr(testSigningKey)})

	response, err := f.responder.GetPayReqResponse(context.Background(), payRequest("bob", "n1", 50_000, "spark", "BTC"))
	require.NoError(t, err)
	require.NotNil(t, response.Settlement)
	assert.Equal(t, "spark", response.Settlement.Layer)
	assert.Equal(t, "BTC", response.Settlement.AssetIdentifier)
}

func TestPayInvoiceCreationFailure(t *testing.T) {
	f := newResponderFixture(t)
	f.putUser(t, &store.User{ID: "u-bob", Username: "bob", SparkPublicKey: strPtr(testSigningKey)})
	f.invoices.err = errors.New("lnd unavailable")

	_, err := f.responder.GetPayReqResponse(context.Background(), payRequest("bob", "n1", 50_000, "ln", "BTC"))
	requireUmaError(t, err, generated.InvoiceCreationFailed)
	assert.ErrorContains(t, err, "lnd unavailable")
	assert.Equal(t, float64(1), f.recorder.Get(metrics.InvoiceCreateError))
}

func TestPayWithoutInvoiceCreator(t *testing.T) {
	f := newResponderFixture(t, func(cfg *uma.ResponderConfig) { cfg.InvoiceCreator = nil })
	f.putUser(t, &store.User{ID: "u-bob", Username: "bob", SparkPublicKey: strPtr(testSigningKey)})

	_, err := f.responder.GetPayReqResponse(context.Background(), payRequest("bob", "n1", 50_000, "", ""))
	requireUmaError(t, err, generated.InvoiceCreationFailed)
}

func TestPayMissingChainAddress(t *testing.T) {
	f := newResponderFixture(t)

	_, err := f.responder.GetPayReqResponse(context.Background(), payRequest("alice", "n1", 10000, "arbitrum", "USDT_ARBITRUM"))
	umaErr := requireUmaError(t, err, generated.UnsupportedSettlementLayer)
	assert.Contains(t, umaErr.Reason, "arbitrum")
}

func TestPayUnknownLayerAndAssetMismatch(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "tron", "USDT_TRON"))
	umaErr := requireUmaError(t, err, generated.UnsupportedSettlementLayer)
	assert.Equal(t, "unsupported settlement layer tron", umaErr.Reason)

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n2", 10000, "polygon", "USDT_BASE"))
	requireUmaError(t, err, generated.UnsupportedSettlementLayer)
}

func TestPayUnknownReceiver(t *testing.T) {
	f := newResponderFixture(t)

	_, err := f.responder.GetPayReqResponse(context.Background(), payRequest("nobody", "n1", 10000, "polygon", ""))
	requireUmaError(t, err, generated.UserNotFound)
}

func TestPayAmountOutOfRange(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 999, "polygon", ""))
	requireUmaError(t, err, generated.AmountOutOfRange)
	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n2", 100_000_000_001, "polygon", ""))
	requireUmaError(t, err, generated.AmountOutOfRange)

	// The rejected request still spent its nonce.
	record, err := f.requests.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(999), record.AmountMsats)
}

func TestPayReplayAfterAmountOutOfRange(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	_, err := f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 1, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.AmountOutOfRange)

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.DuplicateNonce)
}

func TestPayReplayAfterInvalidCurrency(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	request := payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON")
	request.Currency = strPtr("EUR")
	_, err := f.responder.GetPayReqResponse(ctx, request)
	requireUmaError(t, err, generated.InvalidCurrency)

	_, err = f.responder.GetPayReqResponse(ctx, payRequest("alice", "n1", 10000, "polygon", "USDT_POLYGON"))
	requireUmaError(t, err, generated.DuplicateNonce)
}

func TestPayMissingNonceRecordsNothing(t *testing.T) {
	f := newResponderFixture(t)

	_, err := f.responder.GetPayReqResponse(context.Background(), payRequest("alice", "", 10000, "polygon", ""))
	requireUmaError(t, err, generated.MissingRequiredUmaParameters)
	_, err = f.requests.Get(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPayCurrencyValidation(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.PutDomain(ctx, &store.Domain{
		ID:               "d1",
		Name:             "example.com",
		MinSendableMsats: 1000,
		MaxSendableMsats: 100_000_000_000,
		Currencies: []store.DomainCurrency{
			{Code: "USD", Name: "US Dollar", Symbol: "$", Decimals: 2, MinSendable: 1, MaxSendable: 500},
		},
	}))

	request := payRequest("alice", "n1", 10000, "polygon", "")
	request.Currency = strPtr("EUR")
	_, err := f.responder.GetPayReqResponse(ctx, request)
	requireUmaError(t, err, generated.InvalidCurrency)

	request = payRequest("alice", "n2", 6_000_000, "polygon", "")
	request.Currency = strPtr("usd")
	_, err = f.responder.GetPayReqResponse(ctx, request)
	requireUmaError(t, err, generated.AmountOutOfRange)

	request = payRequest("alice", "n3", 1_000_000, "polygon", "")
	request.Currency = strPtr("usd")
	_, err = f.responder.GetPayReqResponse(ctx, request)
	require.NoError(t, err)
	record, err := f.requests.Get(ctx, "n3")
	require.NoError(t, err)
	assert.Equal(t, "USD", record.Currency)
}

func TestPayCurrencyLimitsNeedPrice(t *testing.T) {
	f := newResponderFixture(t, withCalculator(failingMultipliers{}))
	ctx := context.Background()
	require.NoError(t, f.registry.PutDomain(ctx, &store.Domain{
		ID:               "d1",
		Name:             "example.com",
		MinSendableMsats: 1000,
		MaxSendableMsats: 100_000_000_000,
		Currencies:       []store.DomainCurrency{{Code: "USD", MaxSendable: 500}},
	}))

	request := payRequest("alice", "n1", 10000, "polygon", "")
	request.Currency = strPtr("USD")
	_, err := f.responder.GetPayReqResponse(ctx, request)
	requireUmaError(t, err, generated.PriceUnavailable)
}
