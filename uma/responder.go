package uma

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/sirupsen/logrus"

	"github.com/uma-universal-money-address/uma-settlement-go/internal/metrics"
	umaerrors "github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/lightning"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/multiplier"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/protocol"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/settlement"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/store"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/utils"
)

const (
	// DefaultPaymentRequestTTL is how long a pay phase record stays valid.
	DefaultPaymentRequestTTL = 10 * time.Minute

	defaultSettlementLayer = settlement.ChainKeyLightning
)

// MultiplierSource computes per-currency multipliers for a settlement asset.
type MultiplierSource interface {
	ComputeMultipliers(ctx context.Context, asset string, currencies []string) (map[string]int64, error)
}

// ResponderConfig wires a Responder to its collaborators. Registry, PaymentRequests and Calculator are required.
type ResponderConfig struct {
	Registry        store.Registry
	PaymentRequests store.PaymentRequestStore
	Calculator      MultiplierSource
	// Catalog defaults to settlement.Default().
	Catalog *settlement.Catalog
	// InvoiceCreator issues Lightning invoices. Without one, Lightning pay requests fail with INVOICE_CREATION_FAILED.
	InvoiceCreator    lightning.InvoiceCreator
	Clock             clock.Clock
	Logger            logrus.FieldLogger
	Metrics           metrics.Publisher
	PaymentRequestTTL time.Duration
	InvoiceExpiry     time.Duration
}

// Responder answers both phases of the UMA LNURL-pay flow for the receivers in its registry.
type Responder struct {
	registry        store.Registry
	paymentRequests store.PaymentRequestStore
	calculator      MultiplierSource
	catalog         *settlement.Catalog
	invoices        lightning.InvoiceCreator
	clock           clock.Clock
	log             logrus.FieldLogger
	metrics         metrics.Publisher
	requestTTL      time.Duration
	invoiceExpiry   time.Duration
}

func NewResponder(cfg ResponderConfig) *Responder {
	r := &Responder{
		registry:        cfg.Registry,
		paymentRequests: cfg.PaymentRequests,
		calculator:      cfg.Calculator,
		catalog:         cfg.Catalog,
		invoices:        cfg.InvoiceCreator,
		clock:           cfg.Clock,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		requestTTL:      cfg.PaymentRequestTTL,
		invoiceExpiry:   cfg.InvoiceExpiry,
	}
	if r.catalog == nil {
		r.catalog = settlement.Default()
	}
	if r.clock == nil {
		r.clock = clock.NewDefaultClock()
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	r.log = r.log.WithField("component", "responder")
	if r.metrics == nil {
		r.metrics = metrics.Nop{}
	}
	if r.requestTTL <= 0 {
		r.requestTTL = DefaultPaymentRequestTTL
	}
	return r
}

// GetLnurlpResponse builds the lookup response for username at domain. It returns (nil, nil) when the domain or
// the user does not exist.
//
// Args:
//
//	username: the receiver's username, with or without a leading "$".
//	domain: the receiving VASP domain, as seen in the request Host.
func (r *Responder) GetLnurlpResponse(ctx context.Context, username string, domain string) (*protocol.LnurlpResponse, error) {
	receiverDomain, user, err := r.resolveReceiver(ctx, username, domain)
	if errors.Is(err, store.ErrNotFound) {
		r.metrics.Count(ctx, metrics.LookupNotFound, 1, metrics.Dimensions{"domain": domain})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	multipliers := newMultiplierCache(r.calculator, receiverDomain.CurrencyCodes())
	options, err := r.settlementOptions(ctx, user, multipliers)
	if err != nil {
		return nil, err
	}
	currencies, err := r.lookupCurrencies(ctx, receiverDomain, options, multipliers)
	if err != nil {
		return nil, err
	}

	identifier := receiverIdentifier(user, receiverDomain)
	encodedMetadata, err := protocol.EncodeMetadata(receiverDescription(receiverDomain, identifier), identifier)
	if err != nil {
		return nil, umaerrors.Wrap(generated.InternalError, "failed to encode metadata", err)
	}
	payerData := protocol.DefaultPayerDataOptions()

	r.metrics.Count(ctx, metrics.LookupServed, 1, metrics.Dimensions{"domain": receiverDomain.Name})
	return &protocol.LnurlpResponse{
		Tag:               "payRequest",
		Callback:          utils.LnurlpCallbackURL(domain, user.Username),
		MinSendable:       receiverDomain.MinSendableMsats,
		MaxSendable:       receiverDomain.MaxSendableMsats,
		EncodedMetadata:   encodedMetadata,
		Currencies:        currencies,
		RequiredPayerData: &payerData,
		UmaVersion:        UmaProtocolVersion,
		SettlementOptions: options,
	}, nil
}

// settlementOptions lists the Lightning option first when the user holds a signing key, then one asset per active
// address in registration order. Unknown chain keys are skipped, as are Lightning-family addresses of a user
// without a signing key. The first address wins for a repeated (layer, asset) pair.
func (r *Responder) settlementOptions(ctx context.Context, user *store.User, multipliers *multiplierCache) ([]protocol.SettlementOption, error) {
	options := []protocol.SettlementOption{}
	layerIndex := make(map[string]int)
	seen := make(map[string]struct{})

	add := func(entry settlement.Entry) error {
		key := entry.Layer + "/" + entry.AssetIdentifier
		if _, dup := seen[key]; dup {
			return nil
		}
		assetMultipliers, err := multipliers.get(ctx, entry.Asset)
		if err != nil {
			return err
		}
		seen[key] = struct{}{}
		idx, ok := layerIndex[entry.Layer]
		if !ok {
			idx = len(options)
			layerIndex[entry.Layer] = idx
			options = append(options, protocol.SettlementOption{SettlementLayer: entry.Layer})
		}
		options[idx].Assets = append(options[idx].Assets, protocol.SettlementAsset{
			Identifier:  entry.AssetIdentifier,
			Multipliers: assetMultipliers,
		})
		return nil
	}

	_, hasKey := signingKey(user)
	if hasKey {
		if entry, ok := r.catalog.Resolve(settlement.ChainKeyLightning); ok {
			if err := add(entry); err != nil {
				return nil, err
			}
		}
	}
	for _, address := range user.ActiveAddresses() {
		entry, ok := r.catalog.Resolve(address.ChainKey)
		if !ok {
			r.log.WithField("chain_key", address.ChainKey).Debug("skipping address with unknown chain key")
			continue
		}
		if entry.IsLightning() && !hasKey {
			r.log.WithField("chain_key", address.ChainKey).Debug("skipping lightning address without a signing key")
			continue
		}
		if err := add(entry); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// lookupCurrencies lists the domain currencies with their millisat multipliers. Currencies are only listed when
// the response offers a Lightning-family layer, since the multiplier is a BTC rate.
func (r *Responder) lookupCurrencies(
	ctx context.Context,
	domain *store.Domain,
	options []protocol.SettlementOption,
	multipliers *multiplierCache,
) ([]protocol.Currency, error) {
	hasLightning := false
	for _, option := range options {
		if entry, ok := r.catalog.ResolveLayer(option.SettlementLayer); ok && entry.IsLightning() {
			hasLightning = true
			break
		}
	}
	if !hasLightning {
		return nil, nil
	}
	btcMultipliers, err := multipliers.get(ctx, settlement.AssetBTC)
	if err != nil {
		return nil, err
	}

	currencies := make([]protocol.Currency, 0, len(domain.Currencies))
	for _, currency := range domain.Currencies {
		msatsPerUnit, ok := btcMultipliers[strings.ToUpper(currency.Code)]
		if !ok {
			continue
		}
		minSendable, maxSendable := currency.MinSendable, currency.MaxSendable
		if minSendable <= 0 {
			minSendable = multiplier.MillisatsToCurrencyUnits(domain.MinSendableMsats, msatsPerUnit)
		}
		if maxSendable <= 0 {
			maxSendable = multiplier.MillisatsToCurrencyUnits(domain.MaxSendableMsats, msatsPerUnit)
		}
		currencies = append(currencies, protocol.Currency{
			Code:                currency.Code,
			Name:                currency.Name,
			Symbol:              currency.Symbol,
			MillisatoshiPerUnit: msatsPerUnit,
			Convertible: protocol.ConvertibleCurrency{
				MinSendable: minSendable,
				MaxSendable: maxSendable,
			},
			Decimals: currency.Decimals,
		})
	}
	return currencies, nil
}

// GetPayReqResponse resolves a pay request into a payment instruction: a BOLT11 invoice for Lightning-family layers
// or the receiver's address for chain layers.
//
// The nonce is recorded straight after the receiver is resolved, so a nonce is spent by its first request whether
// or not that request produced an instruction. Requests without a settlement layer settle over Lightning.
func (r *Responder) GetPayReqResponse(ctx context.Context, request *protocol.PayRequest) (*protocol.PayReqResponse, error) {
	response, err := r.getPayReqResponse(ctx, request)
	if err != nil {
		code := generated.InternalError.Code
		var umaErr *umaerrors.UmaError
		if errors.As(err, &umaErr) {
			code = umaErr.ErrorCode.Code
		}
		r.metrics.Count(ctx, metrics.PayRejected, 1, metrics.Dimensions{"code": code})
		return nil, err
	}
	return response, nil
}

func (r *Responder) getPayReqResponse(ctx context.Context, request *protocol.PayRequest) (*protocol.PayReqResponse, error) {
	receiverDomain, user, err := r.resolveReceiver(ctx, request.Username, request.Domain)
	if errors.Is(err, store.ErrNotFound) {
		return nil, umaerrors.New(generated.UserNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	if request.Nonce == "" {
		return nil, umaerrors.New(generated.MissingRequiredUmaParameters, "missing nonce")
	}

	layer, explicitLayer := defaultSettlementLayer, false
	if request.SettlementLayer != nil && *request.SettlementLayer != "" {
		layer, explicitLayer = *request.SettlementLayer, true
	}
	assetIdentifier := ""
	if request.AssetIdentifier != nil {
		assetIdentifier = *request.AssetIdentifier
	}
	entry, layerKnown := r.catalog.ResolveLayer(layer)
	if assetIdentifier == "" && layerKnown {
		assetIdentifier = entry.AssetIdentifier
	}

	if err := r.recordPaymentRequest(ctx, request, user, layer, assetIdentifier); err != nil {
		return nil, err
	}
	if err := r.validatePayRequest(ctx, request, receiverDomain); err != nil {
		return nil, err
	}

	if !layerKnown {
		return nil, umaerrors.New(generated.UnsupportedSettlementLayer, "unsupported settlement layer "+layer)
	}
	if !entry.MatchesAsset(assetIdentifier) {
		return nil, umaerrors.New(generated.UnsupportedSettlementLayer,
			"asset "+assetIdentifier+" is not supported on settlement layer "+layer)
	}

	identifier := receiverIdentifier(user, receiverDomain)
	response := &protocol.PayReqResponse{
		Routes:        []protocol.Route{},
		SuccessAction: protocol.NewMessageSuccessAction("Payment to " + identifier),
	}
	if entry.IsLightning() {
		invoice, err := r.createInvoice(ctx, request, user, receiverDomain, identifier)
		if err != nil {
			return nil, err
		}
		disposable := true
		response.EncodedInvoice = invoice
		response.Disposable = &disposable
	} else {
		address, ok := user.AddressFor(entry.ChainKey)
		if !ok {
			return nil, umaerrors.New(generated.UnsupportedSettlementLayer, "address not found for settlement layer "+layer)
		}
		disposable := false
		response.EncodedInvoice = address.Address
		response.Disposable = &disposable
	}
	if explicitLayer {
		response.Settlement = &protocol.SettlementInfo{Layer: layer, AssetIdentifier: assetIdentifier}
	}

	r.metrics.Count(ctx, metrics.PayServed, 1, metrics.Dimensions{"layer": layer})
	return response, nil
}

// validatePayRequest checks the amount against the domain bounds and, for a quoted currency, the currency limits.
func (r *Responder) validatePayRequest(ctx context.Context, request *protocol.PayRequest, domain *store.Domain) error {
	if request.AmountMsats < domain.MinSendableMsats || request.AmountMsats > domain.MaxSendableMsats {
		return umaerrors.New(generated.AmountOutOfRange, "amount must be between minSendable and maxSendable")
	}
	if request.Currency == nil || *request.Currency == "" {
		return nil
	}
	currency, ok := domain.Currency(*request.Currency)
	if !ok {
		return umaerrors.New(generated.InvalidCurrency, "unsupported currency "+*request.Currency)
	}
	if !currency.HasLimits() {
		return nil
	}
	btcMultipliers, err := r.calculator.ComputeMultipliers(ctx, settlement.AssetBTC, []string{currency.Code})
	if err != nil {
		return err
	}
	msatsPerUnit, ok := btcMultipliers[strings.ToUpper(currency.Code)]
	if !ok {
		return umaerrors.New(generated.InvalidCurrency, "no conversion rate for "+currency.Code)
	}
	limits := protocol.ConvertibleCurrency{MinSendable: currency.MinSendable, MaxSendable: currency.MaxSendable}
	if !limits.Contains(multiplier.MillisatsToCurrencyUnits(request.AmountMsats, msatsPerUnit)) {
		return umaerrors.New(generated.AmountOutOfRange, "amount is outside the limits for "+currency.Code)
	}
	return nil
}

func (r *Responder) recordPaymentRequest(ctx context.Context, request *protocol.PayRequest, user *store.User, layer, assetIdentifier string) error {
	now := r.clock.Now()
	record := &store.PaymentRequest{
		ID:              uuid.New(),
		Nonce:           request.Nonce,
		UserID:          user.ID,
		AmountMsats:     request.AmountMsats,
		SettlementLayer: layer,
		AssetIdentifier: assetIdentifier,
		CreatedAt:       now,
		ExpiresAt:       now.Add(r.requestTTL),
	}
	if request.Currency != nil {
		record.Currency = strings.ToUpper(*request.Currency)
	}
	err := r.paymentRequests.Create(ctx, record)
	if errors.Is(err, store.ErrDuplicateNonce) {
		r.metrics.Count(ctx, metrics.DuplicateNonce, 1, nil)
		return umaerrors.New(generated.DuplicateNonce, "nonce "+request.Nonce+" has already been used")
	}
	if err != nil {
		return umaerrors.Wrap(generated.InternalError, "failed to record payment request", err)
	}
	return nil
}

func (r *Responder) createInvoice(
	ctx context.Context,
	request *protocol.PayRequest,
	user *store.User,
	domain *store.Domain,
	identifier string,
) (string, error) {
	receiverKey, ok := signingKey(user)
	if !ok {
		return "", umaerrors.New(generated.MissingCredential, "Lightning requires signing key")
	}
	if r.invoices == nil {
		return "", umaerrors.New(generated.InvoiceCreationFailed, "lightning invoices are not configured")
	}
	encodedMetadata, err := protocol.EncodeMetadata(receiverDescription(domain, identifier), identifier)
	if err != nil {
		return "", umaerrors.Wrap(generated.InternalError, "failed to encode metadata", err)
	}
	invoice, err := r.invoices.CreateInvoice(ctx, lightning.InvoiceParams{
		AmountMsats:     request.AmountMsats,
		Description:     "Payment to " + identifier,
		DescriptionHash: lightning.MetadataHash(encodedMetadata),
		ReceiverPubKey:  receiverKey,
		Expiry:          r.invoiceExpiry,
	})
	if err != nil {
		r.metrics.Count(ctx, metrics.InvoiceCreateError, 1, nil)
		r.log.WithError(err).WithField("receiver", identifier).Warn("invoice creation failed")
		return "", umaerrors.Wrap(generated.InvoiceCreationFailed, "failed to create invoice", err)
	}
	return invoice, nil
}

func (r *Responder) resolveReceiver(ctx context.Context, username, domainName string) (*store.Domain, *store.User, error) {
	domain, err := r.registry.GetDomain(ctx, domainName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, umaerrors.Wrap(generated.InternalError, "failed to load domain", err)
	}
	user, err := r.registry.GetUser(ctx, domain.ID, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, umaerrors.Wrap(generated.InternalError, "failed to load user", err)
	}
	return domain, user, nil
}

// signingKey returns the user's Lightning signing key if it is set and parses.
func signingKey(user *store.User) (*secp256k1.PublicKey, bool) {
	if user.SparkPublicKey == nil || *user.SparkPublicKey == "" {
		return nil, false
	}
	key, err := utils.ParsePublicKeyHex(*user.SparkPublicKey)
	if err != nil {
		return nil, false
	}
	return key, true
}

func receiverIdentifier(user *store.User, domain *store.Domain) string {
	return user.Username + "@" + domain.Name
}

func receiverDescription(domain *store.Domain, identifier string) string {
	if domain.Description != "" {
		return domain.Description
	}
	return "Pay to " + identifier
}

// multiplierCache memoizes multipliers per base asset for one response.
type multiplierCache struct {
	source     MultiplierSource
	currencies []string
	byAsset    map[string]map[string]int64
}

func newMultiplierCache(source MultiplierSource, currencies []string) *multiplierCache {
	return &multiplierCache{source: source, currencies: currencies, byAsset: make(map[string]map[string]int64)}
}

func (c *multiplierCache) get(ctx context.Context, asset string) (map[string]int64, error) {
	asset = multiplier.NormalizeAsset(asset)
	cached, ok := c.byAsset[asset]
	if !ok {
		computed, err := c.source.ComputeMultipliers(ctx, asset, c.currencies)
		if err != nil {
			return nil, err
		}
		c.byAsset[asset] = computed
		cached = computed
	}
	out := make(map[string]int64, len(cached))
	for currency, value := range cached {
		out[currency] = value
	}
	return out, nil
}
