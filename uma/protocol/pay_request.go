package protocol

import (
	"net/url"
	"strconv"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
)

// PayRequest is the pay phase request sent by the sender to the receiver's callback to retrieve a payment
// instruction.
type PayRequest struct {
	// Username is the receiving user's name at the receiving VASP.
	Username string
	// Domain is the receiving VASP's domain.
	Domain string
	// AmountMsats is the amount to be paid in millisatoshis.
	AmountMsats int64
	// Nonce is a sender-chosen unique token. A receiver never issues two payment instructions for the same nonce.
	Nonce string
	// Currency is the currency code the sender quoted the amount against, if any.
	Currency *string
	// SettlementLayer is the settlement layer the sender picked from the lookup response. `nil` means the legacy
	// Lightning flow.
	SettlementLayer *string
	// AssetIdentifier is the asset the sender picked on the settlement layer, e.g. "USDT_POLYGON".
	AssetIdentifier *string
	// UmaVersion is the version of the UMA protocol the sender prefers, if it sent one.
	UmaVersion *string
}

// IsPayRequestQuery reports whether the query carries pay phase parameters. A lookup carries none.
func IsPayRequestQuery(query url.Values) bool {
	return query.Has("amount")
}

// ParsePayRequest parses a pay phase URL.
//
// Args:
//
//	url: the full callback URL, e.g. https://vasp2.com/.well-known/lnurlp/alice?amount=1000&nonce=n1
func ParsePayRequest(url url.URL) (*PayRequest, error) {
	lnurlpRequest, err := ParseLnurlpRequest(url)
	if err != nil {
		return nil, err
	}
	query := url.Query()
	amountString := query.Get("amount")
	if amountString == "" {
		return nil, &errors.UmaError{
			Reason:    "missing amount parameter",
			ErrorCode: generated.MissingRequiredUmaParameters,
		}
	}
	amount, err := strconv.ParseInt(amountString, 10, 64)
	if err != nil || amount <= 0 {
		return nil, &errors.UmaError{
			Reason:    "amount must be a positive integer number of millisatoshis",
			ErrorCode: generated.InvalidInput,
		}
	}
	nonce := query.Get("nonce")
	if nonce == "" {
		return nil, &errors.UmaError{
			Reason:    "missing nonce parameter",
			ErrorCode: generated.MissingRequiredUmaParameters,
		}
	}
	return &PayRequest{
		Username:        lnurlpRequest.Username,
		Domain:          lnurlpRequest.Domain,
		AmountMsats:     amount,
		Nonce:           nonce,
		Currency:        optionalParam(query, "currency"),
		SettlementLayer: optionalParam(query, "settlementLayer"),
		AssetIdentifier: optionalParam(query, "assetIdentifier"),
		UmaVersion:      lnurlpRequest.UmaVersion,
	}, nil
}

func (p *PayRequest) EncodeAsUrlParams() url.Values {
	params := url.Values{}
	params.Add("amount", strconv.FormatInt(p.AmountMsats, 10))
	params.Add("nonce", p.Nonce)
	addOptionalParam(params, "currency", p.Currency)
	addOptionalParam(params, "settlementLayer", p.SettlementLayer)
	addOptionalParam(params, "assetIdentifier", p.AssetIdentifier)
	addOptionalParam(params, "umaVersion", p.UmaVersion)
	return params
}

func optionalParam(query url.Values, key string) *string {
	value := query.Get(key)
	if value == "" {
		return nil
	}
	return &value
}

func addOptionalParam(params url.Values, key string, value *string) {
	if value != nil && *value != "" {
		params.Add(key, *value)
	}
}
