package protocol_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/protocol"
)

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return *parsed
}

func TestParseLnurlpRequest(t *testing.T) {
	request, err := protocol.ParseLnurlpRequest(mustParseURL(t, "https://vasp2.com/.well-known/lnurlp/$bob?umaVersion=1.0"))
	require.NoError(t, err)
	assert.Equal(t, "bob", request.Username)
	assert.Equal(t, "vasp2.com", request.Domain)
	assert.Equal(t, "bob@vasp2.com", request.ReceiverAddress())
	require.NotNil(t, request.UmaVersion)
	assert.Equal(t, "1.0", *request.UmaVersion)
}

func TestParseLnurlpRequestRejectsBadPath(t *testing.T) {
	for _, raw := range []string{
		"https://vasp2.com/.well-known/lnurlp",
		"https://vasp2.com/.well-known/lnurlp/bob/extra",
		"https://vasp2.com/lnurlp/bob/x",
	} {
		_, err := protocol.ParseLnurlpRequest(mustParseURL(t, raw))
		assert.True(t, errors.HasCode(err, generated.InvalidInput), raw)
	}
	_, err := protocol.ParseLnurlpRequest(mustParseURL(t, "https://vasp2.com/.well-known/lnurlp/"))
	assert.True(t, errors.HasCode(err, generated.MissingRequiredUmaParameters))
}

func TestEncodeToUrlRoundTrip(t *testing.T) {
	version := "1.0"
	request := protocol.LnurlpRequest{Username: "alice", Domain: "localhost:8080", UmaVersion: &version}
	encoded, err := request.EncodeToUrl()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/.well-known/lnurlp/alice?umaVersion=1.0", encoded.String())

	parsed, err := protocol.ParseLnurlpRequest(*encoded)
	require.NoError(t, err)
	assert.Equal(t, request, *parsed)
}

func TestParseReceiverAddress(t *testing.T) {
	request, err := protocol.ParseReceiverAddress("$alice@vasp.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", request.Username)
	assert.Equal(t, "vasp.com", request.Domain)

	for _, bad := range []string{"alice", "@vasp.com", "alice@", "a@b@c"} {
		_, err := protocol.ParseReceiverAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePayRequest(t *testing.T) {
	raw := "https://example.com/.well-known/lnurlp/alice?amount=10000&nonce=n1&settlementLayer=polygon&assetIdentifier=USDT_POLYGON&currency=USD"
	parsedURL := mustParseURL(t, raw)
	assert.True(t, protocol.IsPayRequestQuery(parsedURL.Query()))

	request, err := protocol.ParsePayRequest(parsedURL)
	require.NoError(t, err)
	assert.Equal(t, "alice", request.Username)
	assert.Equal(t, "example.com", request.Domain)
	assert.Equal(t, int64(10000), request.AmountMsats)
	assert.Equal(t, "n1", request.Nonce)
	require.NotNil(t, request.SettlementLayer)
	assert.Equal(t, "polygon", *request.SettlementLayer)
	require.NotNil(t, request.AssetIdentifier)
	assert.Equal(t, "USDT_POLYGON", *request.AssetIdentifier)
	require.NotNil(t, request.Currency)
	assert.Equal(t, "USD", *request.Currency)
	assert.Nil(t, request.UmaVersion)

	params := request.EncodeAsUrlParams()
	assert.Equal(t, "10000", params.Get("amount"))
	assert.Equal(t, "polygon", params.Get("settlementLayer"))
	assert.False(t, params.Has("umaVersion"))
}

func TestParsePayRequestLegacyLightning(t *testing.T) {
	request, err := protocol.ParsePayRequest(mustParseURL(t, "https://example.com/.well-known/lnurlp/alice?amount=5000&nonce=abc"))
	require.NoError(t, err)
	assert.Nil(t, request.SettlementLayer)
	assert.Nil(t, request.AssetIdentifier)
	assert.Nil(t, request.Currency)
}

func TestParsePayRequestErrors(t *testing.T) {
	cases := []struct {
		query string
		code  generated.ErrorCode
	}{
		{"nonce=n1", generated.MissingRequiredUmaParameters},
		{"amount=10&nonce=", generated.MissingRequiredUmaParameters},
		{"amount=ten&nonce=n1", generated.InvalidInput},
		{"amount=-5&nonce=n1", generated.InvalidInput},
		{"amount=1.5&nonce=n1", generated.InvalidInput},
		{"amount=0&nonce=n1", generated.InvalidInput},
	}
	for _, tc := range cases {
		raw := "https://example.com/.well-known/lnurlp/alice?" + tc.query
		_, err := protocol.ParsePayRequest(mustParseURL(t, raw))
		assert.True(t, errors.HasCode(err, tc.code), raw)
	}
}

func TestLnurlpResponseJSON(t *testing.T) {
	metadata, err := protocol.EncodeMetadata("Pay to alice@example.com", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, `[["text/plain","Pay to alice@example.com"],["text/identifier","alice@example.com"]]`, metadata)

	payerData := protocol.DefaultPayerDataOptions()
	response := protocol.LnurlpResponse{
		Tag:               "payRequest",
		Callback:          "https://example.com/.well-known/lnurlp/alice",
		MinSendable:       1000,
		MaxSendable:       10_000_000,
		EncodedMetadata:   metadata,
		RequiredPayerData: &payerData,
		UmaVersion:        "1.0",
		SettlementOptions: []protocol.SettlementOption{{
			SettlementLayer: "polygon",
			Assets: []protocol.SettlementAsset{{
				Identifier:  "USDT_POLYGON",
				Multipliers: map[string]int64{"USD": 10000},
			}},
		}},
	}
	encoded, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "payRequest", decoded["tag"])
	assert.Equal(t, metadata, decoded["metadata"])
	assert.Equal(t, "1.0", decoded["umaVersion"])
	assert.NotContains(t, decoded, "currencies")
	assert.Contains(t, decoded, "payerData")

	var roundTripped protocol.LnurlpResponse
	require.NoError(t, json.Unmarshal(encoded, &roundTripped))
	option := roundTripped.SettlementOption("polygon")
	require.NotNil(t, option)
	asset := option.Asset("USDT_POLYGON")
	require.NotNil(t, asset)
	assert.Equal(t, int64(10000), asset.Multipliers["USD"])
	assert.Nil(t, roundTripped.SettlementOption("ln"))
	assert.Nil(t, option.Asset("USDT_BASE"))
}

func TestPayReqResponseJSON(t *testing.T) {
	disposable := false
	response := protocol.PayReqResponse{
		EncodedInvoice: "0xABC",
		Routes:         []protocol.Route{},
		Disposable:     &disposable,
		SuccessAction:  protocol.NewMessageSuccessAction("Payment to alice@example.com"),
	}
	encoded, err := json.Marshal(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"pr": "0xABC",
		"routes": [],
		"disposable": false,
		"successAction": {"tag": "message", "message": "Payment to alice@example.com"}
	}`, string(encoded))
	assert.False(t, response.IsDisposable())
	assert.True(t, (&protocol.PayReqResponse{}).IsDisposable())
}

func TestConvertibleCurrencyContains(t *testing.T) {
	limits := protocol.ConvertibleCurrency{MinSendable: 1, MaxSendable: 500}
	assert.False(t, limits.Contains(0))
	assert.True(t, limits.Contains(1))
	assert.True(t, limits.Contains(500))
	assert.False(t, limits.Contains(501))

	open := protocol.ConvertibleCurrency{MaxSendable: 500}
	assert.True(t, open.Contains(0))
	assert.True(t, protocol.ConvertibleCurrency{}.Contains(1_000_000))
}
