package uma

import (
	"fmt"
	"strings"

	"github.com/decred/dcrd/bech32"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/protocol"
)

const lnurlHumanReadablePart = "lnurl"

// EncodeLnurl encodes a URL as an upper-case bech32 LNURL (LUD-01).
func EncodeLnurl(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}
	encoded, err := bech32.Encode(lnurlHumanReadablePart, converted)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(encoded), nil
}

// DecodeLnurl decodes a bech32 LNURL, optionally prefixed with "lightning:", back to its URL.
func DecodeLnurl(lnurl string) (string, error) {
	lnurl = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(lnurl)), "lightning:")
	// LNURLs are longer than the 90 characters BIP-173 allows.
	hrp, data, err := bech32.DecodeNoLimit(lnurl)
	if err != nil {
		return "", err
	}
	if hrp != lnurlHumanReadablePart {
		return "", fmt.Errorf("incorrect hrp for LNURL. Expected '%s', got '%s'", lnurlHumanReadablePart, hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// LnurlForAddress returns the LNURL of the lookup endpoint for an UMA address such as "$alice@vasp.com".
func LnurlForAddress(address string) (string, error) {
	request, err := protocol.ParseReceiverAddress(address)
	if err != nil {
		return "", err
	}
	lookupURL, err := request.EncodeToUrl()
	if err != nil {
		return "", err
	}
	return EncodeLnurl(lookupURL.String())
}
