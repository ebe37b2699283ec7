package protocol

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/utils"
)

// LnurlpRequest is the lookup phase request in the UMA protocol.
// It is sent by the VASP that is sending the payment to find out information about the receiver.
type LnurlpRequest struct {
	// Username is the receiving user's name at the receiving VASP, without a leading "$".
	Username string
	// Domain is the receiving VASP's domain, including the port if the request carried one.
	Domain string
	// UmaVersion is the version of the UMA protocol the sender prefers, if it sent one.
	UmaVersion *string
}

// ReceiverAddress is the receiver's UMA address, e.g. alice@vasp2.com.
func (q *LnurlpRequest) ReceiverAddress() string {
	return q.Username + "@" + q.Domain
}

// ParseLnurlpRequest parses a lookup or pay URL into an LnurlpRequest. Only the path and the umaVersion
// parameter are read.
//
// Args:
//
//	url: the full URL of the request, e.g. https://vasp2.com/.well-known/lnurlp/alice
func ParseLnurlpRequest(url url.URL) (*LnurlpRequest, error) {
	pathParts := strings.Split(url.Path, "/")
	if len(pathParts) != 4 || pathParts[1] != ".well-known" || pathParts[2] != "lnurlp" {
		return nil, &errors.UmaError{
			Reason:    "invalid uma request path",
			ErrorCode: generated.InvalidInput,
		}
	}
	username := strings.TrimPrefix(pathParts[3], "$")
	if username == "" || url.Host == "" {
		return nil, &errors.UmaError{
			Reason:    "missing receiver username or domain",
			ErrorCode: generated.MissingRequiredUmaParameters,
		}
	}
	request := &LnurlpRequest{
		Username: username,
		Domain:   url.Host,
	}
	if umaVersion := url.Query().Get("umaVersion"); umaVersion != "" {
		request.UmaVersion = &umaVersion
	}
	return request, nil
}

// ParseReceiverAddress splits an UMA address (optionally prefixed with "$") into username and domain.
func ParseReceiverAddress(address string) (*LnurlpRequest, error) {
	addressParts := strings.Split(strings.TrimPrefix(address, "$"), "@")
	if len(addressParts) != 2 || addressParts[0] == "" || addressParts[1] == "" {
		return nil, &errors.UmaError{
			Reason:    "invalid receiver address",
			ErrorCode: generated.InvalidInput,
		}
	}
	return &LnurlpRequest{Username: addressParts[0], Domain: addressParts[1]}, nil
}

func (q *LnurlpRequest) EncodeToUrl() (*url.URL, error) {
	if q.Username == "" || q.Domain == "" {
		return nil, &errors.UmaError{
			Reason:    "invalid receiver address",
			ErrorCode: generated.InvalidInput,
		}
	}
	scheme := "https"
	if utils.IsDomainLocalhost(q.Domain) {
		scheme = "http"
	}
	lnurlpUrl := url.URL{
		Scheme: scheme,
		Host:   q.Domain,
		Path:   fmt.Sprintf("/.well-known/lnurlp/%s", q.Username),
	}
	queryParams := lnurlpUrl.Query()
	if q.UmaVersion != nil {
		queryParams.Add("umaVersion", *q.UmaVersion)
	}
	lnurlpUrl.RawQuery = queryParams.Encode()
	return &lnurlpUrl, nil
}
