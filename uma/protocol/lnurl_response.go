package protocol

import (
	"encoding/json"
)

// LnurlpResponse is the response to the lookup phase of the LNURL-pay flow.
// It is sent by the VASP that is receiving the payment to tell the sender where and how the receiver can be paid.
type LnurlpResponse struct {
	Tag         string `json:"tag"`
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	// EncodedMetadata is the LUD-06 metadata, a JSON array of [mime, content] pairs encoded as a string.
	EncodedMetadata string `json:"metadata"`
	// Currencies is the list of currencies that the receiver can quote. See LUD-21.
	Currencies []Currency `json:"currencies,omitempty"`
	// RequiredPayerData the data about the payer that the sending VASP must provide in order to send a payment.
	RequiredPayerData *CounterPartyDataOptions `json:"payerData,omitempty"`
	// UmaVersion is the version of the UMA protocol that the receiver has chosen for this transaction.
	UmaVersion string `json:"umaVersion"`
	// SettlementOptions lists every settlement layer the receiver can be paid on, with the assets accepted on each
	// layer and the per-currency multipliers for those assets.
	SettlementOptions []SettlementOption `json:"settlementOptions"`
	// CommentCharsAllowed is the number of characters that the sender can include in the comment field of the pay request.
	CommentCharsAllowed *int `json:"commentAllowed,omitempty"`
}

// EncodeMetadata builds the LUD-06 metadata string for a receiver.
func EncodeMetadata(description string, identifier string) (string, error) {
	metadata := [][]string{
		{"text/plain", description},
		{"text/identifier", identifier},
	}
	jsonMetadata, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(jsonMetadata), nil
}

// SettlementOption returns the option for the given layer, or nil if the response does not offer it.
func (r *LnurlpResponse) SettlementOption(layer string) *SettlementOption {
	for i := range r.SettlementOptions {
		if r.SettlementOptions[i].SettlementLayer == layer {
			return &r.SettlementOptions[i]
		}
	}
	return nil
}
