// Package lightning creates BOLT11 invoices for Lightning settlement.
package lightning

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/zpay32"
)

// InvoiceParams describes the invoice to create.
type InvoiceParams struct {
	AmountMsats int64
	// Description is the memo shown to the payer.
	Description string
	// DescriptionHash commits the invoice to the LNURL metadata (LUD-06).
	DescriptionHash [32]byte
	// ReceiverPubKey is the receiving user's signing key. The responder requires it before asking for a Lightning
	// invoice, but it is not bound into the invoice: LndInvoiceCreator issues every invoice from the connected node
	// and only logs this key.
	ReceiverPubKey *secp256k1.PublicKey
	Expiry         time.Duration
}

// InvoiceCreator issues BOLT11 invoices.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, params InvoiceParams) (string, error)
}

// MetadataHash is the description hash committing an invoice to encoded LNURL metadata.
func MetadataHash(encodedMetadata string) [32]byte {
	return sha256.Sum256([]byte(encodedMetadata))
}

// CheckInvoice decodes invoice for net and verifies that it carries the expected amount and description hash.
func CheckInvoice(invoice string, net *chaincfg.Params, params InvoiceParams) error {
	decoded, err := zpay32.Decode(invoice, net)
	if err != nil {
		return fmt.Errorf("invalid invoice: %w", err)
	}
	if decoded.MilliSat == nil || int64(*decoded.MilliSat) != params.AmountMsats {
		return fmt.Errorf("invoice amount does not match requested %d msats", params.AmountMsats)
	}
	if decoded.DescriptionHash == nil || *decoded.DescriptionHash != params.DescriptionHash {
		return fmt.Errorf("invoice description hash does not match metadata")
	}
	return nil
}

// NetworkParams maps an lnd network name to its chain parameters.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %q", network)
}
