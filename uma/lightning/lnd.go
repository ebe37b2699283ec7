package lightning

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/sirupsen/logrus"
)

const defaultInvoiceExpiry = 10 * time.Minute

// LndConfig locates the lnd node invoices are created on.
type LndConfig struct {
	LndAddr     string
	Network     string
	MacaroonDir string
	TLSPath     string
}

type invoiceAdder interface {
	AddInvoice(ctx context.Context, in *invoicesrpc.AddInvoiceData) (lntypes.Hash, string, error)
}

// LndInvoiceCreator creates invoices on an lnd node through lndclient.
type LndInvoiceCreator struct {
	client invoiceAdder
	net    *chaincfg.Params
	log    logrus.FieldLogger
	close  func()
}

// NewLndInvoiceCreator connects to lnd.
func NewLndInvoiceCreator(cfg LndConfig, log logrus.FieldLogger) (*LndInvoiceCreator, error) {
	net, err := NetworkParams(cfg.Network)
	if err != nil {
		return nil, err
	}
	lnd, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:  cfg.LndAddr,
		Network:     lndclient.Network(cfg.Network),
		MacaroonDir: cfg.MacaroonDir,
		TLSPath:     cfg.TLSPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lnd at %s: %w", cfg.LndAddr, err)
	}
	creator := newLndInvoiceCreator(lnd.Client, net, log)
	creator.close = lnd.Close
	return creator, nil
}

func newLndInvoiceCreator(client invoiceAdder, net *chaincfg.Params, log logrus.FieldLogger) *LndInvoiceCreator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LndInvoiceCreator{
		client: client,
		net:    net,
		log:    log.WithField("component", "lnd_invoices"),
	}
}

// CreateInvoice adds the invoice on the connected node and checks what comes back against params. The receiver key
// is logged, not encoded.
func (c *LndInvoiceCreator) CreateInvoice(ctx context.Context, params InvoiceParams) (string, error) {
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = defaultInvoiceExpiry
	}
	hash, invoice, err := c.client.AddInvoice(ctx, &invoicesrpc.AddInvoiceData{
		Memo:            params.Description,
		Value:           lnwire.MilliSatoshi(params.AmountMsats),
		DescriptionHash: params.DescriptionHash[:],
		Expiry:          int64(expiry / time.Second),
	})
	if err != nil {
		return "", err
	}
	if err := CheckInvoice(invoice, c.net, params); err != nil {
		return "", err
	}

	fields := logrus.Fields{"payment_hash": hash.String(), "amount_msats": params.AmountMsats}
	if params.ReceiverPubKey != nil {
		fields["receiver"] = hex.EncodeToString(params.ReceiverPubKey.SerializeCompressed())
	}
	c.log.WithFields(fields).Info("created invoice")
	return invoice, nil
}

// Close releases the lnd connection.
func (c *LndInvoiceCreator) Close() {
	if c.close != nil {
		c.close()
	}
}
