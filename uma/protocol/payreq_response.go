package protocol

// PayReqResponse is the response sent by the receiver to the sender with the payment instruction.
type PayReqResponse struct {
	// EncodedInvoice is either the BOLT11 invoice that the sender will pay, or, for blockchain settlement layers, the
	// receiver's address on that chain.
	EncodedInvoice string `json:"pr"`
	// Routes is always an empty list, from legacy LNURL, which was replaced by route hints in the BOLT11 invoice.
	Routes []Route `json:"routes"`
	// Disposable This field may be used by a WALLET to decide whether the initial LNURL link will be stored locally
	// for later reuse or erased. Lightning invoices are single-use so they are disposable; chain addresses are
	// reusable and are returned with `disposable: false`. See LUD-11.
	Disposable *bool `json:"disposable"`
	// SuccessAction defines a struct which can be stored and shown to the user on payment success. See LUD-09.
	SuccessAction *map[string]string `json:"successAction,omitempty"`
	// Settlement echoes the settlement layer and asset chosen by the sender. Only present when the sender asked for
	// a specific settlement layer.
	Settlement *SettlementInfo `json:"settlement,omitempty"`
}

type Route struct {
	Pubkey string `json:"pubkey"`
	Path   []struct {
		Pubkey   string `json:"pubkey"`
		Fee      int64  `json:"fee"`
		Msatoshi int64  `json:"msatoshi"`
		Channel  string `json:"channel"`
	} `json:"path"`
}

// IsDisposable reports the LUD-11 value of the disposable flag, where a missing flag means true.
func (p *PayReqResponse) IsDisposable() bool {
	return p.Disposable == nil || *p.Disposable
}

// NewMessageSuccessAction builds a LUD-09 message success action.
func NewMessageSuccessAction(message string) *map[string]string {
	return &map[string]string{
		"tag":     "message",
		"message": message,
	}
}
