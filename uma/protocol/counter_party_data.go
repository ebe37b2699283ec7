package protocol

type CounterPartyDataOption struct {
	Mandatory bool `json:"mandatory"`
}

// CounterPartyDataOptions describes which fields a vasp needs to know about the sender. Used for payerData.
type CounterPartyDataOptions map[string]CounterPartyDataOption

type CounterPartyDataField string

const (
	CounterPartyDataFieldIdentifier CounterPartyDataField = "identifier"
	CounterPartyDataFieldName       CounterPartyDataField = "name"
	CounterPartyDataFieldEmail      CounterPartyDataField = "email"
)

func (c CounterPartyDataField) String() string {
	return string(c)
}

// DefaultPayerDataOptions requires the sender's identifier and leaves name and email optional.
func DefaultPayerDataOptions() CounterPartyDataOptions {
	return CounterPartyDataOptions{
		CounterPartyDataFieldIdentifier.String(): {Mandatory: true},
		CounterPartyDataFieldName.String():       {Mandatory: false},
		CounterPartyDataFieldEmail.String():      {Mandatory: false},
	}
}
