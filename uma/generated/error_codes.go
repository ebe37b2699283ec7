package generated

// ErrorCode represents an error code with an associated HTTP status code
type ErrorCode struct {
	Code           string
	HTTPStatusCode int
}

// Error code constants
var (
	// An unexpected error occurred on the server
	InternalError = ErrorCode{Code: "INTERNAL_ERROR", HTTPStatusCode: 500}

	// Missing required UMA parameters
	MissingRequiredUmaParameters = ErrorCode{Code: "MISSING_REQUIRED_UMA_PARAMETERS", HTTPStatusCode: 400}

	// The counterparty UMA version is not supported
	UnsupportedUmaVersion = ErrorCode{Code: "UNSUPPORTED_UMA_VERSION", HTTPStatusCode: 412}

	// The user for this UMA was not found
	UserNotFound = ErrorCode{Code: "USER_NOT_FOUND", HTTPStatusCode: 404}

	// The amount provided is not within the min/max range
	AmountOutOfRange = ErrorCode{Code: "AMOUNT_OUT_OF_RANGE", HTTPStatusCode: 400}

	// The currency provided is not valid or supported
	InvalidCurrency = ErrorCode{Code: "INVALID_CURRENCY", HTTPStatusCode: 400}

	// The provided input is invalid
	InvalidInput = ErrorCode{Code: "INVALID_INPUT", HTTPStatusCode: 400}

	// A payment request with this nonce already exists
	DuplicateNonce = ErrorCode{Code: "DUPLICATE_NONCE", HTTPStatusCode: 409}

	// The receiver is missing a credential required for the requested settlement layer
	MissingCredential = ErrorCode{Code: "MISSING_CREDENTIAL", HTTPStatusCode: 422}

	// The requested settlement layer or asset is not available for this receiver
	UnsupportedSettlementLayer = ErrorCode{Code: "UNSUPPORTED_SETTLEMENT_LAYER", HTTPStatusCode: 422}

	// No exchange rate could be obtained from the price feed
	PriceUnavailable = ErrorCode{Code: "PRICE_UNAVAILABLE", HTTPStatusCode: 503}

	// The Lightning invoice could not be created
	InvoiceCreationFailed = ErrorCode{Code: "INVOICE_CREATION_FAILED", HTTPStatusCode: 502}
)
