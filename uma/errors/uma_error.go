package errors

import (
	"encoding/json"
	stderrors "errors"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/generated"
)

// UmaErrorInterface defines methods all UMA errors must implement
type UmaErrorInterface interface {
	error
	ToJSON() (string, error)
	ToHttpStatusCode() int
}

type UmaError struct {
	Reason    string
	ErrorCode generated.ErrorCode
	// Err is the underlying cause, if any. It is never serialized.
	Err error
}

func New(code generated.ErrorCode, reason string) *UmaError {
	return &UmaError{Reason: reason, ErrorCode: code}
}

func Wrap(code generated.ErrorCode, reason string, err error) *UmaError {
	return &UmaError{Reason: reason, ErrorCode: code, Err: err}
}

func (e *UmaError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *UmaError) Unwrap() error {
	return e.Err
}

func (e *UmaError) ToJSON() (string, error) {
	data := map[string]interface{}{
		"status": "ERROR",
		"reason": e.Reason,
		"code":   e.ErrorCode.Code,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

func (e *UmaError) ToHttpStatusCode() int {
	return e.ErrorCode.HTTPStatusCode
}

// HasCode reports whether any UmaError in err's chain carries the given code.
func HasCode(err error, code generated.ErrorCode) bool {
	var umaErr *UmaError
	for err != nil {
		if !stderrors.As(err, &umaErr) {
			return false
		}
		if umaErr.ErrorCode.Code == code.Code {
			return true
		}
		err = umaErr.Err
	}
	return false
}

func ErrorToJSONResponse(err error) (string, int, bool) {
	var umaErr UmaErrorInterface
	if stderrors.As(err, &umaErr) {
		json, _ := umaErr.ToJSON()
		return json, umaErr.ToHttpStatusCode(), true
	}
	return "", 0, false
}
