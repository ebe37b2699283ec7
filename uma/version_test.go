package uma_test

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/errors"
)

func TestUnsupportedVersionError(t *testing.T) {
	unsupportedVersionError := uma.UnsupportedVersionError{
		UnsupportedVersion:     "2.0",
		SupportedMajorVersions: []int{1},
	}

	errorJSON, _ := unsupportedVersionError.ToJSON()
	var errorMap map[string]interface{}
	err := json.Unmarshal([]byte(errorJSON), &errorMap)
	if err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	if errorMap["status"] != "ERROR" {
		t.Errorf("Expected status ERROR, got %v", errorMap["status"])
	}
	if errorMap["reason"] != "unsupported version: 2.0" {
		t.Errorf("Expected reason 'unsupported version: 2.0', got %v", errorMap["reason"])
	}
	if errorMap["code"] != "UNSUPPORTED_UMA_VERSION" {
		t.Errorf("Expected code UNSUPPORTED_UMA_VERSION, got %v", errorMap["code"])
	}
	if unsupportedVersionError.ToHttpStatusCode() != 412 {
		t.Errorf("Expected HTTP status code 412, got %v", unsupportedVersionError.ToHttpStatusCode())
	}
}

func TestNegotiateVersion(t *testing.T) {
	version, err := uma.NegotiateVersion("")
	require.NoError(t, err)
	assert.Equal(t, "1.0", version)

	version, err = uma.NegotiateVersion("1.3")
	require.NoError(t, err)
	assert.Equal(t, "1.0", version)

	_, err = uma.NegotiateVersion("2.0")
	var unsupported uma.UnsupportedVersionError
	require.True(t, stderrors.As(err, &unsupported))
	assert.Equal(t, []int{1}, unsupported.SupportedMajorVersions)

	_, status, ok := errors.ErrorToJSONResponse(err)
	assert.True(t, ok)
	assert.Equal(t, 412, status)

	_, err = uma.NegotiateVersion("banana")
	assert.Error(t, err)
}

func TestSelectLowerVersion(t *testing.T) {
	lower, err := uma.SelectLowerVersion("1.1", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0", *lower)

	lower, err = uma.SelectLowerVersion("0.3", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "0.3", *lower)
}
