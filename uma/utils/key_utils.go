package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ParsePublicKeyHex parses a hex-encoded compressed or uncompressed secp256k1 public key.
func ParsePublicKeyHex(hexKey string) (*secp256k1.PublicKey, error) {
	keyBytes, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("public key is not hex: %w", err)
	}
	return secp256k1.ParsePubKey(keyBytes)
}
