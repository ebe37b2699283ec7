package settlement

import (
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// ValidateAddress checks that address is well formed for the entry's family. Lightning entries take no address.
func (e Entry) ValidateAddress(address string) error {
	switch e.Family {
	case FamilyEVM:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid %s address %q", e.ChainKey, address)
		}
	case FamilySolana:
		decoded := base58.Decode(address)
		if len(decoded) != 32 {
			return fmt.Errorf("invalid %s address %q", e.ChainKey, address)
		}
	case FamilyLightning:
		return fmt.Errorf("settlement layer %s does not take an address", e.Layer)
	}
	return nil
}
