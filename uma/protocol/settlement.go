package protocol

// SettlementOption is one settlement layer offered in the lookup response.
type SettlementOption struct {
	// SettlementLayer is the network used to deliver funds, e.g. "ln", "spark" or "polygon".
	SettlementLayer string `json:"settlementLayer"`
	// Assets are the assets accepted on this layer.
	Assets []SettlementAsset `json:"assets"`
}

// SettlementAsset is an asset accepted on a settlement layer.
type SettlementAsset struct {
	// Identifier is the asset identifier the sender must echo back in the pay request, e.g. "BTC" or
	// "USDT_POLYGON".
	Identifier string `json:"identifier"`
	// Multipliers maps a currency code to the number of smallest units of this asset per smallest unit of the
	// currency (e.g. millisats per US cent). Currencies the receiver cannot quote for this asset are absent.
	Multipliers map[string]int64 `json:"multipliers"`
}

// Asset returns the asset with the given identifier, or nil.
func (o *SettlementOption) Asset(identifier string) *SettlementAsset {
	for i := range o.Assets {
		if o.Assets[i].Identifier == identifier {
			return &o.Assets[i]
		}
	}
	return nil
}

// SettlementInfo echoes the settlement choice in the pay response.
type SettlementInfo struct {
	Layer           string `json:"layer"`
	AssetIdentifier string `json:"assetIdentifier"`
}
