// Package settlement holds the static table of settlement layers a receiver can be paid on.
package settlement

// Family groups settlement layers that produce payment instructions the same way.
type Family string

const (
	// FamilyLightning layers are paid with a BOLT11 invoice.
	FamilyLightning Family = "lightning"
	// FamilyEVM layers are paid to a hex account address.
	FamilyEVM Family = "evm"
	// FamilySolana layers are paid to a base58 account address.
	FamilySolana Family = "solana"
)

// Entry describes one settlement layer and the asset it moves.
type Entry struct {
	// ChainKey is the key receivers register addresses under, e.g. "polygon".
	ChainKey string
	// Layer is the settlementLayer value on the wire.
	Layer string
	// Asset is the base asset symbol, e.g. "USDT".
	Asset string
	// AssetIdentifier is the asset identifier on the wire, e.g. "USDT_POLYGON".
	AssetIdentifier string
	// ChainID is the EVM chain id. nil for non-EVM layers.
	ChainID *int64
	Family  Family
}

// IsLightning reports whether payments on this layer need a Lightning invoice.
func (e Entry) IsLightning() bool {
	return e.Family == FamilyLightning
}

// MatchesAsset reports whether identifier names this entry's asset, either by its wire identifier or its symbol.
func (e Entry) MatchesAsset(identifier string) bool {
	return identifier == e.AssetIdentifier || identifier == e.Asset
}

// Catalog is an immutable lookup table of settlement entries.
type Catalog struct {
	entries []Entry
	byKey   map[string]Entry
}

// NewCatalog builds a catalog from entries. Later entries with a chain key already seen are ignored.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{byKey: make(map[string]Entry, len(entries))}
	for _, entry := range entries {
		if _, ok := c.byKey[entry.ChainKey]; ok {
			continue
		}
		c.entries = append(c.entries, entry)
		c.byKey[entry.ChainKey] = entry
	}
	return c
}

// Resolve returns the entry registered under chainKey. Unknown keys are not an error.
func (c *Catalog) Resolve(chainKey string) (Entry, bool) {
	entry, ok := c.byKey[chainKey]
	return entry, ok
}

// ResolveLayer returns the first entry whose wire layer name is layer.
func (c *Catalog) ResolveLayer(layer string) (Entry, bool) {
	for _, entry := range c.entries {
		if entry.Layer == layer {
			return entry, true
		}
	}
	return Entry{}, false
}

// Entries returns a copy of the table in declaration order.
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

const (
	ChainKeyLightning = "ln"
	ChainKeySpark     = "spark"
	ChainKeyEthereum  = "ethereum"
	ChainKeyPolygon   = "polygon"
	ChainKeyArbitrum  = "arbitrum"
	ChainKeyOptimism  = "optimism"
	ChainKeyBase      = "base"
	ChainKeySolana    = "solana"
)

const (
	AssetBTC  = "BTC"
	AssetUSDT = "USDT"
)

func chainID(id int64) *int64 {
	return &id
}

var defaultCatalog = NewCatalog([]Entry{
	{ChainKey: ChainKeyLightning, Layer: "ln", Asset: AssetBTC, AssetIdentifier: "BTC", Family: FamilyLightning},
	{ChainKey: ChainKeySpark, Layer: "spark", Asset: AssetBTC, AssetIdentifier: "BTC", Family: FamilyLightning},
	{ChainKey: ChainKeyEthereum, Layer: "ethereum", Asset: AssetUSDT, AssetIdentifier: "USDT_ETHEREUM", ChainID: chainID(1), Family: FamilyEVM},
	{ChainKey: ChainKeyPolygon, Layer: "polygon", Asset: AssetUSDT, AssetIdentifier: "USDT_POLYGON", ChainID: chainID(137), Family: FamilyEVM},
	{ChainKey: ChainKeyArbitrum, Layer: "arbitrum", Asset: AssetUSDT, AssetIdentifier: "USDT_ARBITRUM", ChainID: chainID(42161), Family: FamilyEVM},
	{ChainKey: ChainKeyOptimism, Layer: "optimism", Asset: AssetUSDT, AssetIdentifier: "USDT_OPTIMISM", ChainID: chainID(10), Family: FamilyEVM},
	{ChainKey: ChainKeyBase, Layer: "base", Asset: AssetUSDT, AssetIdentifier: "USDT_BASE", ChainID: chainID(8453), Family: FamilyEVM},
	{ChainKey: ChainKeySolana, Layer: "solana", Asset: AssetUSDT, AssetIdentifier: "USDT_SOLANA", Family: FamilySolana},
})

// Default returns the process-wide catalog. It is built once and never mutated.
func Default() *Catalog {
	return defaultCatalog
}
