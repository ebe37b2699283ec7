// Package config loads the umad configuration file.
package config

import "time"

const (
	OracleSourceBinance = "binance"
	OracleSourceFixed   = "fixed"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Server            ServerConfig    `yaml:"server"`
	Oracle            OracleConfig    `yaml:"oracle"`
	Storage           StorageConfig   `yaml:"storage"`
	Lightning         LightningConfig `yaml:"lightning"`
	PaymentRequestTTL time.Duration   `yaml:"payment_request_ttl"`
	Domains           []DomainConfig  `yaml:"domains"`
	Logging           LoggingConfig   `yaml:"logging"`
	Metrics           MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OracleConfig selects and tunes the price source.
type OracleConfig struct {
	// Source is "binance" or "fixed". UMA_FIXED_PRICES=true forces "fixed".
	Source         string        `yaml:"source"`
	TTL            time.Duration `yaml:"ttl"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	QuoteAsset     string        `yaml:"quote_asset"`
	BinanceBaseURL string        `yaml:"binance_base_url"`
	// RateLimit is upstream requests per second. Zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	// FixedPrices overrides the fixed-mode USD price table, e.g. BTC: "65000".
	FixedPrices map[string]string `yaml:"fixed_prices"`
}

type StorageConfig struct {
	// Registry is where domains and users live: "memory" or "postgres".
	Registry string `yaml:"registry"`
	// PaymentRequests is where pay phase records live: "memory", "postgres" or "redis".
	PaymentRequests string        `yaml:"payment_requests"`
	DatabaseURL     string        `yaml:"database_url"`
	Redis           RedisConfig   `yaml:"redis"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LightningConfig struct {
	LndAddr       string        `yaml:"lnd_addr"`
	Network       string        `yaml:"network"`
	MacaroonDir   string        `yaml:"macaroon_dir"`
	TLSPath       string        `yaml:"tls_path"`
	InvoiceExpiry time.Duration `yaml:"invoice_expiry"`
}

// Enabled reports whether an LND node is configured.
func (c LightningConfig) Enabled() bool {
	return c.LndAddr != ""
}

// DomainConfig seeds one receiving domain and its users.
type DomainConfig struct {
	Name             string           `yaml:"name"`
	MinSendableMsats int64            `yaml:"min_sendable_msats"`
	MaxSendableMsats int64            `yaml:"max_sendable_msats"`
	Description      string           `yaml:"description"`
	Currencies       []CurrencyConfig `yaml:"currencies"`
	Users            []UserConfig     `yaml:"users"`
}

type CurrencyConfig struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Symbol      string `yaml:"symbol"`
	Decimals    int    `yaml:"decimals"`
	MinSendable int64  `yaml:"min_sendable"`
	MaxSendable int64  `yaml:"max_sendable"`
}

type UserConfig struct {
	Username       string          `yaml:"username"`
	SparkPublicKey string          `yaml:"spark_public_key"`
	Addresses      []AddressConfig `yaml:"addresses"`
}

type AddressConfig struct {
	Chain   string `yaml:"chain"`
	Address string `yaml:"address"`
	// Active defaults to true.
	Active *bool `yaml:"active"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// MaxAge is the number of days rotated log files are kept. Only used for file output.
	MaxAge int `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}
