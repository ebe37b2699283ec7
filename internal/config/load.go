package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/uma-universal-money-address/uma-settlement-go/uma/lightning"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/settlement"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/store"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/utils"
)

// Default returns a configuration that runs entirely in memory against live Binance prices.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Oracle: OracleConfig{
			Source:       OracleSourceBinance,
			TTL:          30 * time.Second,
			FetchTimeout: 10 * time.Second,
			QuoteAsset:   "USDT",
			RateLimit:    5,
			Burst:        1,
		},
		Storage: StorageConfig{
			Registry:        StorageMemory,
			PaymentRequests: StorageMemory,
			SweepInterval:   time.Minute,
		},
		Lightning: LightningConfig{
			Network:       "mainnet",
			InvoiceExpiry: 10 * time.Minute,
		},
		PaymentRequestTTL: 10 * time.Minute,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Namespace: "UMA/Settlement",
		},
	}
}

// Load reads the YAML file at path on top of Default, then applies environment overrides and validates. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("UMA_FIXED_PRICES"); v != "" {
		fixed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid UMA_FIXED_PRICES %q: %w", v, err)
		}
		if fixed {
			cfg.Oracle.Source = OracleSourceFixed
		}
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("LND_ADDR"); v != "" {
		cfg.Lightning.LndAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks option values and the domain seed.
func (c *Config) Validate() error {
	switch c.Oracle.Source {
	case OracleSourceBinance, OracleSourceFixed:
	default:
		return fmt.Errorf("unknown oracle source %q", c.Oracle.Source)
	}
	if _, err := c.FixedPrices(); err != nil {
		return err
	}

	switch c.Storage.Registry {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("postgres registry needs storage.database_url")
		}
	default:
		return fmt.Errorf("unknown registry storage %q", c.Storage.Registry)
	}
	switch c.Storage.PaymentRequests {
	case StorageMemory:
		if c.Storage.SweepInterval <= 0 {
			return fmt.Errorf("storage.sweep_interval must be positive")
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("postgres payment request store needs storage.database_url")
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis payment request store needs storage.redis.addr")
		}
	default:
		return fmt.Errorf("unknown payment request storage %q", c.Storage.PaymentRequests)
	}

	if c.Lightning.Enabled() {
		if _, err := lightning.NetworkParams(c.Lightning.Network); err != nil {
			return err
		}
	}
	if c.PaymentRequestTTL <= 0 {
		return fmt.Errorf("payment_request_ttl must be positive")
	}

	seen := make(map[string]struct{}, len(c.Domains))
	for _, domain := range c.Domains {
		name := strings.ToLower(domain.Name)
		if name == "" {
			return fmt.Errorf("domain without a name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("domain %s is configured twice", name)
		}
		seen[name] = struct{}{}
		if err := validateDomain(domain); err != nil {
			return fmt.Errorf("domain %s: %w", name, err)
		}
	}
	return nil
}

func validateDomain(domain DomainConfig) error {
	if domain.MinSendableMsats <= 0 || domain.MaxSendableMsats < domain.MinSendableMsats {
		return fmt.Errorf("invalid sendable range [%d, %d]", domain.MinSendableMsats, domain.MaxSendableMsats)
	}
	for _, currency := range domain.Currencies {
		if currency.Code == "" {
			return fmt.Errorf("currency without a code")
		}
		if currency.MaxSendable > 0 && currency.MaxSendable < currency.MinSendable {
			return fmt.Errorf("currency %s: max_sendable below min_sendable", currency.Code)
		}
	}
	catalog := settlement.Default()
	for _, user := range domain.Users {
		if strings.TrimPrefix(user.Username, "$") == "" {
			return fmt.Errorf("user without a username")
		}
		if user.SparkPublicKey != "" {
			if _, err := utils.ParsePublicKeyHex(user.SparkPublicKey); err != nil {
				return fmt.Errorf("user %s: %w", user.Username, err)
			}
		}
		for _, address := range user.Addresses {
			entry, ok := catalog.Resolve(address.Chain)
			if !ok {
				return fmt.Errorf("user %s: unknown chain %q", user.Username, address.Chain)
			}
			if err := entry.ValidateAddress(address.Address); err != nil {
				return fmt.Errorf("user %s: %w", user.Username, err)
			}
		}
	}
	return nil
}

// FixedPrices parses the fixed-mode price overrides, keyed by upper-case symbol.
func (c *Config) FixedPrices() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(c.Oracle.FixedPrices))
	for symbol, raw := range c.Oracle.FixedPrices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed price for %s: %w", symbol, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("fixed price for %s must be positive", symbol)
		}
		prices[strings.ToUpper(symbol)] = price
	}
	return prices, nil
}

// Seed holds the registry entries built from the domains section.
type Seed struct {
	Domains []*store.Domain
	Users   []*store.User
}

// BuildSeed converts the domains section into registry entries. Domain IDs are derived from the domain name so
// reseeding a persistent registry updates rows in place.
func (c *Config) BuildSeed() Seed {
	var seed Seed
	for _, domainCfg := range c.Domains {
		name := strings.ToLower(domainCfg.Name)
		domainID := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
		domain := &store.Domain{
			ID:               domainID,
			Name:             name,
			MinSendableMsats: domainCfg.MinSendableMsats,
			MaxSendableMsats: domainCfg.MaxSendableMsats,
			Description:      domainCfg.Description,
		}
		for _, currency := range domainCfg.Currencies {
			domain.Currencies = append(domain.Currencies, store.DomainCurrency{
				Code:        strings.ToUpper(currency.Code),
				Name:        currency.Name,
				Symbol:      currency.Symbol,
				Decimals:    currency.Decimals,
				MinSendable: currency.MinSendable,
				MaxSendable: currency.MaxSendable,
			})
		}
		seed.Domains = append(seed.Domains, domain)

		for _, userCfg := range domainCfg.Users {
			username := strings.ToLower(strings.TrimPrefix(userCfg.Username, "$"))
			user := &store.User{
				ID:       uuid.NewSHA1(uuid.MustParse(domainID), []byte(username)).String(),
				Username: username,
				DomainID: domainID,
			}
			if userCfg.SparkPublicKey != "" {
				key := userCfg.SparkPublicKey
				user.SparkPublicKey = &key
			}
			for _, address := range userCfg.Addresses {
				active := address.Active == nil || *address.Active
				user.Addresses = append(user.Addresses, store.ChainAddress{
					ChainKey: address.Chain,
					Address:  address.Address,
					IsActive: active,
				})
			}
			seed.Users = append(seed.Users, user)
		}
	}
	return seed
}
