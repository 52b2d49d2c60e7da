// Package config defines the top-level configuration for the market ledger
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MKTLEDGER_* environment
// variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Chain    ChainConfig    `toml:"chain"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the marketplace parameters: fee defaults applied on
// first boot (persisted values win afterwards) and the admin membership set.
type LedgerConfig struct {
	// DepositFee is the initial listing deposit in the smallest native
	// unit, decimal string.
	DepositFee string `toml:"deposit_fee"`
	// ServiceFeeBps is the initial platform fee rate in basis points.
	ServiceFeeBps uint32 `toml:"service_fee_bps"`
	// AdminAddresses are the principals granted the admin role.
	AdminAddresses []string `toml:"admin_addresses"`
	// Whitelist seeds the registry whitelist on first boot.
	Whitelist []string `toml:"whitelist"`
}

// ChainConfig holds the EVM collaborator parameters.
type ChainConfig struct {
	// RPCURL is the JSON-RPC endpoint for the chain the asset registries
	// and settlement currency live on.
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// SettlementToken is the ERC-20 settlement currency contract.
	SettlementToken string `toml:"settlement_token"`
	// LedgerAddress is the principal the ledger holds custody under.
	LedgerAddress string `toml:"ledger_address"`
	// OperatorKey fields resolve the key that signs custody and payout
	// transactions; see crypto.KeyConfig.
	OperatorPrivateKey string `toml:"operator_private_key"`
	EncryptedKeyPath   string `toml:"encrypted_key_path"`
	KeyPassword        string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// event bus and listing cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for the event archiver. An empty
// Bucket disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveIntervalMinutes is how often the event archiver uploads a
	// batch. Zero falls back to 15 minutes.
	ArchiveIntervalMinutes int `toml:"archive_interval_minutes"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the admin endpoints; empty disables transport auth.
	APIKey string `toml:"api_key"`
	// RateLimit caps requests per client IP per window. Zero disables
	// limiting.
	RateLimit         int `toml:"rate_limit"`
	RateWindowSeconds int `toml:"rate_window_seconds"`
}

// NotifyConfig holds operator alert channels. All senders are optional; no
// configured sender disables alerting.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// Events filters which event types alert; empty allows all.
	Events []string `toml:"events"`
}

// Defaults returns a Config with sane development defaults.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			DepositFee:    "100000000000000000000", // 100 units at 1e18
			ServiceFeeBps: 250,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketledger",
			User:          "marketledger",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Server: ServerConfig{
			Port:              8080,
			RateLimit:         100,
			RateWindowSeconds: 1,
		},
		LogLevel: "info",
	}
}

// DepositFeeAmount parses the configured deposit fee.
func (c LedgerConfig) DepositFeeAmount() (*big.Int, error) {
	s := strings.TrimSpace(c.DepositFee)
	if s == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid deposit_fee %q", c.DepositFee)
	}
	return amount, nil
}

// Admins parses the configured admin principals.
func (c LedgerConfig) Admins() ([]common.Address, error) {
	return parseAddresses(c.AdminAddresses, "admin_addresses")
}

// WhitelistAddresses parses the configured registry whitelist seed.
func (c LedgerConfig) WhitelistAddresses() ([]common.Address, error) {
	return parseAddresses(c.Whitelist, "whitelist")
}

func parseAddresses(in []string, field string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("config: invalid address %q in %s", s, field)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// Validate checks the configuration for consistency. It is called after
// Load, before anything is wired.
func (c *Config) Validate() error {
	var problems []string

	if _, err := c.Ledger.DepositFeeAmount(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Ledger.ServiceFeeBps > 1000 {
		problems = append(problems, fmt.Sprintf("ledger.service_fee_bps %d exceeds the 1000 cap", c.Ledger.ServiceFeeBps))
	}
	if len(c.Ledger.AdminAddresses) == 0 {
		problems = append(problems, "ledger.admin_addresses must name at least one admin")
	}
	if _, err := c.Ledger.Admins(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Ledger.WhitelistAddresses(); err != nil {
		problems = append(problems, err.Error())
	}

	if c.Chain.RPCURL != "" {
		if c.Chain.SettlementToken != "" && !common.IsHexAddress(c.Chain.SettlementToken) {
			problems = append(problems, fmt.Sprintf("chain.settlement_token %q is not an address", c.Chain.SettlementToken))
		}
		if c.Chain.LedgerAddress == "" || !common.IsHexAddress(c.Chain.LedgerAddress) {
			problems = append(problems, "chain.ledger_address must be set when chain.rpc_url is set")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q unknown", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
