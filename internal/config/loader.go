package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MKTLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. A missing file is not
// an error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MKTLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.DepositFee, "MKTLEDGER_DEPOSIT_FEE")
	setUint32(&cfg.Ledger.ServiceFeeBps, "MKTLEDGER_SERVICE_FEE_BPS")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "MKTLEDGER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MKTLEDGER_CHAIN_ID")
	setStr(&cfg.Chain.SettlementToken, "MKTLEDGER_CHAIN_SETTLEMENT_TOKEN")
	setStr(&cfg.Chain.LedgerAddress, "MKTLEDGER_CHAIN_LEDGER_ADDRESS")
	setStr(&cfg.Chain.OperatorPrivateKey, "MKTLEDGER_CHAIN_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "MKTLEDGER_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "MKTLEDGER_CHAIN_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MKTLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MKTLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MKTLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MKTLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MKTLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MKTLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MKTLEDGER_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "MKTLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MKTLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MKTLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MKTLEDGER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MKTLEDGER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MKTLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MKTLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "MKTLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MKTLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MKTLEDGER_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MKTLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MKTLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MKTLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "MKTLEDGER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MKTLEDGER_SERVER_API_KEY")

	setStr(&cfg.LogLevel, "MKTLEDGER_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
