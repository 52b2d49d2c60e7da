package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/mtvlabs/marketledger/internal/blob/s3"
	"github.com/mtvlabs/marketledger/internal/cache/redis"
	"github.com/mtvlabs/marketledger/internal/chain/evm"
	"github.com/mtvlabs/marketledger/internal/config"
	"github.com/mtvlabs/marketledger/internal/crypto"
	"github.com/mtvlabs/marketledger/internal/domain"
	"github.com/mtvlabs/marketledger/internal/ledger"
	"github.com/mtvlabs/marketledger/internal/notify"
	"github.com/mtvlabs/marketledger/internal/store/postgres"
)

// defaultArchiveInterval is used when the archive interval is not
// configured.
const defaultArchiveInterval = 15 * time.Minute

// Dependencies bundles every concrete dependency the application needs. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Connectivity, exposed for health checks.
	PgClient    *postgres.Client
	RedisClient *redis.Client

	// Stores.
	Items  domain.ItemStore
	Config domain.LedgerConfigStore
	Events domain.EventStore

	// Redis-backed fan-out and coordination.
	Bus     domain.EventBus
	Cache   domain.ItemCache
	Locks   domain.LockManager
	Limiter domain.RateLimiter

	// Object storage. Nil when no bucket is configured.
	Archiver *s3blob.EventArchiver

	// On-chain collaborators and the ledger's custody principal.
	Collab ledger.Collaborators

	// Operator alerting. Nil when no sender is configured.
	Alerts *notify.LedgerAlerts
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PgClient = pgClient
	deps.Items = postgres.NewItemStore(pool)
	deps.Config = postgres.NewConfigStore(pool)
	deps.Events = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RedisClient = redisClient
	deps.Bus = redis.NewEventBus(redisClient)
	deps.Cache = redis.NewItemCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)

	// --- S3 event archiver (optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		interval := defaultArchiveInterval
		if cfg.S3.ArchiveIntervalMinutes > 0 {
			interval = time.Duration(cfg.S3.ArchiveIntervalMinutes) * time.Minute
		}
		deps.Archiver = s3blob.NewEventArchiver(s3blob.NewWriter(s3Client), deps.Events, interval, logger)
	}

	// --- On-chain collaborators ---
	collab, closeChain, err := wireChain(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeChain)
	deps.Collab = collab

	// --- Operator alerts (optional) ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.Alerts = notify.NewLedgerAlerts(deps.Bus, notifier, logger)
	}

	return deps, cleanup, nil
}

// wireChain connects the EVM adapters: the operator key, registry resolver,
// settlement currency, native treasury, and the admin role set.
func wireChain(ctx context.Context, cfg *config.Config) (ledger.Collaborators, func(), error) {
	none := func() {}

	if cfg.Chain.RPCURL == "" {
		return ledger.Collaborators{}, none, fmt.Errorf("wire: chain.rpc_url is required")
	}

	operator, err := crypto.NewOperator(crypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.OperatorPrivateKey,
		EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
		KeyPassword:      cfg.Chain.KeyPassword,
	})
	if err != nil {
		return ledger.Collaborators{}, none, fmt.Errorf("wire: operator key: %w", err)
	}

	chainClient, err := evm.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		return ledger.Collaborators{}, none, fmt.Errorf("wire: chain: %w", err)
	}

	var currency domain.SettlementCurrency
	if cfg.Chain.SettlementToken != "" {
		currency, err = evm.NewCurrency(chainClient, operator, common.HexToAddress(cfg.Chain.SettlementToken))
		if err != nil {
			chainClient.Close()
			return ledger.Collaborators{}, none, fmt.Errorf("wire: settlement currency: %w", err)
		}
	}

	admins, err := cfg.Ledger.Admins()
	if err != nil {
		chainClient.Close()
		return ledger.Collaborators{}, none, fmt.Errorf("wire: %w", err)
	}

	self := operator.Address()
	if cfg.Chain.LedgerAddress != "" {
		self = common.HexToAddress(cfg.Chain.LedgerAddress)
	}

	return ledger.Collaborators{
		Assets:   evm.NewResolver(chainClient, operator),
		Currency: currency,
		Treasury: evm.NewTreasury(chainClient, operator),
		Roles:    ledger.NewStaticRoles(admins),
		Self:     self,
	}, chainClient.Close, nil
}
