// Package app owns the application lifecycle: it wires the stores, caches,
// chain adapters, and ledger together, rehydrates state, and runs the API
// server, event hub, and archiver until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtvlabs/marketledger/internal/config"
	"github.com/mtvlabs/marketledger/internal/domain"
	"github.com/mtvlabs/marketledger/internal/ledger"
	"github.com/mtvlabs/marketledger/internal/server"
	"github.com/mtvlabs/marketledger/internal/server/handler"
	"github.com/mtvlabs/marketledger/internal/server/ws"
)

// restoreLockTTL bounds how long one instance may hold the startup
// rehydration lock.
const restoreLockTTL = 30 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, restores the ledger, and serves until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	led, err := a.buildLedger(ctx, deps)
	if err != nil {
		return err
	}

	hub := ws.NewHub(deps.Bus, a.logger)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.PgClient,
			"redis":    deps.RedisClient,
		}, a.logger),
		Listings: handler.NewListingHandler(led, deps.Cache, a.logger),
		Admin:    handler.NewAdminHandler(led, a.logger),
		Events:   handler.NewEventsHandler(deps.Events, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSeconds) * time.Second,
	}, handlers, hub, deps.Limiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(gctx)
		})
	}
	if deps.Alerts != nil {
		g.Go(func() error {
			return deps.Alerts.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return ctx.Err()
}

// buildLedger constructs the ledger, rehydrates it under a distributed lock
// so concurrent instances do not race first-boot seeding, and applies the
// configured whitelist seed when none is persisted yet.
func (a *App) buildLedger(ctx context.Context, deps *Dependencies) (*ledger.Ledger, error) {
	depositFee, err := a.cfg.Ledger.DepositFeeAmount()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	led := ledger.New(deps.Collab, ledger.Persistence{
		Items:  deps.Items,
		Config: deps.Config,
		Events: deps.Events,
		Bus:    deps.Bus,
		Cache:  deps.Cache,
	}, domain.FeeConfig{
		DepositFee:    depositFee,
		ServiceFeeBps: a.cfg.Ledger.ServiceFeeBps,
	}, a.logger)

	unlock, err := deps.Locks.Acquire(ctx, "ledger:restore", restoreLockTTL)
	if err != nil {
		return nil, fmt.Errorf("app: restore lock: %w", err)
	}
	defer unlock()

	if err := led.Restore(ctx); err != nil {
		return nil, fmt.Errorf("app: restore ledger: %w", err)
	}

	if len(led.WhitelistedRegistries()) == 0 {
		seed, err := a.cfg.Ledger.WhitelistAddresses()
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		admins, err := a.cfg.Ledger.Admins()
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		if len(seed) > 0 && len(admins) > 0 {
			if err := led.WhitelistRegistries(ctx, seed, admins[0]); err != nil {
				return nil, fmt.Errorf("app: seed whitelist: %w", err)
			}
			a.logger.InfoContext(ctx, "seeded registry whitelist",
				slog.Int("registries", len(seed)),
			)
		}
	}

	return led, nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
