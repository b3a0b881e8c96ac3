package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdkmath "cosmossdk.io/math"

	s3blob "github.com/alanyoungcy/perpamm/internal/blob/s3"
	"github.com/alanyoungcy/perpamm/internal/cache/redis"
	"github.com/alanyoungcy/perpamm/internal/collateral"
	"github.com/alanyoungcy/perpamm/internal/config"
	"github.com/alanyoungcy/perpamm/internal/domain"
	"github.com/alanyoungcy/perpamm/internal/market"
	"github.com/alanyoungcy/perpamm/internal/notify"
	"github.com/alanyoungcy/perpamm/internal/service"
	"github.com/alanyoungcy/perpamm/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core
	Bank   *collateral.Bank
	Engine *market.Market
	Market *service.MarketService

	// Stores
	MarketStore domain.MarketStore
	EpochStore  domain.EpochStore
	TradeStore  domain.TradeStore
	ShareStore  domain.ShareStore
	AuditStore  domain.AuditStore

	// Caches (full mode only)
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (full mode, when enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that require the cache layer.
func needsRedis(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
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
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.EpochStore = postgres.NewEpochStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.ShareStore = postgres.NewShareStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis (full mode only) ---
	if needsRedis(cfg.Mode) {
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (optional epoch archives) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore, deps.AuditStore)
	}

	// --- Collateral bank and market engine ---
	deps.Bank = collateral.NewBank(cfg.Bank.Symbol, cfg.Bank.Decimals)

	marketCfg, err := cfg.MarketDomain()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market config: %w", err)
	}

	deps.Engine, err = market.New(marketCfg, deps.Bank)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market engine: %w", err)
	}

	if err := restoreOrInit(ctx, deps, marketCfg, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Market service ---
	svcDeps := service.Deps{
		Engine:  deps.Engine,
		Markets: deps.MarketStore,
		Epochs:  deps.EpochStore,
		Trades:  deps.TradeStore,
		Shares:  deps.ShareStore,
		Audit:   deps.AuditStore,
		Prices:  deps.PriceCache,
		Locks:   deps.LockManager,
		Bus:     deps.SignalBus,
		Logger:  logger,
	}
	if cfg.Bank.FaucetEnabled {
		svcDeps.Faucet = deps.Bank
		svcDeps.FaucetAmount = cfg.FaucetAmount()
	}
	deps.Market = service.NewMarketService(svcDeps)

	return deps, cleanup, nil
}

// restoreOrInit loads the persisted market snapshot into the engine, or
// initializes a fresh market when no snapshot exists.
//
// The collateral bank is an in-process simulation and does not persist
// balances. After a restore the market escrow is re-funded so settlement
// stays covered; trader balances come back through the faucet.
func restoreOrInit(ctx context.Context, deps *Dependencies, marketCfg domain.MarketConfig, logger *slog.Logger) error {
	rec, err := deps.MarketStore.GetByID(ctx, marketCfg.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := deps.Bank.Mint(marketCfg.Owner, marketCfg.StartFunding); err != nil {
			return fmt.Errorf("wire: seed owner funding: %w", err)
		}
		if err := deps.Bank.Approve(marketCfg.Owner, deps.Engine.Address(), marketCfg.StartFunding); err != nil {
			return fmt.Errorf("wire: approve funding: %w", err)
		}
		if err := deps.Engine.Init(); err != nil {
			return fmt.Errorf("wire: init market: %w", err)
		}
		logger.InfoContext(ctx, "wire: initialized fresh market",
			slog.String("market_id", marketCfg.ID),
		)
		return nil

	case err != nil:
		return fmt.Errorf("wire: load market snapshot: %w", err)
	}

	epochs, err := deps.EpochStore.ListByMarket(ctx, marketCfg.ID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("wire: load epochs: %w", err)
	}
	shares, err := deps.ShareStore.LoadSnapshot(ctx, marketCfg.ID)
	if err != nil {
		return fmt.Errorf("wire: load share snapshot: %w", err)
	}
	if err := deps.Engine.Restore(rec, epochs, shares); err != nil {
		return fmt.Errorf("wire: restore market: %w", err)
	}

	escrow := restoreEscrow(rec, epochs)
	if escrow.IsPositive() {
		if err := deps.Bank.Mint(deps.Engine.Address(), escrow); err != nil {
			return fmt.Errorf("wire: refund market escrow: %w", err)
		}
	}

	logger.InfoContext(ctx, "wire: restored market from snapshot",
		slog.String("market_id", marketCfg.ID),
		slog.Uint64("current_epoch", rec.CurrentEpoch),
		slog.Int("share_entries", len(shares)),
	)
	return nil
}

// restoreEscrow computes the collateral the market account must hold after a
// restore: accrued fees, the active epoch's funding (which also backs carried
// rollover claims), and the payout totals of every resolved epoch so
// redemptions against past epochs stay payable. Redemptions settled before
// the snapshot cannot be told apart from outstanding ones, so past-epoch
// liabilities are re-funded in full.
func restoreEscrow(rec domain.MarketRecord, epochs []domain.Epoch) sdkmath.Int {
	escrow := rec.FeeAccrued
	for _, ep := range epochs {
		switch {
		case ep.Number == rec.CurrentEpoch:
			escrow = escrow.Add(ep.Funding)
		case ep.Resolved():
			escrow = escrow.Add(ep.TotalPayout)
		}
	}
	return escrow
}
