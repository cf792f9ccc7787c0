package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/slotengine/internal/blob/s3"
	"github.com/alanyoungcy/slotengine/internal/cache/redis"
	"github.com/alanyoungcy/slotengine/internal/chain"
	"github.com/alanyoungcy/slotengine/internal/config"
	"github.com/alanyoungcy/slotengine/internal/crypto"
	"github.com/alanyoungcy/slotengine/internal/decay"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/notify"
	"github.com/alanyoungcy/slotengine/internal/registry"
	"github.com/alanyoungcy/slotengine/internal/server/handler"
	"github.com/alanyoungcy/slotengine/internal/store/postgres"
)

// Dependencies bundles everything the modes need. Optional backends are nil
// when not configured.
type Dependencies struct {
	Registry  *registry.Registry
	Eth       *ethclient.Client
	Reader    *chain.Reader
	Simulator *decay.Simulator
	// Wallet is nil when no signing key is configured.
	Wallet *chain.Wallet

	// Stores
	Snapshots domain.SlotSnapshotStore
	Actions   domain.ActionStore

	// Caches
	BoardCache  domain.BoardCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.SnapshotArchiver

	// Notifications
	Notifier *notify.Notifier

	// Checks are the health probes of every connected backend.
	Checks map[string]handler.Check
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
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{
		Simulator: decay.New(cfg.Engine.MaxPeriods),
		Checks:    make(map[string]handler.Check),
	}

	// --- Slot catalogue ---
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return fail("registry", err)
	}
	deps.Registry = reg
	logger.InfoContext(ctx, "registry loaded",
		slog.String("path", cfg.Registry.Path),
		slog.Int("slots", reg.Len()),
	)

	// --- Chain ---
	eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, eth.Close)
	deps.Eth = eth
	deps.Reader = chain.NewReader(eth, cfg.Engine.ReadConcurrency, logger)
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}

	if cfg.Wallet.HasKey() {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			PrivateKey:    cfg.Wallet.PrivateKey,
			SealedKeyPath: cfg.Wallet.SealedKeyPath,
			KeystorePath:  cfg.Wallet.KeystorePath,
			Password:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("wallet key", err)
		}
		var chainID *big.Int
		if cfg.Chain.ChainID > 0 {
			chainID = big.NewInt(cfg.Chain.ChainID)
		}
		deps.Wallet = chain.NewWallet(eth, key, chain.WalletConfig{
			ChainID:             chainID,
			GasHeadroomPct:      uint64(cfg.Chain.GasHeadroomPct),
			ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
		}, logger)
		logger.InfoContext(ctx, "wallet ready", slog.String("address", deps.Wallet.From().Hex()))
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled() {
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
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Snapshots = postgres.NewSlotSnapshotStore(pool)
		deps.Actions = postgres.NewActionStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BoardCache = redis.NewBoardCache(redisClient, cfg.Redis.BoardTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Bucket != "" {
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
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewBoardArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.S3.Prefix)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewLogSender(logger))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	logger.Info("notifier ready", slog.Any("senders", deps.Notifier.Senders()))

	return deps, cleanup, nil
}
