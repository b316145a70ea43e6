package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/predictledger/internal/blob/s3"
	"github.com/alanyoungcy/predictledger/internal/cache/redis"
	"github.com/alanyoungcy/predictledger/internal/config"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/notify"
	"github.com/alanyoungcy/predictledger/internal/store/postgres"
)

// Dependencies bundles every concrete dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Members a mode does not need are left nil.
type Dependencies struct {
	// Stores
	Postgres        *postgres.Client
	MarketStore     *postgres.MarketStore
	StatusStore     *postgres.StatusStore
	ResolutionStore *postgres.ResolutionStore
	AuditStore      *postgres.AuditStore

	// Caches
	Redis       *redis.Client
	StatusCache *redis.StatusCache
	LockManager *redis.LockManager
	SignalBus   *redis.SignalBus
	RateLimiter *redis.RateLimiter

	// Blob storage
	S3       *s3blob.Client
	Archiver *s3blob.ArchiveImpl
	Ladders  *s3blob.LadderSnapshots

	// Notifications
	Notifier *notify.Notifier

	// Pricing core shared by every market on this deployment.
	Hasher hasher.Hasher
	Engine *lmsr.Engine
	Ladder *lmsr.Ladder
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "archive":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that serve live traffic.
func needsRedis(mode string) bool {
	return mode == "server"
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "server", "ladder", "archive":
		return true
	default:
		return false
	}
}

// needsLadder returns true for modes that price markets.
func needsLadder(mode string) bool {
	return mode == "server" || mode == "ladder"
}

// BuildCore resolves the hasher and builds the pricing engine and its price
// ladder from the market section.
func BuildCore(cfg config.MarketConfig) (hasher.Hasher, *lmsr.Engine, *lmsr.Ladder, error) {
	h, err := hasher.ByName(cfg.Hash)
	if err != nil {
		return nil, nil, nil, err
	}
	engine, err := lmsr.New(lmsr.Params{
		ScalingFactor: cfg.ScalingFactor,
		SatScaling:    cfg.SatScaling,
		MaxLiquidity:  uint8(cfg.MaxLiquidity),
		MaxShares:     uint8(cfg.MaxShares),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	ladder, err := engine.BuildLadder(h)
	if err != nil {
		return nil, nil, nil, err
	}
	return h, engine, ladder, nil
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
	mode := cfg.Mode

	// --- Pricing core ---
	if needsLadder(mode) {
		h, engine, ladder, err := BuildCore(cfg.Market)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: pricing core: %w", err)
		}
		deps.Hasher, deps.Engine, deps.Ladder = h, engine, ladder
		logger.InfoContext(ctx, "price ladder built",
			slog.String("hash", h.Name()),
			slog.Int("entries", len(ladder.Entries())),
			slog.String("root", ladder.Root().Hex()),
		)
	}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
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

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Postgres = pgClient
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.StatusStore = postgres.NewStatusStore(pool)
		deps.ResolutionStore = postgres.NewResolutionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if needsRedis(mode) {
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

		deps.Redis = redisClient
		deps.StatusCache = redis.NewStatusCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(mode) {
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

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.S3 = s3Client
		deps.Ladders = s3blob.NewLadderSnapshots(writer, reader)
		// Archiver: only when we also have Postgres (status history + audit log).
		if deps.StatusStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(writer, deps.StatusStore, deps.AuditStore)
		}
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

	return deps, cleanup, nil
}
