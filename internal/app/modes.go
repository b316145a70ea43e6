package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/pipeline"
	"github.com/alanyoungcy/predictledger/internal/rabin"
	"github.com/alanyoungcy/predictledger/internal/server"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/server/middleware"
	"github.com/alanyoungcy/predictledger/internal/server/ws"
	"github.com/alanyoungcy/predictledger/internal/service"
)

// Key file names written by keygen mode.
const (
	OwnerKeyFile  = "owner.json"
	OracleKeyFile = "oracle.json"
)

// ServerMode runs the market API, the WebSocket hub and, when enabled, the
// one-off ladder snapshot upload. It blocks until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcCfg := service.Config{
		LedgerDepth:  a.cfg.Market.LedgerDepth,
		OracleKeyLen: a.cfg.Oracle.KeyLen,
		LockTTL:      a.cfg.Market.LockTTL.Duration,
		StatusStream: a.cfg.Market.StatusStream,
	}
	operator, err := a.loadOperator()
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	if operator != nil {
		svcCfg.Operator = operator.Owner()
		a.logger.InfoContext(ctx, "operator key loaded", slog.String("owner", operator.Owner().Hex()))
	}

	marketSvc, err := service.NewMarketService(service.Deps{
		Markets:     deps.MarketStore,
		Statuses:    deps.StatusStore,
		Ledger:      deps.StatusStore,
		Resolutions: deps.ResolutionStore,
		Audit:       deps.AuditStore,
		Cache:       deps.StatusCache,
		Locks:       deps.LockManager,
		Bus:         deps.SignalBus,
		Notifier:    deps.Notifier,
		Hasher:      deps.Hasher,
		Ladder:      deps.Ladder,
		Engine:      deps.Engine,
		Owners:      crypto.OwnerVerifier{},
		OracleSigs:  rabin.Verifier{},
	}, svcCfg, a.logger)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.PublishLadder {
		g.Go(func() error {
			a.publishLadder(ctx, deps)
			return nil
		})
	}

	startedAt := time.Now().UTC()
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:       a.cfg.Mode,
		LadderRoot: deps.Ladder.Root().Hex(),
		StartedAt:  startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	health := handler.NewHealthHandler(map[string]handler.Checker{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
		"s3":       deps.S3,
	}, a.logger)

	hmac := make([]crypto.HMACAuth, 0, len(a.cfg.Server.HMAC))
	for _, h := range a.cfg.Server.HMAC {
		hmac = append(hmac, crypto.HMACAuth{Key: h.Key, Secret: h.Secret})
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			APIKey:  a.cfg.Server.APIKey,
			HMAC:    hmac,
			MaxSkew: a.cfg.Server.HMACMaxSkew.Duration,
		},
		RateLimit:      a.cfg.Server.RateLimit,
		WriteRateLimit: a.cfg.Server.WriteRateLimit,
		RateWindow:     a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  health,
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Status: &handler.StatusHandler{
			Mode:         a.cfg.Mode,
			Hash:         deps.Hasher.Name(),
			LadderRoot:   deps.Ladder.Root().Hex(),
			LedgerDepth:  a.cfg.Market.LedgerDepth,
			OracleKeyLen: a.cfg.Oracle.KeyLen,
			Params:       deps.Engine.Params(),
			StartedAt:    startedAt,
		},
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// loadOperator resolves the optional operator owner key. It returns nil when
// no key source is configured.
func (a *App) loadOperator() (*crypto.Signer, error) {
	keys := a.cfg.Keys
	if keys.OwnerPrivateKey == "" && keys.EncryptedOwnerPath == "" {
		return nil, nil
	}
	return crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    keys.OwnerPrivateKey,
		EncryptedKeyPath: keys.EncryptedOwnerPath,
		KeyPassword:      keys.Password,
	})
}

// publishLadder uploads the ladder snapshot when missing. Failures are logged;
// the API serves ladder proofs from memory regardless.
func (a *App) publishLadder(ctx context.Context, deps *Dependencies) {
	uploaded, err := deps.Ladders.Publish(ctx, deps.Ladder)
	if err != nil {
		a.logger.WarnContext(ctx, "ladder snapshot upload failed",
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "ladder snapshot",
		slog.String("root", deps.Ladder.Root().Hex()),
		slog.Bool("uploaded", uploaded),
	)
}

// LadderMode publishes the configured price ladder and reads the snapshot
// back to confirm it matches, then exits.
func (a *App) LadderMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ladder mode")

	uploaded, err := deps.Ladders.Publish(ctx, deps.Ladder)
	if err != nil {
		return fmt.Errorf("ladder mode: %w", err)
	}
	stored, err := deps.Ladders.Load(ctx, deps.Ladder.Root())
	if err != nil {
		return fmt.Errorf("ladder mode: %w", err)
	}
	if want := len(deps.Ladder.Entries()); len(stored) != want {
		return fmt.Errorf("ladder mode: snapshot holds %d entries, want %d", len(stored), want)
	}
	roots, err := deps.Ladders.List(ctx)
	if err != nil {
		return fmt.Errorf("ladder mode: %w", err)
	}

	a.logger.InfoContext(ctx, "ladder published",
		slog.String("root", deps.Ladder.Root().Hex()),
		slog.Int("entries", len(stored)),
		slog.Bool("uploaded", uploaded),
		slog.Any("stored_roots", roots),
	)
	return nil
}

// ArchiveMode uploads status versions older than the retention window. With
// archive.cron set it repeats on that schedule until ctx is cancelled;
// otherwise it archives once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired")
	}

	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	if a.cfg.Archive.Cron != "" {
		return archiver.RunCron(ctx, a.cfg.Archive.Cron)
	}

	n, err := archiver.Run(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	if n > 0 {
		msg := fmt.Sprintf("%d status versions before %s archived", n, archiver.Cutoff().Format(time.DateOnly))
		if err := deps.Notifier.Notify(ctx, "archive.completed", "Status history archived", msg); err != nil {
			a.logger.WarnContext(ctx, "archive notification failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// KeygenMode creates a participant owner key and an oracle Rabin key, seals
// both under keys.password in keys.out_dir, and logs their public halves.
func (a *App) KeygenMode(ctx context.Context) error {
	keys := a.cfg.Keys
	if err := os.MkdirAll(keys.OutDir, 0o700); err != nil {
		return fmt.Errorf("keygen mode: %w", err)
	}

	signer, err := crypto.GenerateSigner()
	if err != nil {
		return fmt.Errorf("keygen mode: owner key: %w", err)
	}
	ownerBlob, err := crypto.EncryptKey(signer.PrivateKeyHex(), keys.Password, keys.Iterations)
	if err != nil {
		return fmt.Errorf("keygen mode: owner key: %w", err)
	}

	oracleKey, err := rabin.GenerateKey(rand.Reader, a.cfg.Oracle.KeyLen)
	if err != nil {
		return fmt.Errorf("keygen mode: oracle key: %w", err)
	}
	raw, err := rabin.MarshalPrivateKey(oracleKey)
	if err != nil {
		return fmt.Errorf("keygen mode: oracle key: %w", err)
	}
	oracleBlob, err := crypto.Seal(crypto.KindRabin, raw, keys.Password, keys.Iterations)
	if err != nil {
		return fmt.Errorf("keygen mode: oracle key: %w", err)
	}

	for name, blob := range map[string][]byte{OwnerKeyFile: ownerBlob, OracleKeyFile: oracleBlob} {
		path := filepath.Join(keys.OutDir, name)
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			return fmt.Errorf("keygen mode: write %s: %w", path, err)
		}
	}

	a.logger.InfoContext(ctx, "keys generated",
		slog.String("dir", keys.OutDir),
		slog.String("owner", signer.Owner().Hex()),
		slog.String("oracle", hex.EncodeToString(oracleKey.PublicKey())),
	)
	return nil
}
