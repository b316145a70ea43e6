// Package service is the single-writer facade over the market core. Every
// write locks the market, replays the pure state machine against the current
// commitment, has the covenant verifier authorize the result, and only then
// appends the new status version and fans the change out.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/hasher"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/notify"
	"github.com/alanyoungcy/predictledger/internal/oracle"
)

// EventNotifier delivers market lifecycle events to operators.
type EventNotifier interface {
	NotifyMarket(ctx context.Context, ev notify.MarketEvent) error
}

// Config holds the per-deployment market parameters.
type Config struct {
	LedgerDepth  int
	OracleKeyLen int
	LockTTL      time.Duration
	// StatusStream is the durable stream every accepted version is appended to.
	StatusStream string
	// Operator, when set, is the creator of markets whose request omits one.
	Operator domain.OwnerKey
}

// Deps groups the collaborators of a MarketService. Notifier may be nil.
type Deps struct {
	Markets     domain.MarketStore
	Statuses    domain.StatusStore
	Ledger      domain.LedgerStore
	Resolutions domain.ResolutionStore
	Audit       domain.AuditStore
	Cache       domain.StatusCache
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Notifier    EventNotifier

	Hasher     hasher.Hasher
	Ladder     *lmsr.Ladder
	Engine     *lmsr.Engine
	Owners     market.OwnerVerifier
	OracleSigs oracle.SignatureVerifier
}

// MarketService runs markets on behalf of API clients.
type MarketService struct {
	Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	runtimes map[string]*runtime
}

// runtime is the immutable per-market machinery derived from its record.
type runtime struct {
	record   domain.MarketRecord
	machine  *market.StateMachine
	resolver *oracle.Resolver
	verifier market.CovenantVerifier
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(deps Deps, cfg Config, logger *slog.Logger) (*MarketService, error) {
	if deps.Hasher == nil || deps.Ladder == nil || deps.Engine == nil {
		return nil, fmt.Errorf("market_service: hasher, ladder and engine are required")
	}
	if deps.Owners == nil || deps.OracleSigs == nil {
		return nil, fmt.Errorf("market_service: owner and oracle verifiers are required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.StatusStream == "" {
		cfg.StatusStream = "stream:market_status"
	}
	return &MarketService{
		Deps:     deps,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "market_service")),
		now:      time.Now,
		runtimes: make(map[string]*runtime),
	}, nil
}

// Channel is the pub/sub channel that carries a market's status events.
func Channel(marketID string) string {
	return "market:" + marketID
}

// runtimeFor returns the cached machinery for a market, building it from
// the stored record on first use.
func (s *MarketService) runtimeFor(ctx context.Context, id string) (*runtime, error) {
	s.mu.RLock()
	rt, ok := s.runtimes[id]
	s.mu.RUnlock()
	if ok {
		return rt, nil
	}

	rec, err := s.Markets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service: market %s: %w", id, err)
	}
	rt, err = s.buildRuntime(rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.runtimes[id] = rt
	s.mu.Unlock()
	return rt, nil
}

func (s *MarketService) buildRuntime(rec domain.MarketRecord) (*runtime, error) {
	if rec.HashName != s.Hasher.Name() || rec.LadderRoot != s.Ladder.Root() {
		return nil, fmt.Errorf("market_service: market %s committed to %s ladder %s, serving %s ladder %s: %w",
			rec.ID, rec.HashName, rec.LadderRoot.Hex(), s.Hasher.Name(), s.Ladder.Root().Hex(), domain.ErrState)
	}
	machine, err := market.New(market.Config{
		Hasher:      s.Hasher,
		Engine:      s.Engine,
		LadderRoot:  rec.LadderRoot,
		LedgerDepth: rec.LedgerDepth,
		Owners:      s.Owners,
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: market %s: %w", rec.ID, err)
	}
	reg, err := oracle.NewRegistry(rec.Registry, s.cfg.OracleKeyLen)
	if err != nil {
		return nil, fmt.Errorf("market_service: market %s registry: %w", rec.ID, err)
	}
	resolver := oracle.NewResolver(reg, s.OracleSigs)
	return &runtime{
		record:   rec,
		machine:  machine,
		resolver: resolver,
		verifier: market.NewReplayVerifier(machine, resolver),
	}, nil
}

// current returns the committed status, from the cache when possible.
func (s *MarketService) current(ctx context.Context, id string) (domain.StatusVersion, error) {
	v, err := s.Cache.Get(ctx, id)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "market_service: cache get failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}

	v, err = s.Statuses.Current(ctx, id)
	if err != nil {
		return domain.StatusVersion{}, fmt.Errorf("market_service: current status %s: %w", id, err)
	}
	if cacheErr := s.Cache.Set(ctx, v); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return v, nil
}

// withLock runs fn while holding the market's write lock. A conflict means
// fn worked from a stale cached status, so the cache entry is dropped and
// the caller's retry reads the store.
func (s *MarketService) withLock(ctx context.Context, id string, fn func() error) error {
	unlock, err := s.Locks.Acquire(ctx, "market:"+id, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("market_service: lock %s: %w", id, err)
	}
	defer unlock()

	err = fn()
	if errors.Is(err, domain.ErrConflict) {
		if cacheErr := s.Cache.Invalidate(ctx, id); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return err
}

// StatusEvent is the payload published for every committed version.
type StatusEvent struct {
	MarketID string                `json:"market_id"`
	Version  int64                 `json:"version"`
	Kind     domain.TransitionKind `json:"kind"`
	Phase    domain.Phase          `json:"phase"`
	Status   domain.MarketStatus   `json:"status"`
	Blob     []byte                `json:"blob"`
	Payment  int64                 `json:"payment"`
}
