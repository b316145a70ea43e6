package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/oracle"
)

// CreateRequest registers a new market.
type CreateRequest struct {
	Details  string             `json:"details"`
	Creator  domain.OwnerKey    `json:"creator"`
	Registry []domain.OracleKey `json:"registry"`
	// Seed, when set, funds the market with the creator's own entry.
	Seed *domain.Shares `json:"seed,omitempty"`
}

// CreateMarket registers a market and commits its creation status as
// version 0. Re-creating an existing market fails with domain.ErrConflict.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateRequest) (MarketView, error) {
	if req.Creator.IsZero() {
		req.Creator = s.cfg.Operator
	}
	if req.Creator.IsZero() {
		return MarketView{}, fmt.Errorf("market_service: create: creator key required: %w", domain.ErrMalformed)
	}
	if err := codec.ValidateDetails(req.Details); err != nil {
		return MarketView{}, fmt.Errorf("market_service: create: %w", err)
	}
	reg, err := oracle.NewRegistry(req.Registry, s.cfg.OracleKeyLen)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: create: %w", err)
	}

	metadata := market.Metadata(s.Hasher, req.Creator, reg.Encode(), req.Details)
	rec := domain.MarketRecord{
		ID:          market.ID(s.Hasher, metadata),
		Metadata:    metadata,
		Registry:    reg.Keys(),
		LedgerDepth: s.cfg.LedgerDepth,
		HashName:    s.Hasher.Name(),
		LadderRoot:  s.Ladder.Root(),
		CreatedAt:   s.now().UTC(),
	}
	rt, err := s.buildRuntime(rec)
	if err != nil {
		return MarketView{}, err
	}

	status := rt.machine.Genesis(metadata)
	var (
		funding int64
		slots   []domain.LedgerSlot
	)
	if req.Seed != nil {
		e := domain.LedgerEntry{Owner: req.Creator, Shares: *req.Seed}
		status, funding, err = rt.machine.Seed(metadata, e)
		if err != nil {
			return MarketView{}, fmt.Errorf("market_service: create: %w", err)
		}
		slots = append(slots, domain.LedgerSlot{MarketID: rec.ID, Slot: 0, Entry: e, UpdatedAt: rec.CreatedAt})
		if rec.LedgerDepth == 1 {
			slots = append(slots, domain.LedgerSlot{MarketID: rec.ID, Slot: 1, Entry: e, UpdatedAt: rec.CreatedAt})
		}
	}

	v := domain.StatusVersion{
		MarketID:     rec.ID,
		Version:      0,
		Status:       status,
		Blob:         codec.EncodeStatus(status),
		Kind:         domain.TransitionCreate,
		Payment:      funding,
		TransitionID: uuid.NewString(),
		CreatedAt:    rec.CreatedAt,
	}
	if err := s.Markets.Create(ctx, rec, v, slots); err != nil {
		return MarketView{}, fmt.Errorf("market_service: create %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	s.runtimes[rec.ID] = rt
	s.mu.Unlock()

	s.announce(ctx, rt, v, map[string]any{"details": req.Details})
	return s.view(rt, v)
}
