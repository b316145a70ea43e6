package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/oracle"
)

// ResolveRequest carries oracle votes either decoded or in wire form.
type ResolveRequest struct {
	Outcome   domain.Outcome      `json:"outcome"`
	Votes     []domain.OracleVote `json:"votes,omitempty"`
	VotesWire []byte              `json:"votes_wire,omitempty"`
}

// Resolution is the outcome of a successful finalize.
type Resolution struct {
	Receipt
	Tally oracle.Tally `json:"tally"`
}

// Resolve finalizes the market once the votes carry a strict weight
// majority for the claimed outcome.
func (s *MarketService) Resolve(ctx context.Context, id string, req ResolveRequest) (Resolution, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	votes := req.Votes
	if len(req.VotesWire) > 0 {
		reg := rt.resolver.Registry()
		votes, err = codec.DecodeVotes(req.VotesWire, reg.KeyLen(), reg.Len())
		if err != nil {
			return Resolution{}, fmt.Errorf("market_service: resolve %s: %w", id, err)
		}
	}

	var res Resolution
	err = s.withLock(ctx, id, func() error {
		v, err := s.current(ctx, id)
		if err != nil {
			return err
		}
		tr, tally, err := rt.machine.Finalize(v.Status, rt.resolver, votes, req.Outcome)
		if err != nil {
			return fmt.Errorf("market_service: resolve %s: %w", id, err)
		}
		if len(tally.Rejected) > 0 {
			s.logger.WarnContext(ctx, "market_service: oracle votes skipped",
				slog.String("market_id", id),
				slog.String("error", tally.Err().Error()),
			)
		}
		next, err := s.commit(ctx, rt, v, tr, market.Witness{Votes: votes, Outcome: req.Outcome})
		if err != nil {
			return err
		}

		slots := make([]int, len(tally.Accepted))
		for i, a := range tally.Accepted {
			slots[i] = int(a)
		}
		if err := s.Resolutions.Insert(ctx, domain.Resolution{
			MarketID:    id,
			Outcome:     req.Outcome,
			Weight:      tally.Weight,
			TotalWeight: tally.TotalWeight,
			Slots:       slots,
			CreatedAt:   next.CreatedAt,
		}); err != nil {
			s.logger.ErrorContext(ctx, "market_service: record resolution failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}

		res = Resolution{Receipt: receipt(rt, next, tr), Tally: tally}
		return nil
	})
	return res, err
}

// GetResolution returns the recorded tally of a resolved market.
func (s *MarketService) GetResolution(ctx context.Context, id string) (domain.Resolution, error) {
	r, err := s.Resolutions.Get(ctx, id)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("market_service: resolution %s: %w", id, err)
	}
	return r, nil
}
