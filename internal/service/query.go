package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// MarketView is the read model of one market.
type MarketView struct {
	Record       domain.MarketRecord  `json:"market"`
	Info         domain.MarketInfo    `json:"info"`
	Current      domain.StatusVersion `json:"current"`
	Phase        domain.Phase         `json:"phase"`
	Balance      int64                `json:"balance"`
	PriceFor     decimal.Decimal      `json:"price_for"`
	PriceAgainst decimal.Decimal      `json:"price_against"`
}

// EntryProof is one slot of the balance table with its inclusion proof.
type EntryProof struct {
	Slot  int                `json:"slot"`
	Entry domain.LedgerEntry `json:"entry"`
	Proof merkle.Proof       `json:"proof"`
	Root  domain.Digest      `json:"root"`
}

func (s *MarketService) view(rt *runtime, v domain.StatusVersion) (MarketView, error) {
	info, err := codec.DecodeMetadata(rt.record.Metadata)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: market %s metadata: %w", rt.record.ID, err)
	}
	balance, err := s.Engine.Balance(v.Status.Shares)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: market %s balance: %w", rt.record.ID, err)
	}
	pf, pa, err := lmsr.Prices(v.Status.Shares)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: market %s prices: %w", rt.record.ID, err)
	}
	return MarketView{
		Record:       rt.record,
		Info:         info,
		Current:      v,
		Phase:        rt.machine.Phase(v.Status),
		Balance:      balance,
		PriceFor:     pf,
		PriceAgainst: pa,
	}, nil
}

// Status returns the current view of a market.
func (s *MarketService) Status(ctx context.Context, id string) (MarketView, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return MarketView{}, err
	}
	v, err := s.current(ctx, id)
	if err != nil {
		return MarketView{}, err
	}
	return s.view(rt, v)
}

// List returns registered markets.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	recs, err := s.Markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return recs, nil
}

// History returns committed versions of a market, newest first.
func (s *MarketService) History(ctx context.Context, id string, opts domain.ListOpts) ([]domain.StatusVersion, error) {
	vs, err := s.Statuses.History(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: history %s: %w", id, err)
	}
	return vs, nil
}

// table rebuilds the off-chain balance table and checks it against the
// committed root.
func (s *MarketService) table(ctx context.Context, rt *runtime, v domain.StatusVersion) (*merkle.Table, error) {
	rows, err := s.Ledger.Slots(ctx, rt.record.ID)
	if err != nil {
		return nil, fmt.Errorf("market_service: slots %s: %w", rt.record.ID, err)
	}
	entries := make([]domain.LedgerEntry, 1<<rt.record.LedgerDepth)
	for _, r := range rows {
		if r.Slot < 0 || r.Slot >= len(entries) {
			return nil, fmt.Errorf("market_service: market %s slot %d outside table: %w", rt.record.ID, r.Slot, domain.ErrMalformed)
		}
		entries[r.Slot] = r.Entry
	}
	t, err := merkle.NewTable(s.Hasher, rt.record.LedgerDepth, entries)
	if err != nil {
		return nil, fmt.Errorf("market_service: table %s: %w", rt.record.ID, err)
	}
	if t.Root() != v.Status.BalanceTableRoot {
		return nil, fmt.Errorf("market_service: market %s projection root %s, committed %s: %w",
			rt.record.ID, t.Root().Hex(), v.Status.BalanceTableRoot.Hex(), domain.ErrConflict)
	}
	return t, nil
}

// Entries returns every occupied slot of the balance table.
func (s *MarketService) Entries(ctx context.Context, id string) ([]domain.LedgerSlot, error) {
	rows, err := s.Ledger.Slots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service: entries %s: %w", id, err)
	}
	out := rows[:0]
	for _, r := range rows {
		if !r.Entry.IsSentinel() {
			out = append(out, r)
		}
	}
	return out, nil
}

// EntryProof returns the inclusion proof of one slot under the current root.
func (s *MarketService) EntryProof(ctx context.Context, id string, slot int) (EntryProof, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return EntryProof{}, err
	}
	v, err := s.current(ctx, id)
	if err != nil {
		return EntryProof{}, err
	}
	t, err := s.table(ctx, rt, v)
	if err != nil {
		return EntryProof{}, err
	}
	e, err := t.Entry(slot)
	if err != nil {
		return EntryProof{}, fmt.Errorf("market_service: entry proof %s: %w", id, err)
	}
	proof, err := t.Proof(slot)
	if err != nil {
		return EntryProof{}, fmt.Errorf("market_service: entry proof %s: %w", id, err)
	}
	return EntryProof{Slot: slot, Entry: e, Proof: proof, Root: t.Root()}, nil
}

// LadderProof returns the price proof for a state of the shared ladder.
func (s *MarketService) LadderProof(shares domain.Shares) (lmsr.PriceProof, error) {
	p, err := s.Ladder.Proof(shares)
	if err != nil {
		return lmsr.PriceProof{}, fmt.Errorf("market_service: ladder proof %s: %w", shares, err)
	}
	return p, nil
}

// LadderRoot is the commitment every market served here is bound to.
func (s *MarketService) LadderRoot() domain.Digest {
	return s.Ladder.Root()
}

// Quote prices replacing one entry's shares in the current market.
func (s *MarketService) Quote(ctx context.Context, id string, before, after domain.Shares) (lmsr.Quote, error) {
	v, err := s.current(ctx, id)
	if err != nil {
		return lmsr.Quote{}, err
	}
	global, err := lmsr.Add(v.Status.Shares, before, after)
	if err != nil {
		return lmsr.Quote{}, fmt.Errorf("market_service: quote %s: %w", id, err)
	}
	q, err := s.Engine.Quote(v.Status.Shares, global)
	if err != nil {
		return lmsr.Quote{}, fmt.Errorf("market_service: quote %s: %w", id, err)
	}
	return q, nil
}
