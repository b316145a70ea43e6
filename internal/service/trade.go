package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// Receipt is the outcome of an accepted write.
type Receipt struct {
	Version domain.StatusVersion `json:"version"`
	Phase   domain.Phase         `json:"phase"`
	Slot    int                  `json:"slot"`
	Entry   domain.LedgerEntry   `json:"entry"`
	Payment int64                `json:"payment"`
}

// Prepared is an unsigned proposal completed with the proofs the service
// holds, plus the commitments the owner must sign over.
type Prepared struct {
	Proposal market.Proposal `json:"proposal"`
	PrevBlob []byte          `json:"prev_blob"`
	NextBlob []byte          `json:"next_blob"`
	Payment  int64           `json:"payment"`
	// SpendDigest is what the entry owner signs to authorize an update.
	SpendDigest domain.Digest `json:"spend_digest"`
}

// complete fills missing proofs in p from the projection and the ladder.
// Proofs the caller supplied are left untouched.
func (s *MarketService) complete(ctx context.Context, rt *runtime, v domain.StatusVersion, p market.Proposal) (market.Proposal, error) {
	if len(p.Proof) == 0 {
		t, err := s.table(ctx, rt, v)
		if err != nil {
			return p, err
		}
		var slot int
		if p.Before.IsSentinel() {
			slot = t.FreeSlot()
		} else {
			slot = t.Find(p.Before)
		}
		if slot < 0 {
			return p, fmt.Errorf("market_service: no slot for entry %s of %s: %w", p.Before.Owner.Hex(), rt.record.ID, domain.ErrNotFound)
		}
		if p.Proof, err = t.Proof(slot); err != nil {
			return p, err
		}
	}
	if len(p.PrevPrice.Path) == 0 {
		pp, err := s.Ladder.Proof(v.Status.Shares)
		if err != nil {
			return p, fmt.Errorf("market_service: previous price: %w", err)
		}
		p.PrevPrice = pp
	}
	if len(p.NextPrice.Path) == 0 {
		global, err := lmsr.Add(v.Status.Shares, p.Before.Shares, p.After.Shares)
		if err != nil {
			return p, fmt.Errorf("market_service: next state: %w", err)
		}
		np, err := s.Ladder.Proof(global)
		if err != nil {
			return p, fmt.Errorf("market_service: next price: %w", err)
		}
		p.NextPrice = np
	}
	return p, nil
}

// Prepare completes a proposal and returns what its owner must sign. It
// changes nothing.
func (s *MarketService) Prepare(ctx context.Context, id string, p market.Proposal) (Prepared, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return Prepared{}, err
	}
	v, err := s.current(ctx, id)
	if err != nil {
		return Prepared{}, err
	}
	if p, err = s.complete(ctx, rt, v, p); err != nil {
		return Prepared{}, err
	}
	tr, err := rt.machine.Prepare(v.Status, p)
	if err != nil {
		return Prepared{}, fmt.Errorf("market_service: prepare %s: %w", id, err)
	}
	return Prepared{
		Proposal:    p,
		PrevBlob:    tr.PrevBlob,
		NextBlob:    tr.NextBlob,
		Payment:     tr.Payment,
		SpendDigest: crypto.SpendDigest(s.Hasher, tr.PrevBlob, tr.NextBlob),
	}, nil
}

// Propose applies a trade: an entry insert, or an owner-signed update.
func (s *MarketService) Propose(ctx context.Context, id string, p market.Proposal) (Receipt, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return Receipt{}, err
	}

	var rc Receipt
	err = s.withLock(ctx, id, func() error {
		v, err := s.current(ctx, id)
		if err != nil {
			return err
		}
		if p, err = s.complete(ctx, rt, v, p); err != nil {
			return err
		}
		tr, err := rt.machine.Propose(v.Status, p)
		if err != nil {
			return fmt.Errorf("market_service: propose %s: %w", id, err)
		}
		next, err := s.commit(ctx, rt, v, tr, market.Witness{Proposal: &p})
		if err != nil {
			return err
		}
		rc = receipt(rt, next, tr)
		return nil
	})
	return rc, err
}

// Redeem pays out an entry's winning shares after resolution. A missing
// proof is looked up from the projection.
func (s *MarketService) Redeem(ctx context.Context, id string, r market.RedeemRequest) (Receipt, error) {
	rt, err := s.runtimeFor(ctx, id)
	if err != nil {
		return Receipt{}, err
	}

	var rc Receipt
	err = s.withLock(ctx, id, func() error {
		v, err := s.current(ctx, id)
		if err != nil {
			return err
		}
		if len(r.Proof) == 0 {
			t, err := s.table(ctx, rt, v)
			if err != nil {
				return err
			}
			if r.Proof, err = proofOf(t, r.Entry); err != nil {
				return fmt.Errorf("market_service: redeem %s: %w", id, err)
			}
		}
		tr, _, err := rt.machine.Redeem(v.Status, r)
		if err != nil {
			return fmt.Errorf("market_service: redeem %s: %w", id, err)
		}
		next, err := s.commit(ctx, rt, v, tr, market.Witness{Redeem: &r})
		if err != nil {
			return err
		}
		rc = receipt(rt, next, tr)
		return nil
	})
	return rc, err
}

func proofOf(t *merkle.Table, e domain.LedgerEntry) (merkle.Proof, error) {
	slot := t.Find(e)
	if slot < 0 {
		return nil, fmt.Errorf("entry %s%s not in table: %w", e.Owner.Hex(), e.Shares, domain.ErrNotFound)
	}
	return t.Proof(slot)
}

func receipt(rt *runtime, v domain.StatusVersion, tr market.Transition) Receipt {
	return Receipt{
		Version: v,
		Phase:   rt.machine.Phase(v.Status),
		Slot:    tr.Slot,
		Entry:   tr.Entry,
		Payment: tr.Payment,
	}
}
