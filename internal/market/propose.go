package market

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// Proposal is a trade: one participant's entry moving from Before (the
// sentinel on first purchase) to After.
type Proposal struct {
	Before    domain.LedgerEntry `json:"before"`
	After     domain.LedgerEntry `json:"after"`
	Proof     merkle.Proof       `json:"proof"`
	PrevPrice lmsr.PriceProof    `json:"prev_price"`
	NextPrice lmsr.PriceProof    `json:"next_price"`
	// Signature is the owner's spend signature; required unless Before is
	// the sentinel.
	Signature []byte `json:"signature,omitempty"`
}

// Propose validates a trade against the current status and returns the
// next status with the payment the covenant must enforce.
func (m *StateMachine) Propose(status domain.MarketStatus, p Proposal) (Transition, error) {
	return m.propose(status, p, true)
}

// Prepare runs every check of Propose except the owner signature. Clients
// use it to learn the next status blob they have to sign.
func (m *StateMachine) Prepare(status domain.MarketStatus, p Proposal) (Transition, error) {
	return m.propose(status, p, false)
}

func (m *StateMachine) propose(status domain.MarketStatus, p Proposal, checkOwner bool) (Transition, error) {
	if status.Resolved {
		return Transition{}, fmt.Errorf("market: propose: trading closed, resolved %s: %w", status.Outcome, domain.ErrState)
	}
	if p.After.Owner.IsZero() {
		return Transition{}, fmt.Errorf("market: propose: entry has no owner: %w", domain.ErrState)
	}
	insert := p.Before.IsSentinel()
	if !insert && p.Before.Owner != p.After.Owner {
		return Transition{}, fmt.Errorf("market: propose: entry owner %s cannot move to %s: %w", p.Before.Owner.Hex(), p.After.Owner.Hex(), domain.ErrState)
	}
	if merkle.LeafDigest(m.h, p.Before) == merkle.LeafDigest(m.h, p.After) {
		return Transition{}, fmt.Errorf("market: propose: no-op change of %s: %w", p.After.Shares, domain.ErrState)
	}
	// Two equal live leaves in a two-leaf table would look self-paired and
	// the next update would rewrite both. Only Seed may produce that shape.
	if m.depth == 1 && len(p.Proof) == 1 && merkle.LeafDigest(m.h, p.After) == p.Proof[0].Sibling {
		return Transition{}, fmt.Errorf("market: propose: entry %s would duplicate its sibling: %w", p.After.Shares, domain.ErrState)
	}

	global, err := lmsr.Add(status.Shares, p.Before.Shares, p.After.Shares)
	if err != nil {
		return Transition{}, fmt.Errorf("market: propose: %w", err)
	}
	prevQ, err := m.engine.VerifyPrice(m.h, m.ladderRoot, status.Shares, p.PrevPrice)
	if err != nil {
		return Transition{}, fmt.Errorf("market: propose: previous price: %w", err)
	}
	nextQ, err := m.engine.VerifyPrice(m.h, m.ladderRoot, global, p.NextPrice)
	if err != nil {
		return Transition{}, fmt.Errorf("market: propose: next price: %w", err)
	}

	root, paired, err := m.updateRoot(status.BalanceTableRoot, p.Before, p.After, p.Proof)
	if err != nil {
		return Transition{}, fmt.Errorf("market: propose: %w", err)
	}

	next := status
	next.Shares = global
	next.BalanceTableRoot = root
	tr := m.transition(domain.TransitionTrade, status, next)
	tr.PrevBalance = m.engine.SatoshiBalance(prevQ)
	tr.NextBalance = m.engine.SatoshiBalance(nextQ)
	tr.Payment = tr.NextBalance - tr.PrevBalance
	tr.Entry = p.After
	tr.Slot = p.Proof.Position()
	tr.Paired = paired

	if checkOwner && !insert {
		digest := crypto.SpendDigest(m.h, tr.PrevBlob, tr.NextBlob)
		if !m.owners.Verify(p.Before.Owner, digest, p.Signature) {
			return Transition{}, fmt.Errorf("market: propose: owner %s: %w", p.Before.Owner.Hex(), domain.ErrSignatureInvalid)
		}
	}
	return tr, nil
}
