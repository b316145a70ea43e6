package oracle

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
)

// Message is what every oracle signs for an outcome: the outcome byte.
func Message(o domain.Outcome) []byte {
	return []byte{o.Byte()}
}

// Tally is the outcome of counting a vote set.
type Tally struct {
	Weight      int     `json:"weight"`
	TotalWeight int     `json:"total_weight"`
	Accepted    []uint8 `json:"accepted"`
	Rejected    []uint8 `json:"rejected"`
}

// Err reports the skipped votes, or nil when every populated slot verified.
func (t Tally) Err() error {
	if len(t.Rejected) == 0 {
		return nil
	}
	return fmt.Errorf("oracle: slots %v: %w", t.Rejected, domain.ErrSignatureInvalid)
}

// Resolver tallies votes for one registry.
type Resolver struct {
	registry *Registry
	verifier SignatureVerifier
}

// NewResolver creates a Resolver.
func NewResolver(registry *Registry, verifier SignatureVerifier) *Resolver {
	return &Resolver{registry: registry, verifier: verifier}
}

// Registry returns the registry the resolver counts against.
func (r *Resolver) Registry() *Registry { return r.registry }

// Tally verifies every populated slot against the claimed outcome. Invalid
// signatures void only their own vote. A slot outside the registry or a
// repeated slot makes the whole vote set malformed.
func (r *Resolver) Tally(votes []domain.OracleVote, claimed domain.Outcome) (Tally, error) {
	t := Tally{TotalWeight: r.registry.TotalWeight()}
	msg := Message(claimed)
	seen := make(map[uint8]bool, len(votes))
	for _, v := range votes {
		if int(v.Slot) >= r.registry.Len() {
			return Tally{}, fmt.Errorf("oracle: vote slot %d outside registry of %d: %w", v.Slot, r.registry.Len(), domain.ErrMalformed)
		}
		if seen[v.Slot] {
			return Tally{}, fmt.Errorf("oracle: vote slot %d repeated: %w", v.Slot, domain.ErrMalformed)
		}
		seen[v.Slot] = true

		key := r.registry.keys[v.Slot]
		if !r.verifier.Verify(key.PublicKey, msg, v.Signature, v.PaddingByteCount) {
			t.Rejected = append(t.Rejected, v.Slot)
			continue
		}
		t.Accepted = append(t.Accepted, v.Slot)
		t.Weight += int(key.Weight)
	}
	return t, nil
}

// TallyAndFinalize resolves status to claimed when the valid votes carry a
// strict majority of the registered weight. It is one-shot: a resolved
// status is rejected with ErrState.
func (r *Resolver) TallyAndFinalize(status domain.MarketStatus, votes []domain.OracleVote, claimed domain.Outcome) (domain.MarketStatus, Tally, error) {
	if status.Resolved {
		return domain.MarketStatus{}, Tally{}, fmt.Errorf("oracle: market already resolved to %s: %w", status.Outcome, domain.ErrState)
	}
	if claimed != domain.OutcomeFor && claimed != domain.OutcomeAgainst {
		return domain.MarketStatus{}, Tally{}, fmt.Errorf("oracle: cannot finalize to %s: %w", claimed, domain.ErrMalformed)
	}
	t, err := r.Tally(votes, claimed)
	if err != nil {
		return domain.MarketStatus{}, Tally{}, err
	}
	if !r.registry.Quorum(t.Weight) {
		quorumErr := fmt.Errorf("oracle: weight %d of %d: %w", t.Weight, t.TotalWeight, domain.ErrQuorumNotMet)
		return domain.MarketStatus{}, t, errors.Join(quorumErr, t.Err())
	}
	next := status
	next.Resolved = true
	next.Outcome = claimed
	return next, t, nil
}

// FinalizeWire decodes the vote wire form and finalizes.
func (r *Resolver) FinalizeWire(status domain.MarketStatus, votesWire []byte, claimed domain.Outcome) (domain.MarketStatus, Tally, error) {
	votes, err := codec.DecodeVotes(votesWire, r.registry.KeyLen(), r.registry.Len())
	if err != nil {
		return domain.MarketStatus{}, Tally{}, err
	}
	return r.TallyAndFinalize(status, votes, claimed)
}
