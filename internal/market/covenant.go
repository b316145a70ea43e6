package market

import (
	"bytes"
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/oracle"
)

// Witness is everything a covenant needs, besides the two commitments, to
// authorize a transition.
type Witness struct {
	Kind     domain.TransitionKind `json:"kind"`
	Proposal *Proposal             `json:"proposal,omitempty"`
	Redeem   *RedeemRequest        `json:"redeem,omitempty"`
	Votes    []domain.OracleVote   `json:"votes,omitempty"`
	Outcome  domain.Outcome        `json:"outcome,omitempty"`
	Payment  int64                 `json:"payment"`
}

// CovenantVerifier independently authorizes a move from one committed
// status blob to the next.
type CovenantVerifier interface {
	Verify(prevBlob, nextBlob []byte, w Witness) error
}

// ReplayVerifier authorizes a transition by decoding the previous blob and
// replaying the witness through a StateMachine, requiring the result to
// match nextBlob byte for byte.
type ReplayVerifier struct {
	machine  *StateMachine
	resolver *oracle.Resolver
}

var _ CovenantVerifier = (*ReplayVerifier)(nil)

// NewReplayVerifier creates a verifier for one market. resolver may be nil
// for markets that are never finalized through it.
func NewReplayVerifier(machine *StateMachine, resolver *oracle.Resolver) *ReplayVerifier {
	return &ReplayVerifier{machine: machine, resolver: resolver}
}

// Verify implements CovenantVerifier.
func (v *ReplayVerifier) Verify(prevBlob, nextBlob []byte, w Witness) error {
	prev, err := codec.DecodeStatus(prevBlob)
	if err != nil {
		return fmt.Errorf("covenant: previous commitment: %w", err)
	}

	var tr Transition
	switch w.Kind {
	case domain.TransitionTrade:
		if w.Proposal == nil {
			return fmt.Errorf("covenant: trade without proposal: %w", domain.ErrMalformed)
		}
		tr, err = v.machine.Propose(prev, *w.Proposal)
	case domain.TransitionRedeem:
		if w.Redeem == nil {
			return fmt.Errorf("covenant: redeem without request: %w", domain.ErrMalformed)
		}
		tr, _, err = v.machine.Redeem(prev, *w.Redeem)
	case domain.TransitionResolve:
		if v.resolver == nil {
			return fmt.Errorf("covenant: no oracle registry: %w", domain.ErrState)
		}
		tr, _, err = v.machine.Finalize(prev, v.resolver, w.Votes, w.Outcome)
	default:
		return fmt.Errorf("covenant: transition kind %q: %w", w.Kind, domain.ErrMalformed)
	}
	if err != nil {
		return fmt.Errorf("covenant: %w", err)
	}

	if !bytes.Equal(tr.NextBlob, nextBlob) {
		return fmt.Errorf("covenant: next commitment differs from replay: %w", domain.ErrProofInvalid)
	}
	if tr.Payment != w.Payment {
		return fmt.Errorf("covenant: payment %d, replay requires %d: %w", w.Payment, tr.Payment, domain.ErrProofInvalid)
	}
	return nil
}
