package market

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/merkle"
)

// RedeemRequest claims the payout of one entry after resolution.
type RedeemRequest struct {
	Entry     domain.LedgerEntry `json:"entry"`
	Proof     merkle.Proof       `json:"proof"`
	Signature []byte             `json:"signature"`
}

// Redeem pays the winning shares of an entry and zeroes its shares. The
// entry keeps its owner and liquidity. Aggregate counters are unchanged.
// Redeeming the same entry twice fails because its leaf is gone.
func (m *StateMachine) Redeem(status domain.MarketStatus, r RedeemRequest) (Transition, int64, error) {
	if !status.Resolved {
		return Transition{}, 0, fmt.Errorf("market: redeem: market not resolved: %w", domain.ErrState)
	}
	if r.Entry.IsSentinel() {
		return Transition{}, 0, fmt.Errorf("market: redeem: empty slot: %w", domain.ErrState)
	}

	winning := r.Entry.SharesAgainst
	if status.Outcome == domain.OutcomeFor {
		winning = r.Entry.SharesFor
	}
	after := r.Entry
	after.SharesFor, after.SharesAgainst = 0, 0
	if after == r.Entry {
		return Transition{}, 0, fmt.Errorf("market: redeem: entry holds no shares: %w", domain.ErrState)
	}

	root, paired, err := m.updateRoot(status.BalanceTableRoot, r.Entry, after, r.Proof)
	if err != nil {
		return Transition{}, 0, fmt.Errorf("market: redeem: %w", err)
	}

	next := status
	next.BalanceTableRoot = root
	tr := m.transition(domain.TransitionRedeem, status, next)

	digest := crypto.RedeemDigest(m.h, tr.PrevBlob, codec.EncodeEntry(r.Entry))
	if !m.owners.Verify(r.Entry.Owner, digest, r.Signature) {
		return Transition{}, 0, fmt.Errorf("market: redeem: owner %s: %w", r.Entry.Owner.Hex(), domain.ErrSignatureInvalid)
	}

	payout := int64(winning) * m.engine.PayoutPerShare()
	tr.Payment = -payout
	tr.Entry = after
	tr.Slot = r.Proof.Position()
	tr.Paired = paired
	return tr, payout, nil
}
