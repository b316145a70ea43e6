package market

import (
	"fmt"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/oracle"
)

// Finalize resolves the market through the oracle quorum. Only the outcome
// and resolved bytes of the status change.
func (m *StateMachine) Finalize(status domain.MarketStatus, resolver *oracle.Resolver, votes []domain.OracleVote, claimed domain.Outcome) (Transition, oracle.Tally, error) {
	next, tally, err := resolver.TallyAndFinalize(status, votes, claimed)
	if err != nil {
		return Transition{}, tally, fmt.Errorf("market: finalize: %w", err)
	}
	return m.transition(domain.TransitionResolve, status, next), tally, nil
}
