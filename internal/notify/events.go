package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// EventKind names a market lifecycle event. The values double as the
// configurable filter names.
type EventKind string

const (
	EventCreated  EventKind = "market.created"
	EventTraded   EventKind = "market.traded"
	EventRedeemed EventKind = "market.redeemed"
	EventResolved EventKind = "market.resolved"
)

// EventForTransition maps a transition kind to its event.
func EventForTransition(k domain.TransitionKind) EventKind {
	switch k {
	case domain.TransitionTrade:
		return EventTraded
	case domain.TransitionRedeem:
		return EventRedeemed
	case domain.TransitionResolve:
		return EventResolved
	default:
		return EventCreated
	}
}

// MarketEvent is one accepted transition, in the shape senders render.
type MarketEvent struct {
	Kind     EventKind
	MarketID string
	Version  int64
	Details  string
	Shares   domain.Shares
	Outcome  domain.Outcome
	Payment  int64
}

// Format renders ev as a title and a plain-text body.
func (ev MarketEvent) Format() (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "market %s v%d\n", short(ev.MarketID), ev.Version)
	if ev.Details != "" {
		fmt.Fprintf(&b, "%s\n", ev.Details)
	}
	fmt.Fprintf(&b, "state %s", ev.Shares)

	var title string
	switch ev.Kind {
	case EventCreated:
		title = "Market created"
	case EventTraded:
		title = "Trade accepted"
		fmt.Fprintf(&b, "\npayment %d sat", ev.Payment)
	case EventRedeemed:
		title = "Position redeemed"
		fmt.Fprintf(&b, "\npayout %d sat", -ev.Payment)
	case EventResolved:
		title = "Market resolved: " + ev.Outcome.String()
	default:
		title = string(ev.Kind)
	}
	return title, b.String()
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
