package service

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	defaultEventBatch = 100
	maxEventBatch     = 1000
)

// Event is one status event read back from the durable stream.
type Event struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// EventPage holds the events of one market found in a stream window and the
// cursor to continue from. Next advances past events of other markets too.
type EventPage struct {
	Events []Event `json:"events"`
	Next   string  `json:"next"`
}

// Events replays a market's status events from the stream, starting after
// the given cursor ("" or "0" reads from the oldest retained event). limit
// bounds the stream window scanned, not the events returned.
func (s *MarketService) Events(ctx context.Context, id, after string, limit int) (EventPage, error) {
	if _, err := s.runtimeFor(ctx, id); err != nil {
		return EventPage{}, err
	}
	if after == "" {
		after = "0"
	}
	if limit <= 0 {
		limit = defaultEventBatch
	}
	limit = min(limit, maxEventBatch)

	msgs, err := s.Bus.StreamRead(ctx, s.cfg.StatusStream, after, limit)
	if err != nil {
		return EventPage{}, fmt.Errorf("market_service: events %s: %w", id, err)
	}

	page := EventPage{Events: []Event{}, Next: after}
	for _, m := range msgs {
		page.Next = m.ID
		var head struct {
			MarketID string `json:"market_id"`
		}
		if json.Unmarshal(m.Payload, &head) != nil || head.MarketID != id {
			continue
		}
		page.Events = append(page.Events, Event{ID: m.ID, Payload: m.Payload})
	}
	return page, nil
}
