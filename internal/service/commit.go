package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictledger/internal/codec"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/notify"
)

// commit authorizes tr through the covenant verifier and appends it as the
// next version after cur. Nothing is written unless the verifier agrees.
func (s *MarketService) commit(ctx context.Context, rt *runtime, cur domain.StatusVersion, tr market.Transition, w market.Witness) (domain.StatusVersion, error) {
	id := rt.record.ID
	w.Kind = tr.Kind
	w.Payment = tr.Payment
	if err := rt.verifier.Verify(cur.Blob, tr.NextBlob, w); err != nil {
		return domain.StatusVersion{}, fmt.Errorf("market_service: %s %s rejected: %w", tr.Kind, id, err)
	}

	next := domain.StatusVersion{
		MarketID:     id,
		Version:      cur.Version + 1,
		Status:       tr.Next,
		Blob:         tr.NextBlob,
		Kind:         tr.Kind,
		Payment:      tr.Payment,
		TransitionID: uuid.NewString(),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.Statuses.Append(ctx, next, s.slotsFor(id, tr, next)); err != nil {
		return domain.StatusVersion{}, fmt.Errorf("market_service: append %s v%d: %w", id, next.Version, err)
	}

	s.announce(ctx, rt, next, map[string]any{
		"slot":  tr.Slot,
		"entry": tr.Entry.Owner.Hex(),
	})
	return next, nil
}

// slotsFor returns the projection rows a transition changes. A self-paired
// table holds the entry in both slots.
func (s *MarketService) slotsFor(id string, tr market.Transition, v domain.StatusVersion) []domain.LedgerSlot {
	if tr.Kind == domain.TransitionResolve {
		return nil
	}
	row := domain.LedgerSlot{MarketID: id, Slot: tr.Slot, Entry: tr.Entry, UpdatedAt: v.CreatedAt}
	if !tr.Paired {
		return []domain.LedgerSlot{row}
	}
	other := row
	other.Slot = tr.Slot ^ 1
	return []domain.LedgerSlot{row, other}
}

// announce fans a committed version out to the cache, the bus, the audit log
// and the notifier. Failures are logged; the commit already happened.
func (s *MarketService) announce(ctx context.Context, rt *runtime, v domain.StatusVersion, extra map[string]any) {
	log := s.logger.With(
		slog.String("market_id", v.MarketID),
		slog.Int64("version", v.Version),
		slog.String("kind", string(v.Kind)),
	)

	if err := s.Cache.Set(ctx, v); err != nil {
		log.WarnContext(ctx, "market_service: cache set failed", slog.String("error", err.Error()))
	}

	payload, err := json.Marshal(StatusEvent{
		MarketID: v.MarketID,
		Version:  v.Version,
		Kind:     v.Kind,
		Phase:    rt.machine.Phase(v.Status),
		Status:   v.Status,
		Blob:     v.Blob,
		Payment:  v.Payment,
	})
	if err == nil {
		if err := s.Bus.Announce(ctx, Channel(v.MarketID), s.cfg.StatusStream, payload); err != nil {
			log.WarnContext(ctx, "market_service: announce failed", slog.String("error", err.Error()))
		}
	}

	detail := map[string]any{
		"market_id":     v.MarketID,
		"version":       v.Version,
		"payment":       v.Payment,
		"transition_id": v.TransitionID,
		"shares":        v.Status.Shares.String(),
	}
	for k, val := range extra {
		detail[k] = val
	}
	if err := s.Audit.Log(ctx, "market."+string(v.Kind), detail); err != nil {
		log.WarnContext(ctx, "market_service: audit log failed", slog.String("error", err.Error()))
	}

	if s.Notifier != nil {
		info, _ := codec.DecodeMetadata(v.Status.Metadata)
		ev := notify.MarketEvent{
			Kind:     notify.EventForTransition(v.Kind),
			MarketID: v.MarketID,
			Version:  v.Version,
			Details:  info.Details,
			Shares:   v.Status.Shares,
			Outcome:  v.Status.Outcome,
			Payment:  v.Payment,
		}
		if err := s.Notifier.NotifyMarket(ctx, ev); err != nil {
			log.WarnContext(ctx, "market_service: notify failed", slog.String("error", err.Error()))
		}
	}

	log.InfoContext(ctx, "market_service: status committed",
		slog.Int64("payment", v.Payment),
		slog.String("shares", v.Status.Shares.String()),
	)
}
