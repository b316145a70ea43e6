package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

type recordSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFilter(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{string(EventResolved)}, discardLogger())
	ctx := context.Background()

	require.NoError(t, n.NotifyMarket(ctx, MarketEvent{Kind: EventTraded, MarketID: "abc"}))
	require.Empty(t, s.titles)

	require.NoError(t, n.NotifyMarket(ctx, MarketEvent{Kind: EventResolved, MarketID: "abc", Outcome: domain.OutcomeFor}))
	require.Equal(t, []string{"Market resolved: for"}, s.titles)

	require.NoError(t, n.NotifyAll(ctx, "t", "m"))
	require.Len(t, s.titles, 2)
}

func TestNotifierJoinsFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "any", "t", "m")
	require.ErrorIs(t, err, boom)
	require.Len(t, good.titles, 1)
}

func TestEventFormat(t *testing.T) {
	title, msg := MarketEvent{
		Kind:     EventRedeemed,
		MarketID: "0123456789abcdef",
		Version:  4,
		Shares:   domain.Shares{Liquidity: 1, SharesFor: 2},
		Payment:  -2097152,
	}.Format()
	require.Equal(t, "Position redeemed", title)
	require.Contains(t, msg, "market 0123456789ab v4")
	require.Contains(t, msg, "state (1,2,0)")
	require.Contains(t, msg, "payout 2097152 sat")
}

func TestEventForTransition(t *testing.T) {
	require.Equal(t, EventCreated, EventForTransition(domain.TransitionCreate))
	require.Equal(t, EventTraded, EventForTransition(domain.TransitionTrade))
	require.Equal(t, EventRedeemed, EventForTransition(domain.TransitionRedeem))
	require.Equal(t, EventResolved, EventForTransition(domain.TransitionResolve))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	require.Equal(t, "42", got["chat_id"])
	require.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.ErrorContains(t, err, "unexpected status 400")
}
