package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/server/middleware"
	"github.com/alanyoungcy/predictledger/internal/service"
)

// stubMarkets answers every call with err, or canned values when err is nil.
type stubMarkets struct {
	err      error
	proposed market.Proposal
	resolved service.ResolveRequest
	after    string
	limit    int
}

func (s *stubMarkets) CreateMarket(_ context.Context, req service.CreateRequest) (service.MarketView, error) {
	return service.MarketView{Record: domain.MarketRecord{ID: "m1"}, Info: domain.MarketInfo{Details: req.Details}}, s.err
}

func (s *stubMarkets) List(context.Context, domain.ListOpts) ([]domain.MarketRecord, error) {
	return []domain.MarketRecord{{ID: "m1"}}, s.err
}

func (s *stubMarkets) Status(_ context.Context, id string) (service.MarketView, error) {
	return service.MarketView{Record: domain.MarketRecord{ID: id}, Phase: domain.PhaseTrading}, s.err
}

func (s *stubMarkets) History(context.Context, string, domain.ListOpts) ([]domain.StatusVersion, error) {
	return nil, s.err
}

func (s *stubMarkets) Events(_ context.Context, _ string, after string, limit int) (service.EventPage, error) {
	s.after, s.limit = after, limit
	return service.EventPage{Events: []service.Event{{ID: "7-0", Payload: []byte(`{"version":1}`)}}, Next: "7-0"}, s.err
}

func (s *stubMarkets) Entries(context.Context, string) ([]domain.LedgerSlot, error) {
	return nil, s.err
}

func (s *stubMarkets) EntryProof(_ context.Context, _ string, slot int) (service.EntryProof, error) {
	return service.EntryProof{Slot: slot}, s.err
}

func (s *stubMarkets) LadderProof(sh domain.Shares) (lmsr.PriceProof, error) {
	return lmsr.PriceProof{Balance: int64(sh.Liquidity)}, s.err
}

func (s *stubMarkets) LadderRoot() domain.Digest { return domain.Digest{1} }

func (s *stubMarkets) Quote(_ context.Context, _ string, before, after domain.Shares) (lmsr.Quote, error) {
	return lmsr.Quote{Before: before, After: after}, s.err
}

func (s *stubMarkets) Prepare(_ context.Context, _ string, p market.Proposal) (service.Prepared, error) {
	return service.Prepared{Proposal: p}, s.err
}

func (s *stubMarkets) Propose(_ context.Context, _ string, p market.Proposal) (service.Receipt, error) {
	s.proposed = p
	return service.Receipt{Slot: 3}, s.err
}

func (s *stubMarkets) Redeem(context.Context, string, market.RedeemRequest) (service.Receipt, error) {
	return service.Receipt{}, s.err
}

func (s *stubMarkets) Resolve(_ context.Context, _ string, req service.ResolveRequest) (service.Resolution, error) {
	s.resolved = req
	return service.Resolution{}, s.err
}

func (s *stubMarkets) GetResolution(context.Context, string) (domain.Resolution, error) {
	return domain.Resolution{}, s.err
}

type stubLimiter struct{ allow bool }

func (l stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRoutes(t *testing.T, svc handler.MarketService, cfg Config, limiter domain.RateLimiter) http.Handler {
	t.Helper()
	return Routes(cfg, Handlers{
		Health:  handler.NewHealthHandler(nil, discard()),
		Markets: handler.NewMarketHandler(svc, discard()),
		Status: &handler.StatusHandler{
			Mode:       "server",
			Hash:       "sha256",
			LadderRoot: "ab",
			Params:     lmsr.DefaultParams(),
			StartedAt:  time.Now(),
		},
	}, nil, limiter, discard())
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{Auth: middleware.AuthConfig{APIKey: "k"}}, nil)
	rec := do(h, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestAPIKeyAuth(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{Auth: middleware.AuthConfig{APIKey: "k"}}, nil)

	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/markets", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/markets", "", map[string]string{"X-API-Key": "nope"}).Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/markets", "", map[string]string{"Authorization": "Bearer k"}).Code)
}

func TestHMACAuth(t *testing.T) {
	cred := crypto.HMACAuth{Key: "ops", Secret: "s3cret"}
	h := newRoutes(t, &stubMarkets{}, Config{Auth: middleware.AuthConfig{HMAC: []crypto.HMACAuth{cred}}}, nil)

	body := `{"before":{"liquidity":0,"shares_for":0,"shares_against":0},"after":{"liquidity":1,"shares_for":1,"shares_against":0}}`
	path := "/api/markets/m1/quote"
	rec := do(h, http.MethodPost, path, body, cred.Headers(http.MethodPost, path, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stale := cred.HeadersAt(http.MethodPost, path, body, time.Now().Add(-time.Hour).Unix())
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, path, body, stale).Code)

	tampered := cred.Headers(http.MethodPost, path, body)
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, path, body+" ", tampered).Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrDomain, http.StatusBadRequest},
		{domain.ErrMalformed, http.StatusBadRequest},
		{domain.ErrState, http.StatusConflict},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrProofInvalid, http.StatusUnprocessableEntity},
		{domain.ErrSignatureInvalid, http.StatusUnprocessableEntity},
		{domain.ErrQuorumNotMet, http.StatusUnprocessableEntity},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.want)+" "+tc.err.Error(), func(t *testing.T) {
			h := newRoutes(t, &stubMarkets{err: tc.err}, Config{}, nil)
			rec := do(h, http.MethodPost, "/api/markets/m1/propose", `{}`, nil)
			require.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusInternalServerError {
				require.NotContains(t, rec.Body.String(), "db down")
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{}, nil)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/markets/m1/propose", `{"bogus":1}`, nil).Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/markets/m1/propose", `{} {}`, nil).Code)
}

func TestResolveParsesOutcome(t *testing.T) {
	svc := &stubMarkets{}
	h := newRoutes(t, svc, Config{}, nil)

	rec := do(h, http.MethodPost, "/api/markets/m1/resolve", `{"outcome":"against"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.OutcomeAgainst, svc.resolved.Outcome)

	rec = do(h, http.MethodPost, "/api/markets/m1/resolve", `{"outcome":"maybe"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLadderProofQuery(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{}, nil)

	rec := do(h, http.MethodGet, "/api/markets/m1/ladder/proof?l=2&f=1&a=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Shares domain.Shares   `json:"shares"`
		Proof  lmsr.PriceProof `json:"proof"`
		Root   domain.Digest   `json:"root"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, domain.Shares{Liquidity: 2, SharesFor: 1}, body.Shares)
	require.Equal(t, int64(2), body.Proof.Balance)
	require.Equal(t, domain.Digest{1}, body.Root)

	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/markets/m1/ladder/proof?l=300", "", nil).Code)
}

func TestEntryProofSlot(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{}, nil)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/markets/m1/entries/2/proof", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/markets/m1/entries/x/proof", "", nil).Code)
}

func TestEventsFeed(t *testing.T) {
	svc := &stubMarkets{}
	h := newRoutes(t, svc, Config{}, nil)
	rec := do(h, http.MethodGet, "/api/markets/m1/events?after=6-0&limit=20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "6-0", svc.after)
	require.Equal(t, 20, svc.limit)
	require.Contains(t, rec.Body.String(), `"next":"7-0"`)
	require.Contains(t, rec.Body.String(), `"payload":{"version":1}`)

	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/markets/m1/events?limit=x", "", nil).Code)

	svc.err = domain.ErrNotFound
	require.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/markets/m1/events", "", nil).Code)
}

func TestCreateMarketStatus(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{}, nil)
	rec := do(h, http.MethodPost, "/api/markets", `{"details":"rain?"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"details":"rain?"`)
}

func TestRateLimit(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{RateLimit: 1}, stubLimiter{allow: false})
	rec := do(h, http.MethodGet, "/api/markets", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{CORSOrigins: []string{"https://app.example"}}, nil)
	rec := do(h, http.MethodOptions, "/api/markets", "", map[string]string{"Origin": "https://app.example"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)
}

func TestStatusEndpoint(t *testing.T) {
	h := newRoutes(t, &stubMarkets{}, Config{Auth: middleware.AuthConfig{APIKey: "k"}}, nil)
	rec := do(h, http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ab", body["ladder_root"])
	require.EqualValues(t, 63, body["max_shares"])
	require.EqualValues(t, 1<<20, body["sat_scaling"])
}
