package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateRequest) (service.MarketView, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error)
	Status(ctx context.Context, id string) (service.MarketView, error)
	History(ctx context.Context, id string, opts domain.ListOpts) ([]domain.StatusVersion, error)
	Events(ctx context.Context, id, after string, limit int) (service.EventPage, error)
	Entries(ctx context.Context, id string) ([]domain.LedgerSlot, error)
	EntryProof(ctx context.Context, id string, slot int) (service.EntryProof, error)
	LadderProof(shares domain.Shares) (lmsr.PriceProof, error)
	LadderRoot() domain.Digest
	Quote(ctx context.Context, id string, before, after domain.Shares) (lmsr.Quote, error)
	Prepare(ctx context.Context, id string, p market.Proposal) (service.Prepared, error)
	Propose(ctx context.Context, id string, p market.Proposal) (service.Receipt, error)
	Redeem(ctx context.Context, id string, r market.RedeemRequest) (service.Receipt, error)
	Resolve(ctx context.Context, id string, req service.ResolveRequest) (service.Resolution, error)
	GetResolution(ctx context.Context, id string) (domain.Resolution, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.MarketRecord `json:"markets"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// ListMarkets returns registered markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	recs, err := h.markets.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	if recs == nil {
		recs = []domain.MarketRecord{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: recs, Limit: opts.Limit, Offset: opts.Offset})
}

// CreateMarket registers a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	v, err := h.markets.CreateMarket(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetMarket returns the current view of a market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	v, err := h.markets.Status(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// History returns committed status versions, newest first.
// GET /api/markets/{id}/history
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	vs, err := h.markets.History(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": vs})
}

// Events replays the market's status events from the durable stream.
// GET /api/markets/{id}/events?after=0&limit=100
func (h *MarketHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	page, err := h.markets.Events(r.Context(), pathParam(r, "id"), q.Get("after"), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Entries returns the occupied balance-table slots.
// GET /api/markets/{id}/entries
func (h *MarketHandler) Entries(w http.ResponseWriter, r *http.Request) {
	slots, err := h.markets.Entries(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "entries", err)
		return
	}
	if slots == nil {
		slots = []domain.LedgerSlot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": slots})
}

// EntryProof returns one slot with its inclusion proof.
// GET /api/markets/{id}/entries/{slot}/proof
func (h *MarketHandler) EntryProof(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(pathParam(r, "slot"))
	if err != nil || slot < 0 {
		writeError(w, http.StatusBadRequest, "slot must be a non-negative integer")
		return
	}
	p, err := h.markets.EntryProof(r.Context(), pathParam(r, "id"), slot)
	if err != nil {
		writeServiceError(w, r, h.logger, "entry proof", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// LadderProof returns the price proof of a state under the market's ladder.
// GET /api/markets/{id}/ladder/proof?l=1&f=2&a=0
func (h *MarketHandler) LadderProof(w http.ResponseWriter, r *http.Request) {
	if _, err := h.markets.Status(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "ladder proof", err)
		return
	}
	var s domain.Shares
	var err error
	if s.Liquidity, err = queryUint8(r, "l"); err == nil {
		if s.SharesFor, err = queryUint8(r, "f"); err == nil {
			s.SharesAgainst, err = queryUint8(r, "a")
		}
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "ladder proof", err)
		return
	}
	p, err := h.markets.LadderProof(s)
	if err != nil {
		writeServiceError(w, r, h.logger, "ladder proof", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shares": s,
		"root":   h.markets.LadderRoot(),
		"proof":  p,
	})
}

// GetResolution returns the recorded oracle tally.
// GET /api/markets/{id}/resolution
func (h *MarketHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	res, err := h.markets.GetResolution(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "resolution", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
