package handler

import (
	"net/http"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/market"
	"github.com/alanyoungcy/predictledger/internal/service"
)

type quoteRequest struct {
	Before domain.Shares `json:"before"`
	After  domain.Shares `json:"after"`
}

// Quote prices replacing an entry's shares.
// POST /api/markets/{id}/quote
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}
	q, err := h.markets.Quote(r.Context(), pathParam(r, "id"), req.Before, req.After)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Prepare completes a proposal and returns the digest its owner signs.
// POST /api/markets/{id}/prepare
func (h *MarketHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	var p market.Proposal
	if err := decodeJSON(w, r, &p); err != nil {
		writeServiceError(w, r, h.logger, "prepare", err)
		return
	}
	prep, err := h.markets.Prepare(r.Context(), pathParam(r, "id"), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "prepare", err)
		return
	}
	writeJSON(w, http.StatusOK, prep)
}

// Propose applies a trade.
// POST /api/markets/{id}/propose
func (h *MarketHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var p market.Proposal
	if err := decodeJSON(w, r, &p); err != nil {
		writeServiceError(w, r, h.logger, "propose", err)
		return
	}
	rc, err := h.markets.Propose(r.Context(), pathParam(r, "id"), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "propose", err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// Redeem pays out an entry after resolution.
// POST /api/markets/{id}/redeem
func (h *MarketHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req market.RedeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "redeem", err)
		return
	}
	rc, err := h.markets.Redeem(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

type resolveRequest struct {
	Outcome   string              `json:"outcome"`
	Votes     []domain.OracleVote `json:"votes,omitempty"`
	VotesWire []byte              `json:"votes_wire,omitempty"`
}

// Resolve finalizes the market from oracle votes.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "resolve", err)
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve", err)
		return
	}
	res, err := h.markets.Resolve(r.Context(), pathParam(r, "id"), service.ResolveRequest{
		Outcome:   outcome,
		Votes:     req.Votes,
		VotesWire: req.VotesWire,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
