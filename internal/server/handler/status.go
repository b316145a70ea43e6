package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/predictledger/internal/lmsr"
)

// StatusHandler serves the deployment parameters clients need to build and
// check transitions offline.
type StatusHandler struct {
	Mode         string
	Hash         string
	LadderRoot   string
	LedgerDepth  int
	OracleKeyLen int
	Params       lmsr.Params
	StartedAt    time.Time
}

// GetStatus responds with the running mode and the market contract.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"hash":           h.Hash,
		"ladder_root":    h.LadderRoot,
		"ledger_depth":   h.LedgerDepth,
		"oracle_key_len": h.OracleKeyLen,
		"scaling_factor": h.Params.ScalingFactor,
		"sat_scaling":    h.Params.SatScaling,
		"max_liquidity":  h.Params.MaxLiquidity,
		"max_shares":     h.Params.MaxShares,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
