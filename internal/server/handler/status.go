package handler

import (
	"net/http"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// LatestSummary returns the summary of the last successful scan, if any.
type LatestSummary func() (domain.ScanSummary, bool)

// StatusHandler serves the process status.
type StatusHandler struct {
	Mode         string
	ScanInterval time.Duration
	MinEdge      float64
	latest       LatestSummary
}

// NewStatusHandler creates a StatusHandler. latest may be nil.
func NewStatusHandler(mode string, scanInterval time.Duration, minEdge float64, latest LatestSummary) *StatusHandler {
	return &StatusHandler{Mode: mode, ScanInterval: scanInterval, MinEdge: minEdge, latest: latest}
}

// GetStatus responds with the mode, scan cadence and the last run.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":          h.Mode,
		"scan_interval": h.ScanInterval.String(),
		"min_edge":      h.MinEdge,
	}
	if h.latest != nil {
		if s, ok := h.latest(); ok {
			body["last_run"] = toRunResponse(s)
		}
	}
	writeJSON(w, http.StatusOK, body)
}
