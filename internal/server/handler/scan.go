package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// RunLister lists persisted scan runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]domain.ScanSummary, error)
}

// Triggerer requests an immediate scan.
type Triggerer interface {
	Trigger() bool
}

// ScanHandler serves scan run endpoints.
type ScanHandler struct {
	runs    RunLister
	trigger Triggerer
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler. runs and trigger may be nil.
func NewScanHandler(runs RunLister, trigger Triggerer, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{runs: runs, trigger: trigger, logger: logHandler(logger, "scans")}
}

type runResponse struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Polymarket      int       `json:"polymarket"`
	Kalshi          int       `json:"kalshi"`
	AfterCloseTime  int       `json:"after_close_time"`
	AfterStrike     int       `json:"after_strike"`
	AfterSimilarity int       `json:"after_similarity"`
	AfterAdjudicate int       `json:"after_adjudicate"`
	ArbitrageCount  int       `json:"arbitrage_count"`
	BestEdge        float64   `json:"best_edge"`
}

func toRunResponse(s domain.ScanSummary) runResponse {
	return runResponse{
		RunID:           s.RunID,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Polymarket:      s.PolymarketCount,
		Kalshi:          s.KalshiCount,
		AfterCloseTime:  s.AfterCloseTime,
		AfterStrike:     s.AfterStrike,
		AfterSimilarity: s.AfterSimilarity,
		AfterAdjudicate: s.AfterAdjudicate,
		ArbitrageCount:  s.ArbitrageCount,
		BestEdge:        s.BestEdge,
	}
}

// ListRuns returns recent scan runs, newest first.
// GET /api/scans?limit=20
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotImplemented, "scan history not configured")
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list scan runs")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, s := range runs {
		out = append(out, toRunResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

// Trigger enqueues one scan. A request made while another is pending is
// accepted but coalesced.
// POST /api/scans/trigger
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusNotImplemented, "scan trigger not available in this mode")
		return
	}
	queued := h.trigger.Trigger()
	h.logger.InfoContext(r.Context(), "scan trigger requested", slog.Bool("queued", queued))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
