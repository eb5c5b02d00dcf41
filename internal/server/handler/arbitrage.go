package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// HistoryReader lists persisted arbitrage observations.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ScanRecord, error)
}

// StreamReader reads entries from a durable stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// ArbHandler serves arbitrage-related HTTP endpoints.
type ArbHandler struct {
	history HistoryReader
	stream  StreamReader
	name    string
	logger  *slog.Logger
}

// NewArbHandler creates an ArbHandler. Either source may be nil, in which
// case its endpoint answers 501.
func NewArbHandler(history HistoryReader, stream StreamReader, streamName string, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{
		history: history,
		stream:  stream,
		name:    streamName,
		logger:  logHandler(logger, "arbitrage"),
	}
}

type arbRecord struct {
	ID         string               `json:"id"`
	RunID      string               `json:"run_id"`
	DetectedAt time.Time            `json:"detected_at"`
	Pair       domain.ArbitragePair `json:"pair"`
}

type listArbResponse struct {
	Pairs []arbRecord `json:"pairs"`
}

// ListRecent returns the most recently detected arbitrage pairs.
// GET /api/arbitrage/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "scan history not configured")
		return
	}
	recs, err := h.history.ListRecent(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent pairs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list arbitrage pairs")
		return
	}

	out := make([]arbRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, arbRecord{ID: rec.ID, RunID: rec.RunID, DetectedAt: rec.DetectedAt, Pair: rec.Pair})
	}
	writeJSON(w, http.StatusOK, listArbResponse{Pairs: out})
}

type streamEntry struct {
	ID   string               `json:"id"`
	Pair domain.ArbitragePair `json:"pair"`
}

// Stream returns pairs appended to the arbitrage stream after the given id,
// so clients can poll with the last id they saw.
// GET /api/arbitrage/stream?after=0-0&limit=100
func (h *ArbHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusNotImplemented, "signal bus not configured")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0-0"
	}
	msgs, err := h.stream.StreamRead(r.Context(), h.name, after, parseLimit(r, 100, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stream read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read arbitrage stream")
		return
	}

	out := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		var p domain.ArbitragePair
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			h.logger.WarnContext(r.Context(), "skipping bad stream entry", slog.String("id", m.ID))
			continue
		}
		out = append(out, streamEntry{ID: m.ID, Pair: p})
	}
	next := after
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"next":    next,
		"count":   len(out),
	})
}
