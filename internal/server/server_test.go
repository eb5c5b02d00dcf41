package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/server/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHistory struct {
	recs []domain.ScanRecord
	runs []domain.ScanSummary
	err  error
}

func (f *fakeHistory) ListRecent(_ context.Context, limit int) ([]domain.ScanRecord, error) {
	if len(f.recs) > limit {
		return f.recs[:limit], f.err
	}
	return f.recs, f.err
}

func (f *fakeHistory) ListRuns(context.Context, int) ([]domain.ScanSummary, error) {
	return f.runs, f.err
}

type fakeStream struct {
	msgs   []domain.StreamMessage
	lastID string
}

func (f *fakeStream) StreamRead(_ context.Context, _ string, lastID string, _ int) ([]domain.StreamMessage, error) {
	f.lastID = lastID
	return f.msgs, nil
}

type fakeTrigger struct{ n int }

func (f *fakeTrigger) Trigger() bool {
	f.n++
	return f.n == 1
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestServer(cfg Config, hist *fakeHistory, stream *fakeStream, trig handler.Triggerer, limiter domain.RateLimiter) http.Handler {
	logger := testLogger()
	var sr handler.StreamReader
	if stream != nil {
		sr = stream
	}
	checks := map[string]handler.Check{
		"redis": func(context.Context) error { return nil },
	}
	h := Handlers{
		Health: handler.NewHealthHandler(checks, logger),
		Arb:    handler.NewArbHandler(hist, sr, "arbitrage:stream", logger),
		Scans:  handler.NewScanHandler(hist, trig, logger),
		Status: handler.NewStatusHandler("server", time.Minute, 0.01, nil),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "arbscan_scans_total 1\n")
		}),
	}
	return NewServer(cfg, h, limiter, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestServer(Config{APIKey: "secret"}, &fakeHistory{}, nil, nil, nil)
	rec := do(t, h, "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestAuth(t *testing.T) {
	const secret = "jwt-secret"
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dashboard",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(secret))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dashboard",
	}).SignedString([]byte(secret))

	h := newTestServer(Config{APIKey: "key", JWTSecret: secret}, &fakeHistory{}, nil, nil, nil)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"api key", "key", http.StatusOK},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid jwt", valid, http.StatusOK},
		{"expired jwt", expired, http.StatusUnauthorized},
		{"jwt without exp", noExp, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, "GET", "/api/arbitrage/recent", tt.token); rec.Code != tt.want {
				t.Fatalf("status=%d want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListRecent(t *testing.T) {
	hist := &fakeHistory{recs: []domain.ScanRecord{
		{ID: "a", RunID: "r1", Pair: domain.ArbitragePair{ATitle: "x", Edge: 0.1, Direction: domain.DirectionBuyAYes}},
		{ID: "b", RunID: "r1", Pair: domain.ArbitragePair{ATitle: "y", Edge: 0.05, Direction: domain.DirectionBuyBYes}},
	}}
	h := newTestServer(Config{}, hist, nil, nil, nil)

	rec := do(t, h, "GET", "/api/arbitrage/recent?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Pairs []struct {
			ID   string               `json:"id"`
			Pair domain.ArbitragePair `json:"pair"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Pairs) != 1 || body.Pairs[0].ID != "a" || body.Pairs[0].Pair.ATitle != "x" {
		t.Fatalf("body=%+v", body)
	}
}

func TestListRecent_StoreError(t *testing.T) {
	h := newTestServer(Config{}, &fakeHistory{err: errors.New("db down")}, nil, nil, nil)
	if rec := do(t, h, "GET", "/api/arbitrage/recent", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestStream(t *testing.T) {
	payload, _ := json.Marshal(domain.ArbitragePair{ATitle: "x", Edge: 0.2})
	stream := &fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte("not json")},
		{ID: "2-0", Payload: payload},
	}}
	h := newTestServer(Config{}, &fakeHistory{}, stream, nil, nil)

	rec := do(t, h, "GET", "/api/arbitrage/stream", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if stream.lastID != "0-0" {
		t.Fatalf("lastID=%q want 0-0", stream.lastID)
	}
	var body struct {
		Entries []json.RawMessage `json:"entries"`
		Next    string            `json:"next"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Next != "2-0" {
		t.Fatalf("entries=%d next=%s", len(body.Entries), body.Next)
	}
}

func TestStream_NotConfigured(t *testing.T) {
	h := newTestServer(Config{}, &fakeHistory{}, nil, nil, nil)
	if rec := do(t, h, "GET", "/api/arbitrage/stream", ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestTriggerScan(t *testing.T) {
	trig := &fakeTrigger{}
	h := newTestServer(Config{}, &fakeHistory{}, nil, trig, nil)

	rec := do(t, h, "POST", "/api/scans/trigger", "")
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"queued":true`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, "POST", "/api/scans/trigger", "")
	if !strings.Contains(rec.Body.String(), `"queued":false`) {
		t.Fatalf("second trigger should coalesce: %s", rec.Body.String())
	}
}

func TestRateLimited(t *testing.T) {
	h := newTestServer(Config{RateLimit: 1, RateWindow: time.Minute}, &fakeHistory{}, nil, nil, denyAll{})
	rec := do(t, h, "GET", "/api/scans", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After=%q", rec.Header().Get("Retry-After"))
	}
}

type keyRecorder struct{ keys []string }

func (k *keyRecorder) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	k.keys = append(k.keys, key)
	return true, nil
}

func TestRateLimitKeys(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    string
	}{
		{"forwarded client", "GET", "/api/scans", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "api:read:203.0.113.7"},
		{"real ip header", "GET", "/api/status", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "api:read:198.51.100.4"},
		{"garbage header falls back to peer", "GET", "/api/scans", map[string]string{"X-Forwarded-For": "not-an-ip"}, "api:read:192.0.2.1"},
		{"trigger uses write bucket", "POST", "/api/scans/trigger", nil, "api:write:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := &keyRecorder{}
			h := newTestServer(Config{RateLimit: 10, RateWindow: time.Minute}, &fakeHistory{}, nil, &fakeTrigger{}, limiter)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(limiter.keys) != 1 || limiter.keys[0] != tt.want {
				t.Fatalf("keys=%v want [%s]", limiter.keys, tt.want)
			}
			if rec.Header().Get("X-RateLimit-Limit") != "10" {
				t.Fatalf("X-RateLimit-Limit=%q", rec.Header().Get("X-RateLimit-Limit"))
			}
		})
	}
}

func TestMetricsAndReady(t *testing.T) {
	h := newTestServer(Config{APIKey: "k"}, &fakeHistory{}, nil, nil, nil)
	if rec := do(t, h, "GET", "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "arbscan_scans_total") {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready status=%d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(Config{APIKey: "k", CORSOrigins: []string{"http://localhost:3000"}}, &fakeHistory{}, nil, nil, nil)

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"allowed origin", "http://localhost:3000", "http://localhost:3000"},
		{"case insensitive", "HTTP://LOCALHOST:3000", "HTTP://LOCALHOST:3000"},
		{"unknown origin", "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/scans/trigger", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("status=%d want 204", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow origin=%q want %q", got, tt.wantOrigin)
			}
			if rec.Header().Get("Vary") != "Origin" {
				t.Fatalf("missing Vary: Origin")
			}
		})
	}
}
