package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// RateLimit limits each client to limit requests per window through the
// shared limiter, so every replica counts against the same budget. Manual
// scan triggers get their own bucket and do not use up the read budget.
// If the limiter itself fails the request is let through.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(window.Seconds())))
	limitHeader := strconv.Itoa(limit)
	body, _ := json.Marshal(map[string]string{"error": domain.ErrRateLimited.Error()})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateKey(r)
			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				h.Set("Content-Type", "application/json; charset=utf-8")
				h.Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write(body)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateKey buckets a request by client address and by whether it writes.
func rateKey(r *http.Request) string {
	class := "read"
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		class = "write"
	}
	return "api:" + class + ":" + clientIP(r)
}

// clientIP returns the first valid address in X-Forwarded-For, then
// X-Real-IP, then the connection's remote address. Malformed header values
// are ignored so they cannot mint fresh buckets.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap().String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
