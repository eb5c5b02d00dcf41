package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// RetryPolicy controls how the client backs off after throttling and
// transient failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
	MinDelay   time.Duration
	MaxJitter  time.Duration
}

// DefaultRetryPolicy matches Kalshi's documented public rate limits with room
// to spare.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 5,
	BaseDelay:  800 * time.Millisecond,
	Factor:     1.8,
	MinDelay:   500 * time.Millisecond,
	MaxJitter:  300 * time.Millisecond,
}

// delay returns the wait before retry number attempt (zero-based). A valid
// Retry-After header wins over the exponential schedule.
func (p RetryPolicy) delay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil {
			return max(time.Duration(secs*float64(time.Second)), p.MinDelay)
		}
	}
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	return max(time.Duration(d), p.MinDelay)
}

// Client is the REST client for the Kalshi exchange API. Market data
// endpoints are public; requests are signed only when an RSA key is set.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *slog.Logger
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier and may be empty.
func NewClient(baseURL, apiKeyID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		retry:   DefaultRetryPolicy,
		logger:  logger.With(slog.String("component", "kalshi")),
	}
}

// SetRateLimit caps outgoing requests to rps per second with the given burst.
func (c *Client) SetRateLimit(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetRetryPolicy replaces the backoff schedule.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets returns one page of markets.
func (c *Client) GetMarkets(ctx context.Context, q MarketsQuery) (MarketsPage, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.SeriesTicker != "" {
		params.Set("series_ticker", q.SeriesTicker)
	}
	if q.EventTicker != "" {
		params.Set("event_ticker", q.EventTicker)
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var page MarketsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return page, nil
}

// ListOpenMarkets walks every page of open markets, optionally restricted to
// one series, and returns them deduplicated by ticker.
func (c *Client) ListOpenMarkets(ctx context.Context, seriesTicker string, pageSize int) ([]KalshiMarket, error) {
	q := MarketsQuery{Limit: pageSize, Status: "open", SeriesTicker: seriesTicker}
	seen := make(map[string]struct{})
	var out []KalshiMarket

	for {
		page, err := c.GetMarkets(ctx, q)
		if err != nil {
			return out, err
		}
		for _, m := range page.Markets {
			if _, dup := seen[m.Ticker]; dup {
				continue
			}
			seen[m.Ticker] = struct{}{}
			out = append(out, m)
		}
		c.logger.DebugContext(ctx, "markets page fetched",
			slog.Int("page_size", len(page.Markets)),
			slog.Int("total", len(out)),
		)
		if page.Cursor == "" || len(page.Markets) == 0 {
			return out, nil
		}
		q.Cursor = page.Cursor
	}
}

// GetSeries returns every series in a category, optionally filtered by tag.
func (c *Client) GetSeries(ctx context.Context, category, tag string) ([]KalshiSeries, error) {
	params := url.Values{}
	params.Set("limit", "1000")
	if category != "" {
		params.Set("category", category)
	}
	if tag != "" {
		params.Set("tags", tag)
	}

	var out []KalshiSeries
	for {
		body, err := c.doRequest(ctx, http.MethodGet, "/series?"+params.Encode())
		if err != nil {
			return out, fmt.Errorf("kalshi: get series: %w", err)
		}
		var page SeriesPage
		if err := json.Unmarshal(body, &page); err != nil {
			return out, fmt.Errorf("kalshi: decode series: %w", err)
		}
		out = append(out, page.Series...)
		if page.Cursor == "" {
			return out, nil
		}
		params.Set("cursor", page.Cursor)
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// errRetryable marks failures worth another attempt.
var errRetryable = errors.New("retryable")

// doRequest sends a request with rate limiting and retries. Throttling (429),
// server errors and transport errors are retried with backoff; other non-2xx
// responses fail immediately.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryAfter, err := c.doOnce(ctx, method, path)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, errRetryable) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == c.retry.MaxRetries {
			break
		}

		wait := c.retry.delay(attempt, retryAfter)
		if c.retry.MaxJitter > 0 {
			wait += time.Duration(mrand.Int64N(int64(c.retry.MaxJitter)))
		}
		c.logger.WarnContext(ctx, "request failed, backing off",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", c.retry.MaxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.privateKey != nil {
		if err := c.signRequest(req); err != nil {
			return nil, "", fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("http request: %w: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w: %w", errRetryable, err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, resp.Header.Get("Retry-After"), err
	}
	return respBody, "", nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over timestamp + method + path,
// where path is the full URL path without the query string.
func (c *Client) signRequest(req *http.Request) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + req.Method + req.URL.Path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx HTTP status codes to errors. Throttling and
// server errors are marked retryable.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %w: %s (%s)", domain.ErrRateLimited, errRetryable, apiErr.Message, apiErr.Code)
	case statusCode >= 500:
		return fmt.Errorf("kalshi: HTTP %d: %w: %s (%s)", statusCode, errRetryable, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
