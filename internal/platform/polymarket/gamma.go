package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	tagsMu sync.Mutex
	tags   []APITag
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		logger:  logger.With(slog.String("component", "polymarket")),
	}
}

// SetRateLimit caps outgoing requests to rps per second with the given burst.
func (g *GammaClient) SetRateLimit(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// GetTags returns every tag. The list is fetched once per client.
func (g *GammaClient) GetTags(ctx context.Context) ([]APITag, error) {
	g.tagsMu.Lock()
	defer g.tagsMu.Unlock()
	if g.tags != nil {
		return g.tags, nil
	}

	body, err := g.doGet(ctx, "/tags")
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get tags: %w", err)
	}
	var tags []APITag
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode tags: %w", err)
	}
	g.tags = tags
	return tags, nil
}

// TagID resolves a tag label (case-insensitive) to its ID. It returns
// domain.ErrNotFound when no tag carries the label.
func (g *GammaClient) TagID(ctx context.Context, label string) (string, error) {
	tags, err := g.GetTags(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tags {
		if strings.EqualFold(t.Label, label) {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("polymarket/gamma: tag %q: %w", label, domain.ErrNotFound)
}

// EventsQuery are the filters accepted by GET /events.
type EventsQuery struct {
	TagID  string
	Closed bool
	Limit  int
	Offset int
}

// GetEvents returns one page of events.
func (g *GammaClient) GetEvents(ctx context.Context, q EventsQuery) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("closed", strconv.FormatBool(q.Closed))
	if q.TagID != "" {
		params.Set("tag_id", q.TagID)
	}

	body, err := g.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get events: %w", err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}
	return events, nil
}

// ListOpenEvents walks every page of open events under the tag with the
// given label. An empty label lists all open events.
func (g *GammaClient) ListOpenEvents(ctx context.Context, tagLabel string, pageSize int) ([]APIEvent, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	q := EventsQuery{Limit: pageSize}
	if tagLabel != "" {
		id, err := g.TagID(ctx, tagLabel)
		if err != nil {
			return nil, err
		}
		q.TagID = id
	}

	var out []APIEvent
	for {
		page, err := g.GetEvents(ctx, q)
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		g.logger.DebugContext(ctx, "events page fetched",
			slog.String("tag", tagLabel),
			slog.Int("page_size", len(page)),
			slog.Int("total", len(out)),
		)
		if len(page) < pageSize {
			return out, nil
		}
		q.Offset = len(out)
	}
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx HTTP status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
