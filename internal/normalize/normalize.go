// Package normalize converts raw exchange payloads into canonical
// domain.MarketRecord maps keyed by title.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/kalshi"
	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/platform/polymarket"
)

// Result is a normalized collection plus the number of records skipped.
type Result struct {
	Records map[string]domain.MarketRecord
	Skipped int
}

// Polymarket normalizes Gamma markets keyed by question.
func Polymarket(raw map[string]polymarket.APIMarket, logger *slog.Logger) Result {
	return normalize(raw, domain.ExchangePolymarket, (*polymarket.APIMarket).ToMarketRecord, logger)
}

// Kalshi normalizes Kalshi markets keyed by title.
func Kalshi(raw map[string]kalshi.KalshiMarket, logger *slog.Logger) Result {
	return normalize(raw, domain.ExchangeKalshi, (*kalshi.KalshiMarket).ToMarketRecord, logger)
}

// Records decodes each raw JSON payload as the exchange's market DTO and
// normalizes it. Payloads that fail to decode count as malformed.
func Records(exchange domain.Exchange, raw map[string]json.RawMessage, logger *slog.Logger) (Result, error) {
	switch exchange {
	case domain.ExchangePolymarket:
		typed, bad := decodeAll[polymarket.APIMarket](raw, exchange, logger)
		res := Polymarket(typed, logger)
		res.Skipped += bad
		return res, nil
	case domain.ExchangeKalshi:
		typed, bad := decodeAll[kalshi.KalshiMarket](raw, exchange, logger)
		res := Kalshi(typed, logger)
		res.Skipped += bad
		return res, nil
	default:
		return Result{}, fmt.Errorf("normalize: unknown exchange %q", exchange)
	}
}

func decodeAll[T any](raw map[string]json.RawMessage, exchange domain.Exchange, logger *slog.Logger) (map[string]T, int) {
	out := make(map[string]T, len(raw))
	bad := 0
	for key, payload := range raw {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			bad++
			logger.Debug("skipping undecodable market",
				slog.String("exchange", string(exchange)),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[key] = v
	}
	return out, bad
}

// normalize converts every record in key order so that a title collision
// resolves the same way on every run. Malformed records are logged and
// skipped; they never fail the batch.
func normalize[T any](raw map[string]T, exchange domain.Exchange, convert func(*T) (domain.MarketRecord, error), logger *slog.Logger) Result {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := Result{Records: make(map[string]domain.MarketRecord, len(raw))}
	for _, k := range keys {
		v := raw[k]
		rec, err := convert(&v)
		if err != nil {
			res.Skipped++
			logger.Debug("skipping malformed market",
				slog.String("exchange", string(exchange)),
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Records[rec.Title] = rec
	}

	if res.Skipped > 0 {
		logger.Info("normalized markets",
			slog.String("exchange", string(exchange)),
			slog.Int("records", len(res.Records)),
			slog.Int("skipped", res.Skipped),
		)
	}
	return res
}
