package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// DefaultBatchSize is the number of titles sent per embedding request.
const DefaultBatchSize = 100

// CachingEmbedder serves embeddings from an EmbeddingCache and fetches the
// rest from an EmbedClient in batches.
type CachingEmbedder struct {
	client    EmbedClient
	cache     *EmbeddingCache
	batchSize int
	logger    *slog.Logger
}

// NewCachingEmbedder wires client and cache. batchSize <= 0 selects
// DefaultBatchSize.
func NewCachingEmbedder(client EmbedClient, cache *EmbeddingCache, batchSize int, logger *slog.Logger) *CachingEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CachingEmbedder{
		client:    client,
		cache:     cache,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "embedder")),
	}
}

// EmbedBatch implements Embedder. Each distinct title missing from the cache
// is fetched at most once per call. A failed batch leaves its entries nil and
// the remaining batches still run.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, titles []string) ([][]float32, error) {
	out := make([][]float32, len(titles))

	// key -> positions in titles still waiting for a vector
	pending := make(map[string][]int)
	var fetch []string
	for i, t := range titles {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		k := CacheKey(t)
		if _, queued := pending[k]; !queued {
			fetch = append(fetch, t)
		}
		pending[k] = append(pending[k], i)
	}

	if len(fetch) == 0 {
		return out, nil
	}
	e.logger.DebugContext(ctx, "fetching embeddings",
		slog.Int("requested", len(titles)),
		slog.Int("uncached", len(fetch)),
	)

	var errs []error
	for start := 0; start < len(fetch); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		batch := fetch[start:min(start+e.batchSize, len(fetch))]

		vecs, err := e.client.Embed(ctx, batch)
		if err != nil {
			e.logger.WarnContext(ctx, "embedding batch failed",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}

		for j, t := range batch {
			if j >= len(vecs) || len(vecs[j]) == 0 {
				continue
			}
			unit := Normalize(vecs[j])
			e.cache.Put(t, unit)
			for _, pos := range pending[CacheKey(t)] {
				out[pos] = unit
			}
		}
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("oracle: embed: %w: %w", domain.ErrOracleUnavailable, errors.Join(errs...))
	}
	return out, nil
}

// Normalize returns v scaled to unit length. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
