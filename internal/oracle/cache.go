package oracle

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Persister loads and stores the embedding cache outside the process.
type Persister interface {
	Load(ctx context.Context) (map[string][]float32, error)
	Save(ctx context.Context, entries map[string][]float32) error
}

// CacheKey is the SHA-1 of the title lowercased with whitespace collapsed,
// so cosmetic differences share one embedding.
func CacheKey(title string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha1.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// EmbeddingCache maps title keys to unit embeddings. It is safe for
// concurrent use.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	version uint64
	saved   uint64
}

// NewEmbeddingCache returns an empty cache.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{entries: make(map[string][]float32)}
}

// Get returns the cached vector for title.
func (c *EmbeddingCache) Get(title string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[CacheKey(title)]
	return v, ok
}

// Put stores the vector for title.
func (c *EmbeddingCache) Put(title string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[CacheKey(title)] = vec
	c.version++
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether entries were added since the last successful Save.
func (c *EmbeddingCache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version != c.saved
}

// Load merges persisted entries into the cache. A failed load leaves the
// cache as it was and is only logged, so missing vectors are re-fetched.
func (c *EmbeddingCache) Load(ctx context.Context, p Persister, logger *slog.Logger) {
	if p == nil {
		return
	}
	entries, err := p.Load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "embedding cache load failed, starting empty",
			slog.String("error", err.Error()),
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entries {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = v
		}
	}
	logger.InfoContext(ctx, "embedding cache loaded", slog.Int("entries", len(c.entries)))
}

// Save writes the whole cache through p when it has changed.
func (c *EmbeddingCache) Save(ctx context.Context, p Persister) error {
	if p == nil {
		return nil
	}

	c.mu.Lock()
	if c.version == c.saved {
		c.mu.Unlock()
		return nil
	}
	version := c.version
	snapshot := make(map[string][]float32, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := p.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("oracle: save embedding cache: %w", err)
	}

	c.mu.Lock()
	c.saved = version
	c.mu.Unlock()
	return nil
}
