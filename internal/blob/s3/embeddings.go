package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// DefaultEmbeddingsPath is the object the embedding cache is kept in.
const DefaultEmbeddingsPath = "cache/embeddings.json"

// EmbeddingStore keeps the embedding cache as one JSON object. It satisfies
// oracle.Persister. S3 replaces objects atomically, so readers never see a
// partial cache.
type EmbeddingStore struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	path   string
}

// NewEmbeddingStore creates a store at path, or DefaultEmbeddingsPath when
// path is empty.
func NewEmbeddingStore(writer domain.BlobWriter, reader domain.BlobReader, path string) *EmbeddingStore {
	if path == "" {
		path = DefaultEmbeddingsPath
	}
	return &EmbeddingStore{writer: writer, reader: reader, path: path}
}

// Load reads the cache object. A missing object is an empty cache.
func (s *EmbeddingStore) Load(ctx context.Context) (map[string][]float32, error) {
	body, err := s.reader.Get(ctx, s.path)
	if errors.Is(err, domain.ErrNotFound) {
		return map[string][]float32{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	entries := make(map[string][]float32)
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("s3blob: decode %s: %w", s.path, err)
	}
	return entries, nil
}

// Save replaces the cache object with entries.
func (s *EmbeddingStore) Save(ctx context.Context, entries map[string][]float32) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("s3blob: encode embeddings: %w", err)
	}
	return s.writer.Put(ctx, s.path, bytes.NewReader(data), "application/json")
}
