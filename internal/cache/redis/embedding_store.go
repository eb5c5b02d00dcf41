package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// saveChunk bounds the number of fields per HSET.
const saveChunk = 500

// EmbeddingStore persists the embedding cache in one Redis hash, one field
// per title key, each value a little-endian float32 vector. It satisfies
// oracle.Persister so replicas share embeddings.
type EmbeddingStore struct {
	client *Client
	key    string
}

// NewEmbeddingStore returns a store writing to the "embeddings" hash.
func NewEmbeddingStore(c *Client) *EmbeddingStore {
	return &EmbeddingStore{client: c, key: c.Key("embeddings")}
}

// Load reads every stored vector. Fields that do not decode are skipped.
func (s *EmbeddingStore) Load(ctx context.Context) (map[string][]float32, error) {
	raw, err := s.client.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load embeddings: %w", err)
	}
	out := make(map[string][]float32, len(raw))
	for k, v := range raw {
		if vec, ok := decodeVector([]byte(v)); ok {
			out[k] = vec
		}
	}
	return out, nil
}

// Save writes entries into the hash in pipelined chunks. Existing fields not
// in entries are kept.
func (s *EmbeddingStore) Save(ctx context.Context, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.rdb.Pipeline()
	fields := make([]any, 0, 2*saveChunk)
	flush := func() {
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
			fields = fields[:0:0]
		}
	}
	for k, v := range entries {
		fields = append(fields, k, encodeVector(v))
		if len(fields) >= 2*saveChunk {
			flush()
		}
	}
	flush()

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save embeddings: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, true
}
