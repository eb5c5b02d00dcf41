// Package oracle provides the title-similarity oracle used by the matching
// funnel: batched, cached embeddings and a yes/no same-event judge.
package oracle

import "context"

// Embedder returns one unit-length embedding per title, in input order. An
// entry is nil when that title could not be embedded; the error then reports
// why, wrapping domain.ErrOracleUnavailable.
type Embedder interface {
	EmbedBatch(ctx context.Context, titles []string) ([][]float32, error)
}

// Adjudicator decides whether two titles describe the same event.
type Adjudicator interface {
	Adjudicate(ctx context.Context, titleA, titleB string) (bool, error)
}

// EmbedClient is the raw embedding transport.
type EmbedClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Completer is the raw chat transport.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Cosine returns the dot product of a and b, which equals cosine similarity
// for unit vectors. Vectors of different length compare over the shorter.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
