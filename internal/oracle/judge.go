package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

const judgePrompt = "Decide if these two market titles refer to the same underlying event. " +
	"Answer with a single word: Yes or No.\n\n" +
	"Market A: %s\n" +
	"Market B: %s\n" +
	"Answer:"

// Judge asks a chat model whether two titles describe the same event and
// memoizes verdicts. Failed calls are not memoized.
type Judge struct {
	client Completer
	logger *slog.Logger

	mu       sync.Mutex
	verdicts map[string]bool
}

// NewJudge wires a Judge to client.
func NewJudge(client Completer, logger *slog.Logger) *Judge {
	return &Judge{
		client:   client,
		logger:   logger.With(slog.String("component", "judge")),
		verdicts: make(map[string]bool),
	}
}

// VerdictKey builds an order-independent key for a title pair.
func VerdictKey(a, b string) string {
	parts := []string{CacheKey(a), CacheKey(b)}
	sort.Strings(parts)
	return parts[0] + "|" + parts[1]
}

// Adjudicate implements Adjudicator. Any reply starting with "y" is a yes.
// Transport failures wrap domain.ErrOracleUnavailable.
func (j *Judge) Adjudicate(ctx context.Context, titleA, titleB string) (bool, error) {
	key := VerdictKey(titleA, titleB)

	j.mu.Lock()
	v, ok := j.verdicts[key]
	j.mu.Unlock()
	if ok {
		return v, nil
	}

	reply, err := j.client.Complete(ctx, fmt.Sprintf(judgePrompt, titleA, titleB))
	if err != nil {
		return false, fmt.Errorf("oracle: adjudicate: %w: %w", domain.ErrOracleUnavailable, err)
	}
	verdict := strings.HasPrefix(strings.ToLower(strings.TrimSpace(reply)), "y")

	j.logger.DebugContext(ctx, "adjudicated pair",
		slog.String("a", titleA),
		slog.String("b", titleB),
		slog.Bool("same", verdict),
	)

	j.mu.Lock()
	j.verdicts[key] = verdict
	j.mu.Unlock()
	return verdict, nil
}
