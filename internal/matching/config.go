package matching

import (
	"fmt"
	"time"
)

// Policy says what happens to a pair when the oracle cannot answer for it.
type Policy string

const (
	PolicyDrop   Policy = "drop"
	PolicyAccept Policy = "accept"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyDrop || p == PolicyAccept
}

// FailurePolicy holds the per-stage oracle failure policies.
type FailurePolicy struct {
	// EmbedFailure applies when either title of a pair has no embedding.
	EmbedFailure Policy
	// AdjudicateFailure applies when the judge call fails.
	AdjudicateFailure Policy
}

// DefaultFailurePolicy drops pairs that cannot be scored and accepts pairs
// the judge could not rule on.
var DefaultFailurePolicy = FailurePolicy{
	EmbedFailure:      PolicyDrop,
	AdjudicateFailure: PolicyAccept,
}

// Config tunes the funnel stages.
type Config struct {
	CloseWindow         time.Duration
	StrikeTolerancePct  float64
	SimilarityThreshold float64
	AutoAcceptScore     float64
	// AllowCrossBounds lets a lower bound on one side match an upper bound on
	// the other when neither side carries the opposite bound.
	AllowCrossBounds bool
	Failure          FailurePolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CloseWindow:         3 * time.Hour,
		StrikeTolerancePct:  0.005,
		SimilarityThreshold: 0.30,
		AutoAcceptScore:     0.65,
		AllowCrossBounds:    true,
		Failure:             DefaultFailurePolicy,
	}
}

// Validate checks the config for out-of-range values.
func (c Config) Validate() error {
	switch {
	case c.CloseWindow < 0:
		return fmt.Errorf("matching: close window must be >= 0, got %s", c.CloseWindow)
	case c.StrikeTolerancePct < 0:
		return fmt.Errorf("matching: strike tolerance must be >= 0, got %v", c.StrikeTolerancePct)
	case c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1:
		return fmt.Errorf("matching: similarity threshold must be in [-1, 1], got %v", c.SimilarityThreshold)
	case c.AutoAcceptScore < -1 || c.AutoAcceptScore > 1:
		return fmt.Errorf("matching: auto accept score must be in [-1, 1], got %v", c.AutoAcceptScore)
	case !c.Failure.EmbedFailure.Valid() || !c.Failure.AdjudicateFailure.Valid():
		return fmt.Errorf("matching: failure policies must be %q or %q", PolicyDrop, PolicyAccept)
	}
	return nil
}
