// Package scoring implements the lead-scoring adapter: a structured-output
// LLM call with a deterministic heuristic fallback, guarded by a circuit
// breaker and exponential retry.
package scoring

import (
	"context"

	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
)

// Result is the scoring adapter's output.
type Result struct {
	Score        float64
	Persona      string
	Reasoning    string
	ModelVersion string
	Mock         bool
	Confidence   float64
}

// Client scores one normalized company record.
type Client interface {
	Score(ctx context.Context, company usecase.NormalizedCompany) (Result, error)
}
