package scoring

import (
	"context"
	"math/rand"

	"github.com/bishnubista/pipeline-whisperer/internal/observability"
	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
)

// HeuristicClient is the deterministic fallback scorer used when no live
// scoring backend is configured, or when the real client's call fails.
// Applies the same rubric as the LLM system prompt plus a small uniform
// jitter so repeated scoring of identical input stays stable within ±0.05.
type HeuristicClient struct {
	ModelVersion string
	rng          *rand.Rand
}

// NewHeuristicClient builds a HeuristicClient. A nil rng defaults to a
// source owned by this client, seeded with the constant 1.
func NewHeuristicClient(modelVersion string, rng *rand.Rand) *HeuristicClient {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &HeuristicClient{ModelVersion: modelVersion, rng: rng}
}

// Score implements Client.
func (c *HeuristicClient) Score(_ context.Context, company usecase.NormalizedCompany) (Result, error) {
	observability.ScoringRequestsTotal.WithLabelValues("heuristic", "success").Inc()
	// Rubric tiers: HIGH (500+ employees or $10M+ revenue), MEDIUM (100+
	// employees or $1M+ revenue), LOW otherwise.
	base := 0.25
	switch {
	case company.EmployeeCount >= 500 || company.Revenue >= 10_000_000:
		base = 0.9
	case company.EmployeeCount >= 100 || company.Revenue >= 1_000_000:
		base = 0.65
	}

	jitter := (c.rng.Float64()*2 - 1) * 0.05
	score := base + jitter
	if score > 0.95 {
		score = 0.95
	}
	if score < 0.2 {
		score = 0.2
	}

	persona := "smb"
	if company.EmployeeCount >= 500 {
		persona = "enterprise"
	}
	if company.EmployeeCount == 0 {
		persona = "unknown"
	}

	return Result{
		Score:        score,
		Persona:      persona,
		Reasoning:    "heuristic scoring based on company size and revenue",
		ModelVersion: c.ModelVersion,
		Mock:         true,
		Confidence:   0.5,
	}, nil
}
