package scoring

import (
	"context"
	"math/rand"
	"testing"

	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicClient_EnterpriseScoresHighAndStable(t *testing.T) {
	c := NewHeuristicClient("scoring-v1", rand.New(rand.NewSource(1)))
	company := usecase.NormalizedCompany{CompanyName: "Acme", EmployeeCount: 2000, Revenue: 6_000_000}

	res, err := c.Score(context.Background(), company)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Score, 0.8-0.05)
	assert.Equal(t, "enterprise", res.Persona)
	assert.True(t, res.Mock)
	assert.Equal(t, "scoring-v1", res.ModelVersion)
}

func TestHeuristicClient_UnknownSizeMapsToUnknownPersona(t *testing.T) {
	c := NewHeuristicClient("scoring-v1", rand.New(rand.NewSource(1)))
	company := usecase.NormalizedCompany{CompanyName: "NoSize", EmployeeCount: 0, Revenue: 0}

	res, err := c.Score(context.Background(), company)
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Persona)
}

func TestHeuristicClient_JitterBoundedWithinRange(t *testing.T) {
	c := NewHeuristicClient("scoring-v1", rand.New(rand.NewSource(2)))
	company := usecase.NormalizedCompany{EmployeeCount: 125, Revenue: 500_000}

	var scores []float64
	for i := 0; i < 50; i++ {
		res, err := c.Score(context.Background(), company)
		require.NoError(t, err)
		scores = append(scores, res.Score)
	}

	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	assert.LessOrEqual(t, max-min, 0.11)
}
