package bayesian

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/bopt/internal/optimization"
)

func TestMaximizeFindsPeak(t *testing.T) {
	domain := optimization.Domain{optimization.Continuous("x", 0, 1)}
	ao := NewAcquisitionOptimizer(domain, false, 1e-8, nil)
	rng := rand.New(rand.NewSource(7))

	// Smooth unimodal score peaked at 0.3.
	score := func(x []float64) float64 {
		d := x[0] - 0.3
		return -d * d
	}

	x, err := ao.Maximize(rng, score, nil, nil)
	require.NoError(t, err)
	require.Len(t, x, 1)
	assert.InDelta(t, 0.3, x[0], 1e-2)
}

func TestMaximizeRespectsExclusions(t *testing.T) {
	domain := optimization.Domain{optimization.Continuous("x", 0, 1)}
	ao := NewAcquisitionOptimizer(domain, true, 0.05, nil)
	rng := rand.New(rand.NewSource(7))

	score := func(x []float64) float64 {
		d := x[0] - 0.3
		return -d * d
	}
	exclude := [][]float64{{0.3}}

	x, err := ao.Maximize(rng, score, nil, exclude)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(x[0]-0.3), 0.05,
		"returned point must stay outside the exclusion radius")
}

func TestMaximizeSearchExhausted(t *testing.T) {
	domain := optimization.Domain{optimization.Continuous("x", 0, 1)}
	// A tolerance wider than the whole domain excludes every candidate.
	ao := NewAcquisitionOptimizer(domain, true, 2.0, nil)
	rng := rand.New(rand.NewSource(7))

	flat := func([]float64) float64 { return 0 }
	_, err := ao.Maximize(rng, flat, nil, [][]float64{{0.5}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchExhausted)
}

func TestMaximizeSnapsDiscreteCoordinates(t *testing.T) {
	domain := optimization.Domain{
		optimization.Continuous("x", 0, 1),
		optimization.Discrete("k", 1, 2, 4),
	}
	ao := NewAcquisitionOptimizer(domain, false, 1e-8, nil)
	rng := rand.New(rand.NewSource(3))

	score := func(x []float64) float64 { return -x[0] - x[1] }

	x, err := ao.Maximize(rng, score, nil, nil)
	require.NoError(t, err)
	require.NoError(t, domain.CheckPoint(x))
	assert.Contains(t, []float64{1, 2, 4}, x[1])
}
