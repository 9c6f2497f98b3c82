package bayesian

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/substratelabs/bopt/internal/objectives"
	"github.com/substratelabs/bopt/internal/optimization"
	"github.com/substratelabs/bopt/internal/optimization/acquisition"
)

func unitDomain() optimization.Domain {
	return optimization.Domain{optimization.Continuous("x", 0, 1)}
}

func quadratic(x []float64) (float64, error) {
	d := x[0] - 0.3
	return d * d, nil
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "empty domain",
			cfg:  Config{Objective: quadratic},
		},
		{
			name: "neither objective nor observations",
			cfg:  Config{Domain: unitDomain()},
		},
		{
			name: "unknown model type",
			cfg: Config{
				Domain:    unitDomain(),
				Objective: quadratic,
				ModelType: "random_forest",
			},
		},
		{
			name: "sequential evaluator with batch size",
			cfg: Config{
				Domain:        unitDomain(),
				Objective:     quadratic,
				EvaluatorType: EvaluatorSequential,
				BatchSize:     4,
			},
		},
		{
			name: "unknown evaluator type",
			cfg: Config{
				Domain:        unitDomain(),
				Objective:     quadratic,
				EvaluatorType: "thompson",
			},
		},
		{
			name: "unknown acquisition type",
			cfg: Config{
				Domain:          unitDomain(),
				Objective:       quadratic,
				AcquisitionType: acquisition.Type("GP_UCB"),
			},
		},
		{
			name: "negative acquisition jitter",
			cfg: Config{
				Domain:            unitDomain(),
				Objective:         quadratic,
				AcquisitionJitter: -0.01,
			},
		},
		{
			name: "negative acquisition weight",
			cfg: Config{
				Domain:            unitDomain(),
				Objective:         quadratic,
				AcquisitionType:   acquisition.LCB,
				AcquisitionWeight: -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			var cfgErr *optimization.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewRejectsMismatchedHistory(t *testing.T) {
	_, err := New(Config{
		Domain: unitDomain(),
		X:      [][]float64{{0.5}},
		Y:      []float64{1, 2},
	})
	require.Error(t, err)
	var dataErr *optimization.DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestRunOptimizationZeroIterations(t *testing.T) {
	loop, err := New(Config{
		Domain:     unitDomain(),
		Objective:  quadratic,
		X:          [][]float64{{0.0}, {1.0}},
		Y:          []float64{0.09, 0.49},
		RandomSeed: 1,
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{MaxIter: 0}))
	assert.Equal(t, 2, loop.Observations(), "zero rounds must not evaluate anything")
	assert.Equal(t, optimization.StopMaxIterations, loop.StopReason())
}

func TestRunOptimizationRequiresObjective(t *testing.T) {
	loop, err := New(Config{
		Domain: unitDomain(),
		X:      [][]float64{{0.5}},
		Y:      []float64{0.04},
	})
	require.NoError(t, err)

	err = loop.RunOptimization(context.Background(), RunParams{MaxIter: 5})
	require.Error(t, err)
	var cfgErr *optimization.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRunOptimizationInitialDesign(t *testing.T) {
	loop, err := New(Config{
		Domain:               unitDomain(),
		Objective:            quadratic,
		InitialDesignNumdata: 7,
		RandomSeed:           42,
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{MaxIter: 0}))
	assert.Equal(t, 7, loop.Observations())

	for _, ev := range loop.History() {
		assert.Equal(t, 0, ev.Round, "initial design belongs to round zero")
	}
}

func TestRunOptimizationForrester(t *testing.T) {
	objective, domain, err := objectives.ByName("forrester")
	require.NoError(t, err)

	loop, err := New(Config{
		Domain:          domain,
		Objective:       objective,
		X:               [][]float64{{0.0}, {0.5}, {1.0}},
		Y:               evalAll(t, objective, [][]float64{{0.0}, {0.5}, {1.0}}),
		AcquisitionType: acquisition.EI,
		NormalizeY:      true,
		ExactFeval:      true,
		DeDuplication:   true,
		RandomSeed:      1234,
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{MaxIter: 10}))

	assert.Equal(t, 13, loop.Observations(), "3 seeds plus 10 single-point rounds")
	assert.Equal(t, optimization.StopMaxIterations, loop.StopReason())

	best := loop.BestX()
	require.Len(t, best, 1)
	assert.GreaterOrEqual(t, best[0], 0.6, "global minimum sits near 0.757")
	assert.LessOrEqual(t, best[0], 0.9)
	assert.Less(t, loop.BestY(), 0.0)
}

func evalAll(t *testing.T, f optimization.ObjectiveFunc, X [][]float64) []float64 {
	t.Helper()
	ys := make([]float64, len(X))
	for i, x := range X {
		y, err := f(x)
		require.NoError(t, err)
		ys[i] = y
	}
	return ys
}

func TestRunOptimizationBatchRounds(t *testing.T) {
	tol := 1e-3
	loop, err := New(Config{
		Domain:                 unitDomain(),
		Objective:              quadratic,
		X:                      [][]float64{{0.0}, {0.5}, {1.0}},
		Y:                      []float64{0.09, 0.04, 0.49},
		BatchSize:              4,
		NumCores:               2,
		DeDuplication:          true,
		DeDuplicationTolerance: tol,
		RandomSeed:             99,
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{MaxIter: 10}))
	assert.Equal(t, 43, loop.Observations(), "3 seeds plus 10 rounds of 4")

	// Rounds are atomic: every round contributes its full batch, and the
	// points within one round keep their de-duplication separation.
	byRound := map[int][][]float64{}
	for _, ev := range loop.History() {
		byRound[ev.Round] = append(byRound[ev.Round], ev.Solution.X)
	}
	for round := 1; round <= 10; round++ {
		points := byRound[round]
		require.Len(t, points, 4, "round %d", round)
		for i := range points {
			for j := i + 1; j < len(points); j++ {
				assert.Greater(t, floats.Distance(points[i], points[j], 2), tol)
			}
		}
	}
}

func TestRunOptimizationMaxTime(t *testing.T) {
	slow := func(x []float64) (float64, error) {
		time.Sleep(20 * time.Millisecond)
		return x[0], nil
	}
	loop, err := New(Config{
		Domain:     unitDomain(),
		Objective:  slow,
		X:          [][]float64{{0.2}, {0.8}},
		Y:          []float64{0.2, 0.8},
		RandomSeed: 3,
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{
		MaxIter: 1000,
		MaxTime: 10 * time.Millisecond,
	}))
	assert.Equal(t, optimization.StopMaxTime, loop.StopReason())
	assert.Less(t, loop.Stopping().Rounds, 1000)
}

func TestRunOptimizationEps(t *testing.T) {
	loop, err := New(Config{
		Domain:     unitDomain(),
		Objective:  quadratic,
		X:          [][]float64{{0.0}, {0.5}, {1.0}},
		Y:          []float64{0.09, 0.04, 0.49},
		RandomSeed: 5,
	})
	require.NoError(t, err)

	// A domain-sized Eps converges as soon as two consecutive points land.
	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{
		MaxIter: 100,
		Eps:     1.5,
	}))
	assert.Equal(t, optimization.StopConverged, loop.StopReason())
	assert.Equal(t, 1, loop.Stopping().Rounds)
}

func TestRunOptimizationSearchExhausted(t *testing.T) {
	loop, err := New(Config{
		Domain:                 unitDomain(),
		Objective:              quadratic,
		X:                      [][]float64{{0.5}},
		Y:                      []float64{0.04},
		DeDuplication:          true,
		DeDuplicationTolerance: 2.0,
		RandomSeed:             8,
	})
	require.NoError(t, err)

	// Every candidate sits within tolerance of the single observation, so the
	// loop stops early without an error.
	require.NoError(t, loop.RunOptimization(context.Background(), RunParams{MaxIter: 10}))
	assert.Equal(t, optimization.StopSearchExhausted, loop.StopReason())
	assert.Equal(t, 1, loop.Observations())
}

func TestRunOptimizationCancelled(t *testing.T) {
	loop, err := New(Config{
		Domain:     unitDomain(),
		Objective:  quadratic,
		X:          [][]float64{{0.5}},
		Y:          []float64{0.04},
		RandomSeed: 2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = loop.RunOptimization(ctx, RunParams{MaxIter: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, optimization.StopCancelled, loop.StopReason())
}

func TestSuggestNextLocationsDeterministic(t *testing.T) {
	newLoop := func() *Loop {
		loop, err := New(Config{
			Domain:     unitDomain(),
			X:          [][]float64{{0.0}, {0.5}, {1.0}},
			Y:          []float64{0.09, 0.04, 0.49},
			RandomSeed: 77,
		})
		require.NoError(t, err)
		return loop
	}

	loop := newLoop()
	first, err := loop.SuggestNextLocations(context.Background(), nil, nil)
	require.NoError(t, err)
	second, err := loop.SuggestNextLocations(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated calls replay the same stream")

	other, err := newLoop().SuggestNextLocations(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, other, "a fresh loop with the same seed agrees")
}

func TestSuggestNextLocationsExcludesKnownPoints(t *testing.T) {
	tol := 1e-3
	loop, err := New(Config{
		Domain:                 unitDomain(),
		X:                      [][]float64{{0.0}, {0.5}, {1.0}},
		Y:                      []float64{0.09, 0.04, 0.49},
		DeDuplication:          true,
		DeDuplicationTolerance: tol,
		RandomSeed:             13,
	})
	require.NoError(t, err)

	pending := [][]float64{{0.25}}
	ignored := [][]float64{{0.75}}
	points, err := loop.SuggestNextLocations(context.Background(), pending, ignored)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	known := [][]float64{{0.0}, {0.5}, {1.0}, {0.25}, {0.75}}
	for _, p := range points {
		for _, k := range known {
			assert.Greater(t, floats.Distance(p, k, 2), tol,
				"suggestion %v collides with %v", p, k)
		}
	}
	assert.Equal(t, 3, loop.Observations(), "suggesting must not record observations")
}

func TestSuggestNextLocationsValidatesInputs(t *testing.T) {
	loop, err := New(Config{
		Domain: unitDomain(),
		X:      [][]float64{{0.5}},
		Y:      []float64{0.04},
	})
	require.NoError(t, err)

	var dataErr *optimization.DataError
	_, err = loop.SuggestNextLocations(context.Background(), [][]float64{{2.0}}, nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &dataErr)

	_, err = loop.SuggestNextLocations(context.Background(), nil, [][]float64{{0.1, 0.2}})
	require.Error(t, err)
	assert.ErrorAs(t, err, &dataErr)
}

func TestSuggestNextLocationsWithoutObservations(t *testing.T) {
	loop, err := New(Config{
		Domain:    unitDomain(),
		Objective: quadratic,
	})
	require.NoError(t, err)

	_, err = loop.SuggestNextLocations(context.Background(), nil, nil)
	require.Error(t, err)
	var cfgErr *optimization.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOpenLoopUpdate(t *testing.T) {
	loop, err := New(Config{
		Domain:     unitDomain(),
		X:          [][]float64{{0.0}, {1.0}},
		Y:          []float64{1.0, 2.0},
		RandomSeed: 6,
	})
	require.NoError(t, err)

	points, err := loop.SuggestNextLocations(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, points)

	require.NoError(t, loop.Update(points[0], 0.5))
	assert.Equal(t, 3, loop.Observations())
	assert.Equal(t, 0.5, loop.BestY())
	assert.Equal(t, points[0], loop.BestX())

	var dataErr *optimization.DataError
	err = loop.Update([]float64{5.0}, 1.0)
	require.Error(t, err)
	assert.ErrorAs(t, err, &dataErr)
}

func TestBestBeforeObservations(t *testing.T) {
	loop, err := New(Config{
		Domain:    unitDomain(),
		Objective: quadratic,
	})
	require.NoError(t, err)

	assert.Nil(t, loop.BestX())
	assert.True(t, math.IsInf(loop.BestY(), 1))
	assert.Equal(t, optimization.StopNone, loop.StopReason())
}
