package bayesian

import (
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/substratelabs/bopt/internal/optimization"
)

// ErrSearchExhausted is returned when de-duplication rejects every candidate
// the optimizer can produce within its retry budget. Callers treat it as a
// normal early-termination signal, not a failure.
var ErrSearchExhausted = errors.New("search space exhausted: no novel candidate within retry budget")

// scoreFunc scores a candidate point; higher is better.
type scoreFunc func(x []float64) float64

// AcquisitionOptimizer maximizes a scalar acquisition score over a typed
// domain by multi-start Nelder-Mead refinement. Discrete and categorical
// coordinates are relaxed during refinement and snapped to their nearest
// allowed value before scoring a candidate.
type AcquisitionOptimizer struct {
	domain   optimization.Domain
	dedup    bool
	dedupTol float64
	// maxRetries bounds how many fresh multi-start rounds are attempted when
	// every candidate collides with an excluded point.
	maxRetries int
	logger     *zap.Logger
}

// NewAcquisitionOptimizer creates an optimizer over the given domain. When
// dedup is set, candidates within dedupTol of an excluded point are rejected
// and re-optimization is attempted.
func NewAcquisitionOptimizer(domain optimization.Domain, dedup bool, dedupTol float64, logger *zap.Logger) *AcquisitionOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcquisitionOptimizer{
		domain:     domain,
		dedup:      dedup,
		dedupTol:   dedupTol,
		maxRetries: 3,
		logger:     logger.Named("acqopt"),
	}
}

// Maximize returns the feasible point with the best acquisition score.
// Points within tolerance of any entry in exclude are never returned.
// Among near-equal scores the candidate closest to the incumbent wins, which
// avoids redundant exploration. Returns ErrSearchExhausted when no novel
// candidate can be found.
func (ao *AcquisitionOptimizer) Maximize(rng *rand.Rand, score scoreFunc, incumbent []float64, exclude [][]float64) ([]float64, error) {
	dim := ao.domain.Dim()
	nStarts := 5 + int(5*math.Sqrt(float64(dim)))

	for attempt := 0; attempt <= ao.maxRetries; attempt++ {
		starts := make([][]float64, 0, nStarts+1)
		if incumbent != nil && attempt == 0 {
			starts = append(starts, append([]float64(nil), incumbent...))
		}
		for len(starts) < nStarts {
			starts = append(starts, ao.domain.Sample(rng))
		}

		if best := ao.refineStarts(score, starts, incumbent, exclude); best != nil {
			return best, nil
		}
		ao.logger.Debug("all candidates rejected by de-duplication, retrying",
			zap.Int("attempt", attempt+1),
		)
	}

	// Last resort: pure random search for any novel feasible point.
	if best := ao.randomNovel(rng, score, exclude, 200); best != nil {
		return best, nil
	}
	return nil, ErrSearchExhausted
}

// refineStarts runs a local refinement from each start and returns the best
// admissible candidate, or nil when every candidate is excluded.
func (ao *AcquisitionOptimizer) refineStarts(score scoreFunc, starts [][]float64, incumbent []float64, exclude [][]float64) []float64 {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			pt := append([]float64(nil), x...)
			ao.domain.Clip(pt)
			ao.domain.Snap(pt)
			return -score(pt)
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 100,
		},
	}
	method := &optimize.NelderMead{}

	var best []float64
	bestScore := math.Inf(-1)
	bestIncDist := math.Inf(1)

	consider := func(cand []float64) {
		ao.domain.Clip(cand)
		ao.domain.Snap(cand)
		if ao.excluded(cand, exclude) {
			return
		}
		s := score(cand)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return
		}
		incDist := math.Inf(1)
		if incumbent != nil {
			incDist = floats.Distance(cand, incumbent, 2)
		}
		// Tie-break near-equal scores toward the incumbent.
		tol := 1e-9 * math.Max(1, math.Abs(bestScore))
		switch {
		case s > bestScore+tol:
			best, bestScore, bestIncDist = cand, s, incDist
		case s >= bestScore-tol && incDist < bestIncDist:
			best, bestScore, bestIncDist = cand, s, incDist
		}
	}

	for _, start := range starts {
		result, err := optimize.Minimize(problem, append([]float64(nil), start...), settings, method)
		if err == nil && result != nil {
			consider(append([]float64(nil), result.X...))
		}
		// The start itself is a valid candidate; refinement may have failed
		// or wandered out of bounds.
		consider(append([]float64(nil), start...))
	}
	return best
}

// randomNovel samples the domain for the best-scoring point not excluded.
func (ao *AcquisitionOptimizer) randomNovel(rng *rand.Rand, score scoreFunc, exclude [][]float64, n int) []float64 {
	var best []float64
	bestScore := math.Inf(-1)
	for i := 0; i < n; i++ {
		cand := ao.domain.Sample(rng)
		if ao.excluded(cand, exclude) {
			continue
		}
		if s := score(cand); !math.IsNaN(s) && s > bestScore {
			best, bestScore = cand, s
		}
	}
	return best
}

func (ao *AcquisitionOptimizer) excluded(x []float64, exclude [][]float64) bool {
	if !ao.dedup && len(exclude) == 0 {
		return false
	}
	return optimization.WithinAny(x, ao.dedupTol, exclude)
}
