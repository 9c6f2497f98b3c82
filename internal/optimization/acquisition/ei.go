package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ExpectedImprovement scores a point by the expected amount it improves on
// the incumbent minimum.
type ExpectedImprovement struct {
	best float64
	xi   float64
}

// NewExpectedImprovement creates an EI function with improvement margin xi.
// The incumbent starts at +Inf, so every finite prediction counts as an
// improvement until UpdateBest is called.
func NewExpectedImprovement(xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{best: math.Inf(1), xi: xi}
}

// Score computes EI = improvement*Phi(z) + sigma*phi(z) with
// improvement = best - mu - xi and z = improvement/sigma. At sigma == 0 the
// point is already fully explored and the score is the degenerate limit 0.
func (ei *ExpectedImprovement) Score(mu, sigma float64) float64 {
	if sigma <= sigmaFloor {
		return 0
	}
	improvement := ei.best - mu - ei.xi
	z := improvement / sigma
	n := distuv.UnitNormal
	return improvement*n.CDF(z) + sigma*n.Prob(z)
}

// UpdateBest records the incumbent minimum.
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.best = best
}

// Best returns the incumbent value currently in use.
func (ei *ExpectedImprovement) Best() float64 {
	return ei.best
}
