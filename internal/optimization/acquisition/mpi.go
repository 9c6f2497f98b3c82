package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ProbabilityOfImprovement scores a point by the posterior probability that
// it improves on the incumbent minimum by at least xi.
type ProbabilityOfImprovement struct {
	best float64
	xi   float64
}

// NewProbabilityOfImprovement creates an MPI function with improvement
// margin xi.
func NewProbabilityOfImprovement(xi float64) *ProbabilityOfImprovement {
	return &ProbabilityOfImprovement{best: math.Inf(1), xi: xi}
}

// Score computes Phi((best - mu - xi) / sigma). At sigma == 0 the
// improvement probability is the degenerate limit 0.
func (pi *ProbabilityOfImprovement) Score(mu, sigma float64) float64 {
	if sigma <= sigmaFloor {
		return 0
	}
	z := (pi.best - mu - pi.xi) / sigma
	return distuv.UnitNormal.CDF(z)
}

// UpdateBest records the incumbent minimum.
func (pi *ProbabilityOfImprovement) UpdateBest(best float64) {
	pi.best = best
}
