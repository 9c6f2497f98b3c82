// Package acquisition provides acquisition functions for Bayesian
// optimization. All variants share one sign convention: Score is maximized,
// higher meaning a more promising point, with the underlying objective being
// minimized.
package acquisition

import "github.com/substratelabs/bopt/internal/optimization"

// sigmaFloor is the threshold below which a predictive standard deviation is
// treated as exactly zero. Improvement-based scores take their degenerate
// limit there instead of dividing by zero.
const sigmaFloor = 1e-10

// Type names a concrete acquisition policy.
type Type string

const (
	// EI is Expected Improvement.
	EI Type = "EI"
	// MPI is Maximum Probability of Improvement.
	MPI Type = "MPI"
	// LCB is the Lower Confidence Bound (maximized as weight*sigma - mu).
	LCB Type = "LCB"
)

// Function scores candidate points from the surrogate posterior at that
// point and the incumbent best value.
type Function interface {
	// Score returns the utility of evaluating a point with posterior mean mu
	// and standard deviation sigma. Higher is better.
	Score(mu, sigma float64) float64

	// UpdateBest informs the function of the current incumbent value.
	// Variants that do not depend on the incumbent ignore it.
	UpdateBest(best float64)
}

// New selects the acquisition variant by type. jitter is the improvement
// margin xi used by EI and MPI; weight is the exploration weight used by
// LCB. Unknown types fail with a ConfigurationError.
func New(t Type, jitter, weight float64) (Function, error) {
	switch t {
	case EI:
		return NewExpectedImprovement(jitter), nil
	case MPI:
		return NewProbabilityOfImprovement(jitter), nil
	case LCB:
		return NewLowerConfidenceBound(weight), nil
	}
	return nil, optimization.NewConfigurationError("unknown acquisition type %q", t)
}
