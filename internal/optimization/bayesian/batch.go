package bayesian

import (
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/substratelabs/bopt/internal/optimization"
)

// penalizer suppresses the acquisition surface in a ball around one
// already-selected or pending point. Its radius scales with the model's
// estimated Lipschitz constant and the local posterior uncertainty.
type penalizer struct {
	center []float64
	mu     float64
	sigma  float64
}

// value is the soft exclusion factor in [0, 1]: ~0 inside the ball where the
// center could still hold the optimum, ~1 far away.
func (p *penalizer) value(x []float64, lipschitz, best float64) float64 {
	d := floats.Distance(x, p.center, 2)
	num := lipschitz*d - best + p.mu
	if p.sigma <= 1e-10 {
		if num >= 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(num / (math.Sqrt2 * p.sigma))
}

// BatchSelector extends single-point acquisition optimization into diverse
// multi-point batch selection via local penalization: points are chosen
// greedily, each one multiplying a penalizer into the acquisition surface so
// later picks avoid its neighborhood. Pending points supplied by concurrent
// callers are penalized exactly like just-selected points.
type BatchSelector struct {
	domain optimization.Domain
	acqopt *AcquisitionOptimizer
	logger *zap.Logger
}

// NewBatchSelector creates a local-penalization batch selector on top of the
// given acquisition optimizer.
func NewBatchSelector(domain optimization.Domain, acqopt *AcquisitionOptimizer, logger *zap.Logger) *BatchSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchSelector{domain: domain, acqopt: acqopt, logger: logger.Named("batch")}
}

// Select returns up to k diverse points. exclude lists points that must not
// be returned (observed, pending, ignored); penalize lists points whose
// neighborhoods should additionally be suppressed (the pending set).
// best is the incumbent objective value used to size penalization balls.
//
// When fewer than k novel points exist the returned slice is shorter and the
// error is ErrSearchExhausted; any points already chosen remain valid.
func (bs *BatchSelector) Select(rng *rand.Rand, gp *GP, score scoreFunc, k int, incumbent []float64, best float64, exclude, penalize [][]float64) ([][]float64, error) {
	lipschitz := bs.lipschitzEstimate(rng, gp)
	if lipschitz <= 1e-12 || !gp.Trained() {
		// Flat or uninformative posterior: penalization cannot separate
		// points, so fall back to random feasible fill rather than stalling.
		bs.logger.Debug("degenerate surrogate, falling back to random batch",
			zap.Float64("lipschitz", lipschitz),
		)
		return bs.randomBatch(rng, k, exclude)
	}

	pens := make([]*penalizer, 0, len(penalize)+k)
	for _, p := range penalize {
		pens = append(pens, bs.newPenalizer(gp, p))
	}

	// Penalized surface: the base score is mapped through softplus so it is
	// strictly positive before the multiplicative penalizers apply;
	// otherwise suppressing a negative score would raise it.
	penalized := func(x []float64) float64 {
		s := softplus(score(x))
		for _, p := range pens {
			s *= p.value(x, lipschitz, best)
		}
		return s
	}

	selected := make([][]float64, 0, k)
	excludeAll := append([][]float64(nil), exclude...)
	for len(selected) < k {
		x, err := bs.acqopt.Maximize(rng, penalized, incumbent, excludeAll)
		if err != nil {
			if errors.Is(err, ErrSearchExhausted) {
				return selected, ErrSearchExhausted
			}
			return selected, err
		}
		selected = append(selected, x)
		excludeAll = append(excludeAll, x)
		pens = append(pens, bs.newPenalizer(gp, x))
	}
	return selected, nil
}

func (bs *BatchSelector) newPenalizer(gp *GP, center []float64) *penalizer {
	mu, sigma, err := gp.PredictOne(center)
	if err != nil {
		mu, sigma = 0, 0
	}
	return &penalizer{center: append([]float64(nil), center...), mu: mu, sigma: sigma}
}

// lipschitzEstimate samples the domain and returns the maximum norm of the
// posterior mean gradient, recomputed every time the model is refit.
func (bs *BatchSelector) lipschitzEstimate(rng *rand.Rand, gp *GP) float64 {
	if !gp.Trained() {
		return 0
	}
	scale := bs.domain.Scale()
	h := make([]float64, len(scale))
	for i, s := range scale {
		h[i] = 1e-4 * s
	}

	n := 25 * bs.domain.Dim()
	if n > 250 {
		n = 250
	}
	maxNorm := 0.0
	for i := 0; i < n; i++ {
		x := bs.domain.Sample(rng)
		grad, err := gp.MeanGradient(x, h)
		if err != nil {
			continue
		}
		if norm := floats.Norm(grad, 2); norm > maxNorm {
			maxNorm = norm
		}
	}
	return maxNorm
}

// randomBatch fills up to k slots with random feasible points not colliding
// with excluded ones.
func (bs *BatchSelector) randomBatch(rng *rand.Rand, k int, exclude [][]float64) ([][]float64, error) {
	selected := make([][]float64, 0, k)
	excludeAll := append([][]float64(nil), exclude...)
	flat := func([]float64) float64 { return 0 }
	for len(selected) < k {
		x := bs.acqopt.randomNovel(rng, flat, excludeAll, 200)
		if x == nil {
			return selected, ErrSearchExhausted
		}
		selected = append(selected, x)
		excludeAll = append(excludeAll, x)
	}
	return selected, nil
}

func softplus(x float64) float64 {
	// Guard against overflow for large scores.
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
