package acquisition

// LowerConfidenceBound scores a point by the negated lower confidence bound
// of the posterior, weight*sigma - mu, so that maximizing the score
// minimizes the optimistic estimate of the objective.
type LowerConfidenceBound struct {
	weight float64
}

// NewLowerConfidenceBound creates an LCB function with the given exploration
// weight.
func NewLowerConfidenceBound(weight float64) *LowerConfidenceBound {
	return &LowerConfidenceBound{weight: weight}
}

// Score returns weight*sigma - mu.
func (l *LowerConfidenceBound) Score(mu, sigma float64) float64 {
	return l.weight*sigma - mu
}

// UpdateBest is a no-op; LCB does not depend on the incumbent.
func (l *LowerConfidenceBound) UpdateBest(float64) {}
