package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ObservationSet is the append-only evaluation history of a loop. The X and
// Y sequences grow together and never shrink.
type ObservationSet struct {
	xs [][]float64
	ys []float64
}

// NewObservationSet creates an observation set pre-filled with the given
// history. X and Y must have equal length; every x must be a D-vector for
// the supplied domain.
func NewObservationSet(domain Domain, X [][]float64, Y []float64) (*ObservationSet, error) {
	if len(X) != len(Y) {
		return nil, NewDataError("X has %d rows but Y has %d values", len(X), len(Y))
	}
	s := &ObservationSet{
		xs: make([][]float64, 0, len(X)+16),
		ys: make([]float64, 0, len(Y)+16),
	}
	for i, x := range X {
		if err := domain.CheckPoint(x); err != nil {
			return nil, err
		}
		s.Append(x, Y[i])
	}
	return s, nil
}

// Append records one evaluation. The point is copied.
func (s *ObservationSet) Append(x []float64, y float64) {
	s.xs = append(s.xs, append([]float64(nil), x...))
	s.ys = append(s.ys, y)
}

// Len returns the number of observations.
func (s *ObservationSet) Len() int {
	return len(s.xs)
}

// X returns the observed points. The caller must not mutate the rows.
func (s *ObservationSet) X() [][]float64 {
	return s.xs
}

// Y returns the observed values. The caller must not mutate the slice.
func (s *ObservationSet) Y() []float64 {
	return s.ys
}

// At returns the i-th observation.
func (s *ObservationSet) At(i int) Solution {
	return Solution{X: s.xs[i], Y: s.ys[i]}
}

// ContainsWithin reports whether any observed point lies within tol
// (Euclidean) of x.
func (s *ObservationSet) ContainsWithin(x []float64, tol float64) bool {
	for _, xi := range s.xs {
		if floats.Distance(xi, x, 2) <= tol {
			return true
		}
	}
	return false
}

// Best returns the incumbent: the observation with minimal Y. ok is false
// when the set is empty.
func (s *ObservationSet) Best() (best Solution, ok bool) {
	if len(s.ys) == 0 {
		return Solution{}, false
	}
	idx := 0
	for i, y := range s.ys {
		if y < s.ys[idx] {
			idx = i
		}
	}
	return s.At(idx), true
}

// WithinAny reports whether x lies within tol of any point in the given
// sets. Nil slices are skipped.
func WithinAny(x []float64, tol float64, sets ...[][]float64) bool {
	for _, set := range sets {
		for _, p := range set {
			if len(p) != len(x) {
				continue
			}
			if floats.Distance(p, x, 2) <= tol {
				return true
			}
		}
	}
	return false
}

// MinDistance returns the smallest Euclidean distance from x to any point in
// the given sets, or +Inf when the sets are empty.
func MinDistance(x []float64, sets ...[][]float64) float64 {
	min := math.Inf(1)
	for _, set := range sets {
		for _, p := range set {
			if len(p) != len(x) {
				continue
			}
			if d := floats.Distance(p, x, 2); d < min {
				min = d
			}
		}
	}
	return min
}
