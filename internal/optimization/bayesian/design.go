package bayesian

import (
	"math/rand"

	"github.com/substratelabs/bopt/internal/optimization"
)

// latinHypercube generates n space-filling points over the domain's
// continuous relaxation: each dimension is stratified into n bins with one
// sample per bin, then shuffled across points. Discrete and categorical
// coordinates are snapped to their nearest allowed value afterwards.
func latinHypercube(domain optimization.Domain, n int, rng *rand.Rand) [][]float64 {
	if n <= 0 {
		return nil
	}
	dim := domain.Dim()
	lo, hi := domain.Bounds()

	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, dim)
	}

	samples := make([]float64, n)
	for d := 0; d < dim; d++ {
		for j := 0; j < n; j++ {
			samples[j] = (float64(j) + rng.Float64()) / float64(n)
		}
		rng.Shuffle(n, func(a, b int) {
			samples[a], samples[b] = samples[b], samples[a]
		})
		for j := 0; j < n; j++ {
			points[j][d] = lo[d] + samples[j]*(hi[d]-lo[d])
		}
	}

	for _, p := range points {
		domain.Snap(p)
	}
	return points
}
