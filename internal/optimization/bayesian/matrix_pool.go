package bayesian

import "gonum.org/v1/gonum/mat"

// matrixPool reuses matrix allocations across refits. The kernel matrix is
// rebuilt every round with the same growth pattern, so pooling by size keeps
// the allocator quiet during long runs.
type matrixPool struct {
	sym map[int][]*mat.SymDense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{
		sym: make(map[int][]*mat.SymDense),
	}
}

func (p *matrixPool) getSym(n int) *mat.SymDense {
	if ms := p.sym[n]; len(ms) > 0 {
		m := ms[len(ms)-1]
		p.sym[n] = ms[:len(ms)-1]
		m.Zero()
		return m
	}
	return mat.NewSymDense(n, nil)
}

func (p *matrixPool) putSym(m *mat.SymDense) {
	n := m.SymmetricDim()
	p.sym[n] = append(p.sym[n], m)
}
