// Package objectives provides the standard benchmark objective functions
// used by the service's demo jobs and the test suite, together with their
// canonical domains.
package objectives

import (
	"math"

	"github.com/substratelabs/bopt/internal/optimization"
)

// Forrester is the 1-D test function (6x-2)^2 sin(12x-4) on [0, 1], with its
// global minimum near x = 0.757.
func Forrester(x []float64) (float64, error) {
	t := 6*x[0] - 2
	return t * t * math.Sin(12*x[0]-4), nil
}

// Branin is the classic 2-D test function on [-5, 10] x [0, 15], with three
// global minima of value ~0.3979.
func Branin(x []float64) (float64, error) {
	const (
		a = 1.0
		b = 5.1 / (4 * math.Pi * math.Pi)
		c = 5.0 / math.Pi
		r = 6.0
		s = 10.0
		t = 1.0 / (8 * math.Pi)
	)
	term := x[1] - b*x[0]*x[0] + c*x[0] - r
	return a*term*term + s*(1-t)*math.Cos(x[0]) + s, nil
}

// SixHumpCamel is the 2-D test function on [-2, 2] x [-1, 1], with two
// global minima of value ~-1.0316.
func SixHumpCamel(x []float64) (float64, error) {
	x1, x2 := x[0], x[1]
	x1sq, x2sq := x1*x1, x2*x2
	return (4-2.1*x1sq+x1sq*x1sq/3)*x1sq + x1*x2 + (-4+4*x2sq)*x2sq, nil
}

// ByName resolves a benchmark objective and its canonical domain. Unknown
// names fail with a ConfigurationError.
func ByName(name string) (optimization.ObjectiveFunc, optimization.Domain, error) {
	switch name {
	case "forrester":
		return Forrester, optimization.Domain{
			optimization.Continuous("x", 0, 1),
		}, nil
	case "branin":
		return Branin, optimization.Domain{
			optimization.Continuous("x1", -5, 10),
			optimization.Continuous("x2", 0, 15),
		}, nil
	case "sixhumpcamel":
		return SixHumpCamel, optimization.Domain{
			optimization.Continuous("x1", -2, 2),
			optimization.Continuous("x2", -1, 1),
		}, nil
	}
	return nil, nil, optimization.NewConfigurationError("unknown objective %q", name)
}
