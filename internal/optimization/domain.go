package optimization

import (
	"math"
	"math/rand"
)

// VariableType discriminates the variants of a Variable.
type VariableType string

const (
	// ContinuousType is a real-valued variable with lower and upper bounds.
	ContinuousType VariableType = "continuous"
	// DiscreteType is a variable restricted to an explicit finite value set.
	DiscreteType VariableType = "discrete"
	// CategoricalType is a finite unordered value set, index-coded into the
	// point vector.
	CategoricalType VariableType = "categorical"
)

// Variable is one dimension of the search space. Exactly one variant's
// fields are meaningful, selected by Type. Use the constructors rather than
// building literals so validation applies uniformly.
type Variable struct {
	Name string
	Type VariableType

	// Continuous bounds.
	Lower float64
	Upper float64

	// Discrete value set, ascending after validation.
	Values []float64

	// Categorical labels; the point vector stores the label index.
	Categories []string
}

// Continuous creates a real-valued variable bounded to [lower, upper].
func Continuous(name string, lower, upper float64) Variable {
	return Variable{Name: name, Type: ContinuousType, Lower: lower, Upper: upper}
}

// Discrete creates a variable restricted to the given values.
func Discrete(name string, values ...float64) Variable {
	return Variable{Name: name, Type: DiscreteType, Values: values}
}

// Categorical creates an unordered finite variable. Points carry the index
// of the chosen category.
func Categorical(name string, categories ...string) Variable {
	return Variable{Name: name, Type: CategoricalType, Categories: categories}
}

// allowed returns the finite value set for non-continuous variables.
func (v Variable) allowed() []float64 {
	switch v.Type {
	case DiscreteType:
		return v.Values
	case CategoricalType:
		vals := make([]float64, len(v.Categories))
		for i := range v.Categories {
			vals[i] = float64(i)
		}
		return vals
	}
	return nil
}

// bounds returns the continuous relaxation of the variable.
func (v Variable) bounds() (lo, hi float64) {
	switch v.Type {
	case ContinuousType:
		return v.Lower, v.Upper
	case DiscreteType:
		return v.Values[0], v.Values[len(v.Values)-1]
	case CategoricalType:
		return 0, float64(len(v.Categories) - 1)
	}
	return 0, 0
}

// Domain is the ordered list of variables defining the search space. It is
// immutable after a successful Validate.
type Domain []Variable

// Dim returns the dimensionality of the search space.
func (d Domain) Dim() int {
	return len(d)
}

// Validate checks the domain once at construction time. Malformed domains
// fail fast with a ConfigurationError.
func (d Domain) Validate() error {
	if len(d) == 0 {
		return NewConfigurationError("domain must contain at least one variable")
	}
	seen := make(map[string]struct{}, len(d))
	for i, v := range d {
		if v.Name == "" {
			return NewConfigurationError("variable %d has no name", i)
		}
		if _, dup := seen[v.Name]; dup {
			return NewConfigurationError("duplicate variable name %q", v.Name)
		}
		seen[v.Name] = struct{}{}

		switch v.Type {
		case ContinuousType:
			if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower >= v.Upper {
				return NewConfigurationError("variable %q: invalid bounds [%v, %v]", v.Name, v.Lower, v.Upper)
			}
		case DiscreteType:
			if len(v.Values) == 0 {
				return NewConfigurationError("variable %q: discrete value set is empty", v.Name)
			}
			for j := 1; j < len(v.Values); j++ {
				if v.Values[j] <= v.Values[j-1] {
					return NewConfigurationError("variable %q: discrete values must be strictly ascending", v.Name)
				}
			}
		case CategoricalType:
			if len(v.Categories) == 0 {
				return NewConfigurationError("variable %q: categorical value set is empty", v.Name)
			}
		default:
			return NewConfigurationError("variable %q: unknown type %q", v.Name, v.Type)
		}
	}
	return nil
}

// CheckPoint verifies that x is a D-length vector consistent with each
// variable's type and bounds.
func (d Domain) CheckPoint(x []float64) error {
	if len(x) != len(d) {
		return NewDataError("point has %d dimensions, domain has %d", len(x), len(d))
	}
	for i, v := range d {
		lo, hi := v.bounds()
		if math.IsNaN(x[i]) || x[i] < lo || x[i] > hi {
			return NewDataError("coordinate %d (%v) outside variable %q bounds [%v, %v]", i, x[i], v.Name, lo, hi)
		}
	}
	return nil
}

// Clip moves x in place back inside the continuous relaxation of the domain.
func (d Domain) Clip(x []float64) {
	for i, v := range d {
		lo, hi := v.bounds()
		x[i] = math.Max(lo, math.Min(x[i], hi))
	}
}

// Snap rounds discrete and categorical coordinates of x in place to the
// nearest allowed value. Continuous coordinates are untouched.
func (d Domain) Snap(x []float64) {
	for i, v := range d {
		vals := v.allowed()
		if vals == nil {
			continue
		}
		best := vals[0]
		bestDist := math.Abs(x[i] - best)
		for _, val := range vals[1:] {
			if dist := math.Abs(x[i] - val); dist < bestDist {
				best, bestDist = val, dist
			}
		}
		x[i] = best
	}
}

// Sample draws a uniform random feasible point.
func (d Domain) Sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(d))
	for i, v := range d {
		switch v.Type {
		case ContinuousType:
			x[i] = v.Lower + rng.Float64()*(v.Upper-v.Lower)
		case DiscreteType:
			x[i] = v.Values[rng.Intn(len(v.Values))]
		case CategoricalType:
			x[i] = float64(rng.Intn(len(v.Categories)))
		}
	}
	return x
}

// Bounds returns the continuous relaxation of the domain: per-dimension
// lower and upper limits covering every feasible value.
func (d Domain) Bounds() (lo, hi []float64) {
	lo = make([]float64, len(d))
	hi = make([]float64, len(d))
	for i, v := range d {
		lo[i], hi[i] = v.bounds()
	}
	return lo, hi
}

// Scale is a characteristic length per dimension, used to size perturbations
// and finite-difference steps.
func (d Domain) Scale() []float64 {
	s := make([]float64, len(d))
	for i, v := range d {
		lo, hi := v.bounds()
		s[i] = hi - lo
		if s[i] <= 0 {
			s[i] = 1
		}
	}
	return s
}
