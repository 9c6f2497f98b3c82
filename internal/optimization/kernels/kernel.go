// Package kernels provides covariance functions for Gaussian-process
// surrogate models.
package kernels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Kernel is a positive-definite covariance function over pairs of points.
type Kernel interface {
	// Eval computes the kernel value between x1 and x2.
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters.
	Hyperparameters() []float64

	// SetHyperparameters replaces the kernel's hyperparameters.
	SetHyperparameters(params []float64) error
}

func validatePositive(lengthScale, signalVar float64) error {
	if lengthScale <= 0 || math.IsNaN(lengthScale) {
		return fmt.Errorf("lengthScale must be positive, got %v", lengthScale)
	}
	if signalVar <= 0 || math.IsNaN(signalVar) {
		return fmt.Errorf("signalVar must be positive, got %v", signalVar)
	}
	return nil
}

// RBF is the squared-exponential kernel.
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF creates an RBF kernel. Panics on non-positive parameters.
func NewRBF(lengthScale, signalVar float64) *RBF {
	if err := validatePositive(lengthScale, signalVar); err != nil {
		panic(err)
	}
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes signalVar * exp(-||x1-x2||^2 / (2 l^2)).
func (k *RBF) Eval(x1, x2 []float64) float64 {
	d := floats.Distance(x1, x2, 2)
	return k.signalVar * math.Exp(-d*d/(2*k.lengthScale*k.lengthScale))
}

// Hyperparameters returns [lengthScale, signalVar].
func (k *RBF) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters expects [lengthScale, signalVar].
func (k *RBF) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if err := validatePositive(params[0], params[1]); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}

// Matern52 is the Matérn kernel with smoothness 5/2, the default surrogate
// covariance for optimization workloads.
type Matern52 struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52 creates a Matérn 5/2 kernel. Panics on non-positive parameters.
func NewMatern52(lengthScale, signalVar float64) *Matern52 {
	if err := validatePositive(lengthScale, signalVar); err != nil {
		panic(err)
	}
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the Matérn 5/2 covariance between x1 and x2.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := floats.Distance(x1, x2, 2) / k.lengthScale
	sqrt5r := math.Sqrt(5) * r
	return k.signalVar * (1 + sqrt5r + (5.0/3.0)*r*r) * math.Exp(-sqrt5r)
}

// Hyperparameters returns [lengthScale, signalVar].
func (k *Matern52) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters expects [lengthScale, signalVar].
func (k *Matern52) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if err := validatePositive(params[0], params[1]); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}
