package bayesian

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/substratelabs/bopt/internal/optimization"
	"github.com/substratelabs/bopt/internal/optimization/kernels"
)

const (
	// maxFitAttempts bounds the jitter-escalation retries before a fit
	// failure surfaces as a NumericalError.
	maxFitAttempts = 8
	// baseJitter is the starting diagonal jitter for Cholesky stabilization.
	baseJitter = 1e-10
)

// GP is a Gaussian-process surrogate model: fit on observed (X, y) pairs, it
// exposes posterior mean and variance at arbitrary points.
type GP struct {
	kernel    kernels.Kernel
	noiseVar  float64
	normalize bool

	// Standardization of y, identity unless normalize is set.
	yMean float64
	yStd  float64

	// Training state.
	x     *mat.Dense
	chol  *mat.Cholesky
	alpha *mat.VecDense

	pool   *matrixPool
	logger *zap.Logger
}

// NewGP creates a Gaussian-process model with the given kernel and
// observation-noise variance. When normalizeY is set, targets are
// standardized to zero mean and unit variance before fitting.
func NewGP(kernel kernels.Kernel, noiseVar float64, normalizeY bool, logger *zap.Logger) *GP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:    kernel,
		noiseVar:  noiseVar,
		normalize: normalizeY,
		yStd:      1,
		pool:      newMatrixPool(),
		logger:    logger.Named("gp"),
	}
}

// Trained reports whether Fit has succeeded at least once.
func (gp *GP) Trained() bool {
	return gp.alpha != nil
}

// Fit conditions the model on the training data. The Cholesky factorization
// is retried with escalating diagonal jitter a bounded number of times; if
// no attempt converges the failure surfaces as a NumericalError.
func (gp *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		return optimization.NewNumericalError(op, "training data must not be nil", nil)
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return optimization.NewNumericalError(op, "training matrix is empty", nil)
	}
	if nSamples != y.Len() {
		return optimization.NewNumericalError(op, "X/y length mismatch", nil)
	}

	gp.logger.Debug("fitting surrogate",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", gp.noiseVar),
	)

	yStd := gp.standardize(y)

	K := gp.pool.getSym(nSamples)
	defer gp.pool.putSym(K)
	for i := 0; i < nSamples; i++ {
		xi := X.RawRowView(i)
		K.SetSym(i, i, gp.kernel.Eval(xi, xi)+gp.noiseVar)
		for j := i + 1; j < nSamples; j++ {
			K.SetSym(i, j, gp.kernel.Eval(xi, X.RawRowView(j)))
		}
	}

	jitter := baseJitter
	for attempt := 0; attempt < maxFitAttempts; attempt++ {
		Kj := mat.NewSymDense(nSamples, nil)
		Kj.CopySym(K)
		for i := 0; i < nSamples; i++ {
			Kj.SetSym(i, i, Kj.At(i, i)+jitter)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(Kj); !ok {
			gp.logger.Debug("cholesky factorization failed, escalating jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter),
			)
			jitter *= 10
			continue
		}

		alpha := mat.NewVecDense(nSamples, nil)
		if err := chol.SolveVecTo(alpha, yStd); err != nil {
			gp.logger.Debug("cholesky solve failed, escalating jitter",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			jitter *= 10
			continue
		}

		gp.x = mat.DenseCopyOf(X)
		gp.chol = &chol
		gp.alpha = alpha
		return nil
	}

	return optimization.NewNumericalError(op,
		"kernel matrix not positive definite after jitter escalation",
		errors.New("cholesky factorization failed"))
}

// standardize returns y transformed by the model's output normalization,
// updating the stored mean and deviation.
func (gp *GP) standardize(y *mat.VecDense) *mat.VecDense {
	n := y.Len()
	if !gp.normalize {
		gp.yMean, gp.yStd = 0, 1
		return mat.VecDenseCopyOf(y)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += y.AtVec(i)
	}
	gp.yMean = sum / float64(n)
	var sq float64
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - gp.yMean
		sq += d * d
	}
	gp.yStd = math.Sqrt(sq / float64(n))
	if gp.yStd < 1e-12 {
		gp.yStd = 1
	}
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, (y.AtVec(i)-gp.yMean)/gp.yStd)
	}
	return out
}

// Predict returns the posterior mean and variance at each row of X, in the
// original (unstandardized) output units.
func (gp *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if X == nil {
		return nil, nil, optimization.NewNumericalError(op, "query matrix is nil", nil)
	}
	if !gp.Trained() {
		return nil, nil, optimization.NewNumericalError(op, "model is not fitted", nil)
	}

	nTest, nFeatures := X.Dims()
	nTrain, trainFeatures := gp.x.Dims()
	if nFeatures != trainFeatures {
		return nil, nil, optimization.NewNumericalError(op, "query dimensionality does not match training data", nil)
	}

	mean := mat.NewVecDense(nTest, nil)
	variance := mat.NewVecDense(nTest, nil)

	kStar := mat.NewDense(nTest, nTrain, nil)
	kss := make([]float64, nTest)
	for i := 0; i < nTest; i++ {
		xi := X.RawRowView(i)
		kss[i] = gp.kernel.Eval(xi, xi) + gp.noiseVar
		for j := 0; j < nTrain; j++ {
			kStar.Set(i, j, gp.kernel.Eval(xi, gp.x.RawRowView(j)))
		}
	}

	mean.MulVec(kStar, gp.alpha)

	// variance = diag(Kss - K* K^-1 K*^T) via the Cholesky factor.
	v := mat.NewDense(nTrain, nTest, nil)
	if err := gp.chol.SolveTo(v, kStar.T()); err != nil {
		return nil, nil, optimization.NewNumericalError(op, "posterior covariance solve failed", err)
	}
	for i := 0; i < nTest; i++ {
		var sum float64
		for j := 0; j < nTrain; j++ {
			val := v.At(j, i)
			sum += val * kStar.At(i, j)
		}
		variance.SetVec(i, math.Max(0, kss[i]-sum))
	}

	// Undo output standardization.
	for i := 0; i < nTest; i++ {
		mean.SetVec(i, gp.yMean+gp.yStd*mean.AtVec(i))
		variance.SetVec(i, gp.yStd*gp.yStd*variance.AtVec(i))
	}

	return mean, variance, nil
}

// PredictOne returns the posterior mean and standard deviation at a single
// point.
func (gp *GP) PredictOne(x []float64) (mu, sigma float64, err error) {
	X := mat.NewDense(1, len(x), nil)
	X.SetRow(0, x)
	mean, variance, err := gp.Predict(X)
	if err != nil {
		return 0, 0, err
	}
	return mean.AtVec(0), math.Sqrt(variance.AtVec(0)), nil
}

// MeanGradient estimates the gradient of the posterior mean at x by central
// finite differences with per-dimension step h.
func (gp *GP) MeanGradient(x, h []float64) ([]float64, error) {
	grad := make([]float64, len(x))
	pt := append([]float64(nil), x...)
	for i := range x {
		pt[i] = x[i] + h[i]
		hi, _, err := gp.PredictOne(pt)
		if err != nil {
			return nil, err
		}
		pt[i] = x[i] - h[i]
		lo, _, err := gp.PredictOne(pt)
		if err != nil {
			return nil, err
		}
		pt[i] = x[i]
		grad[i] = (hi - lo) / (2 * h[i])
	}
	return grad, nil
}
