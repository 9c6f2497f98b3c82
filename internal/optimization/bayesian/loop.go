// Package bayesian implements the Bayesian-optimization driver: a
// Gaussian-process surrogate, acquisition maximization, local-penalization
// batch selection, and the evaluate-fit-suggest loop that ties them
// together.
package bayesian

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/substratelabs/bopt/internal/optimization"
	"github.com/substratelabs/bopt/internal/optimization/acquisition"
	"github.com/substratelabs/bopt/internal/optimization/kernels"
)

// Evaluator strategies for turning one optimization round into points.
const (
	// EvaluatorSequential selects a single point per round.
	EvaluatorSequential = "sequential"
	// EvaluatorLocalPenalization selects a diverse batch per round.
	EvaluatorLocalPenalization = "local_penalization"
)

// ModelGP is the only supported surrogate family.
const ModelGP = "GP"

// Config assembles an optimization loop. Zero values select defaults where
// a default exists; contradictory combinations fail with a
// ConfigurationError at construction.
type Config struct {
	// Domain is the search space. Required.
	Domain optimization.Domain

	// Objective is the function to minimize. Nil selects open-loop mode, in
	// which case initial observations X/Y are required.
	Objective optimization.ObjectiveFunc

	// Initial observation history. Required together when Objective is nil.
	X [][]float64
	Y []float64

	// AcquisitionType selects the scoring policy. Default EI.
	AcquisitionType acquisition.Type
	// AcquisitionJitter is the improvement margin xi for EI/MPI. Zero
	// selects the default 0.01, so an exact zero margin is not
	// representable; use a small positive value instead. Negative values
	// are rejected.
	AcquisitionJitter float64
	// AcquisitionWeight is the exploration weight for LCB. Zero selects the
	// default 2; negative values are rejected.
	AcquisitionWeight float64

	// ModelType selects the surrogate family. Only "GP" is supported.
	ModelType string
	// NormalizeY standardizes outputs to zero mean and unit variance before
	// fitting the surrogate.
	NormalizeY bool
	// ExactFeval treats objective evaluations as noiseless.
	ExactFeval bool

	// InitialDesignNumdata is the size of the space-filling initial design
	// evaluated when no observations exist. Default 5.
	InitialDesignNumdata int

	// EvaluatorType selects single-point or batch selection. Defaults to
	// sequential for BatchSize <= 1, local penalization otherwise.
	EvaluatorType string
	// BatchSize is the number of points suggested per round. Default 1.
	BatchSize int
	// NumCores bounds concurrent objective evaluations within a batch.
	// Default 1.
	NumCores int

	// DeDuplication rejects candidates within DeDuplicationTolerance of
	// observed points. Pending and ignored points are always excluded.
	DeDuplication bool
	// DeDuplicationTolerance defaults to 1e-8.
	DeDuplicationTolerance float64

	// RandomSeed fixes the loop's pseudo-random stream. Zero draws a seed
	// from the clock.
	RandomSeed int64

	Logger *zap.Logger
}

// RunParams are the termination controls of a closed-loop run.
type RunParams struct {
	// MaxIter is the number of optimization rounds. Zero runs nothing beyond
	// the initial design.
	MaxIter int
	// MaxTime, when positive, is a wall-clock budget checked after each
	// round.
	MaxTime time.Duration
	// Eps, when positive, terminates once consecutive accepted points are
	// closer than this Euclidean distance.
	Eps float64
}

// Loop drives the evaluate-fit-suggest cycle. It owns the evaluation
// history; a single Loop is not safe for concurrent use, matching its
// strictly sequential iteration structure.
type Loop struct {
	cfg    Config
	domain optimization.Domain
	seed   int64

	observations *optimization.ObservationSet
	history      []optimization.Evaluation
	incumbent    *optimization.Solution
	stopping     optimization.StoppingState

	gp     *GP
	acq    acquisition.Function
	acqopt *AcquisitionOptimizer
	batch  *BatchSelector

	rng    *rand.Rand
	logger *zap.Logger
}

// New validates cfg and assembles a loop. Domain and type-name problems
// surface as ConfigurationError; X/Y shape problems as DataError.
func New(cfg Config) (*Loop, error) {
	if err := cfg.Domain.Validate(); err != nil {
		return nil, err
	}
	if cfg.Objective == nil && len(cfg.X) == 0 {
		return nil, optimization.NewConfigurationError(
			"either an objective function or initial observations X/Y are required")
	}

	if cfg.ModelType == "" {
		cfg.ModelType = ModelGP
	}
	if cfg.ModelType != ModelGP {
		return nil, optimization.NewConfigurationError("unknown model type %q", cfg.ModelType)
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.EvaluatorType == "" {
		if cfg.BatchSize > 1 {
			cfg.EvaluatorType = EvaluatorLocalPenalization
		} else {
			cfg.EvaluatorType = EvaluatorSequential
		}
	}
	switch cfg.EvaluatorType {
	case EvaluatorSequential:
		if cfg.BatchSize > 1 {
			return nil, optimization.NewConfigurationError(
				"sequential evaluator cannot produce batches of %d", cfg.BatchSize)
		}
	case EvaluatorLocalPenalization:
	default:
		return nil, optimization.NewConfigurationError("unknown evaluator type %q", cfg.EvaluatorType)
	}

	if cfg.AcquisitionType == "" {
		cfg.AcquisitionType = acquisition.EI
	}
	if cfg.AcquisitionJitter < 0 {
		return nil, optimization.NewConfigurationError(
			"AcquisitionJitter must be non-negative, got %v", cfg.AcquisitionJitter)
	}
	if cfg.AcquisitionJitter == 0 {
		cfg.AcquisitionJitter = 0.01
	}
	if cfg.AcquisitionWeight < 0 {
		return nil, optimization.NewConfigurationError(
			"AcquisitionWeight must be non-negative, got %v", cfg.AcquisitionWeight)
	}
	if cfg.AcquisitionWeight == 0 {
		cfg.AcquisitionWeight = 2
	}
	acq, err := acquisition.New(cfg.AcquisitionType, cfg.AcquisitionJitter, cfg.AcquisitionWeight)
	if err != nil {
		return nil, err
	}

	if cfg.InitialDesignNumdata == 0 {
		cfg.InitialDesignNumdata = 5
	}
	if cfg.NumCores < 1 {
		cfg.NumCores = 1
	}
	if cfg.DeDuplicationTolerance == 0 {
		cfg.DeDuplicationTolerance = 1e-8
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("loop")

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	observations, err := optimization.NewObservationSet(cfg.Domain, cfg.X, cfg.Y)
	if err != nil {
		return nil, err
	}

	// The default surrogate: Matérn 5/2 with a length scale proportional to
	// the domain's characteristic size.
	scale := cfg.Domain.Scale()
	meanScale := floats.Sum(scale) / float64(len(scale))
	kernel := kernels.NewMatern52(0.2*meanScale, 1.0)

	noise := 1e-6
	if cfg.ExactFeval {
		noise = 1e-10
	}

	acqopt := NewAcquisitionOptimizer(cfg.Domain, cfg.DeDuplication, cfg.DeDuplicationTolerance, logger)

	l := &Loop{
		cfg:          cfg,
		domain:       cfg.Domain,
		seed:         seed,
		observations: observations,
		gp:           NewGP(kernel, noise, cfg.NormalizeY, logger),
		acq:          acq,
		acqopt:       acqopt,
		batch:        NewBatchSelector(cfg.Domain, acqopt, logger),
		rng:          rand.New(rand.NewSource(seed)),
		logger:       logger,
	}
	if best, ok := observations.Best(); ok {
		l.incumbent = &best
	}
	for i := 0; i < observations.Len(); i++ {
		l.history = append(l.history, optimization.Evaluation{Round: 0, Solution: observations.At(i)})
	}
	l.stopping.LastDistance = math.Inf(1)
	return l, nil
}

// RunOptimization runs the closed-loop evaluate-fit-suggest cycle until a
// stopping condition fires. Requires an objective; open-loop instances use
// SuggestNextLocations and Update instead.
//
// Batch rounds are atomic: a full batch is evaluated and appended before any
// termination check, and cancellation is honored only at round boundaries.
func (l *Loop) RunOptimization(ctx context.Context, p RunParams) error {
	if l.cfg.Objective == nil {
		return optimization.NewConfigurationError("objective function required for closed-loop optimization")
	}
	if p.MaxIter < 0 {
		return optimization.NewConfigurationError("MaxIter must be non-negative, got %d", p.MaxIter)
	}

	l.stopping = optimization.StoppingState{LastDistance: math.Inf(1)}
	start := time.Now()

	if l.observations.Len() == 0 {
		design := latinHypercube(l.domain, l.cfg.InitialDesignNumdata, l.rng)
		l.logger.Info("evaluating initial design", zap.Int("points", len(design)))
		if err := l.evaluateAndAppend(ctx, design, 0); err != nil {
			return err
		}
	}

	for round := 1; round <= p.MaxIter; round++ {
		if err := ctx.Err(); err != nil {
			l.stopping.Reason = optimization.StopCancelled
			return err
		}

		points, selErr := l.selectBatch(l.rng, nil, nil)
		if selErr != nil && !errors.Is(selErr, ErrSearchExhausted) {
			return selErr
		}

		if err := l.evaluateAndAppend(ctx, points, round); err != nil {
			return err
		}
		l.stopping.Rounds = round

		if errors.Is(selErr, ErrSearchExhausted) {
			l.logger.Info("stopping early: search space exhausted",
				zap.Int("round", round))
			l.stopping.Reason = optimization.StopSearchExhausted
			return nil
		}
		if p.Eps > 0 && l.stopping.LastDistance <= p.Eps {
			l.stopping.Reason = optimization.StopConverged
			return nil
		}
		if p.MaxTime > 0 && time.Since(start) >= p.MaxTime {
			l.stopping.Reason = optimization.StopMaxTime
			return nil
		}
	}
	l.stopping.Reason = optimization.StopMaxIterations
	return nil
}

// SuggestNextLocations refits the surrogate on the current history and
// returns the next batch of candidate points without mutating the
// observation set. Pending points (in flight elsewhere) and ignored points
// are excluded from candidates and penalized during batch selection; both
// are currently treated identically.
//
// Given a fixed RandomSeed and identical inputs the result is deterministic
// across calls: the suggestion stream is re-derived from the seed each time.
func (l *Loop) SuggestNextLocations(ctx context.Context, pending, ignored [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.observations.Len() == 0 {
		return nil, optimization.NewConfigurationError(
			"suggestions require at least one observation; supply X/Y or run the initial design")
	}
	for _, x := range pending {
		if err := l.domain.CheckPoint(x); err != nil {
			return nil, err
		}
	}
	for _, x := range ignored {
		if err := l.domain.CheckPoint(x); err != nil {
			return nil, err
		}
	}

	rng := rand.New(rand.NewSource(l.seed))
	points, err := l.selectBatch(rng, pending, ignored)
	if errors.Is(err, ErrSearchExhausted) && len(points) > 0 {
		return points, nil
	}
	return points, err
}

// selectBatch refits the model and produces the next points, honoring the
// pending and ignored sets. Exclusion covers pending and ignored always, and
// observed points when de-duplication is enabled.
func (l *Loop) selectBatch(rng *rand.Rand, pending, ignored [][]float64) ([][]float64, error) {
	if err := l.fitModel(); err != nil {
		return nil, err
	}

	best := math.Inf(1)
	var incumbentX []float64
	if l.incumbent != nil {
		best = l.incumbent.Y
		incumbentX = l.incumbent.X
	}
	l.acq.UpdateBest(best)

	score := func(x []float64) float64 {
		mu, sigma, err := l.gp.PredictOne(x)
		if err != nil {
			return math.Inf(-1)
		}
		return l.acq.Score(mu, sigma)
	}

	exclude := make([][]float64, 0, l.observations.Len()+len(pending)+len(ignored))
	exclude = append(exclude, pending...)
	exclude = append(exclude, ignored...)
	if l.cfg.DeDuplication {
		exclude = append(exclude, l.observations.X()...)
	}

	if l.cfg.BatchSize > 1 {
		penalize := make([][]float64, 0, len(pending)+len(ignored))
		penalize = append(penalize, pending...)
		penalize = append(penalize, ignored...)
		return l.batch.Select(rng, l.gp, score, l.cfg.BatchSize, incumbentX, best, exclude, penalize)
	}

	x, err := l.acqopt.Maximize(rng, score, incumbentX, exclude)
	if err != nil {
		return nil, err
	}
	return [][]float64{x}, nil
}

// fitModel refits the surrogate on the full observation history.
func (l *Loop) fitModel() error {
	n := l.observations.Len()
	dim := l.domain.Dim()
	X := mat.NewDense(n, dim, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		obs := l.observations.At(i)
		X.SetRow(i, obs.X)
		y.SetVec(i, obs.Y)
	}
	return l.gp.Fit(X, y)
}

// evaluateAndAppend runs the objective at each point, concurrently up to
// NumCores, then appends all results and refreshes derived state. The batch
// is all-or-nothing: an evaluation error aborts the run.
func (l *Loop) evaluateAndAppend(ctx context.Context, points [][]float64, round int) error {
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	var g errgroup.Group
	g.SetLimit(l.cfg.NumCores)
	for i, x := range points {
		i, x := i, x
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			y, err := l.cfg.Objective(x)
			if err != nil {
				return err
			}
			values[i] = y
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, x := range points {
		l.append(x, values[i], round)
	}
	return nil
}

// append records one observation and refreshes the incumbent and the
// last-two-points distance.
func (l *Loop) append(x []float64, y float64, round int) {
	if n := l.observations.Len(); n > 0 {
		l.stopping.LastDistance = floats.Distance(l.observations.At(n-1).X, x, 2)
	}
	l.observations.Append(x, y)
	sol := l.observations.At(l.observations.Len() - 1)
	l.history = append(l.history, optimization.Evaluation{Round: round, Solution: sol})
	if l.incumbent == nil || y < l.incumbent.Y {
		l.incumbent = &optimization.Solution{X: sol.X, Y: sol.Y}
	}
}

// Update feeds back an externally evaluated result in open-loop mode.
func (l *Loop) Update(x []float64, y float64) error {
	if err := l.domain.CheckPoint(x); err != nil {
		return err
	}
	l.append(x, y, l.stopping.Rounds)
	return nil
}

// BestX returns the incumbent point, or nil before any observation.
func (l *Loop) BestX() []float64 {
	if l.incumbent == nil {
		return nil
	}
	return append([]float64(nil), l.incumbent.X...)
}

// BestY returns the incumbent value, or +Inf before any observation.
func (l *Loop) BestY() float64 {
	if l.incumbent == nil {
		return math.Inf(1)
	}
	return l.incumbent.Y
}

// History returns a copy of the full evaluation history.
func (l *Loop) History() []optimization.Evaluation {
	return append([]optimization.Evaluation(nil), l.history...)
}

// Observations returns the number of recorded evaluations.
func (l *Loop) Observations() int {
	return l.observations.Len()
}

// Stopping returns the current stopping state.
func (l *Loop) Stopping() optimization.StoppingState {
	return l.stopping
}

// StopReason returns why the last run terminated, or StopNone while running.
func (l *Loop) StopReason() optimization.StopReason {
	return l.stopping.Reason
}
