package optimization

// ObjectiveFunc evaluates the objective at a single point. Implementations
// may be expensive; the driver never calls them concurrently for the same
// point.
type ObjectiveFunc func(x []float64) (float64, error)

// Solution pairs a point in the search space with its objective value.
type Solution struct {
	X []float64
	Y float64
}

// Evaluation is one recorded objective evaluation. Round groups evaluations
// that were selected together: 0 for the initial design, then one per
// optimization round.
type Evaluation struct {
	Round    int
	Solution Solution
}

// StopReason explains why an optimization run terminated.
type StopReason string

const (
	// StopNone means the loop has not terminated yet.
	StopNone StopReason = ""
	// StopMaxIterations means the configured round budget was spent.
	StopMaxIterations StopReason = "max_iterations"
	// StopMaxTime means the wall-clock budget was exceeded.
	StopMaxTime StopReason = "max_time"
	// StopConverged means the last two accepted points were closer than the
	// configured epsilon.
	StopConverged StopReason = "converged"
	// StopSearchExhausted means de-duplication could not find a novel
	// candidate within the retry budget. The accumulated results remain
	// valid; this is not an error.
	StopSearchExhausted StopReason = "search_exhausted"
	// StopCancelled means the caller cancelled the run's context.
	StopCancelled StopReason = "cancelled"
)

// StoppingState tracks the termination-relevant quantities of a run. It is
// derived state, recomputed by the loop after every round.
type StoppingState struct {
	// Rounds completed so far (initial design excluded).
	Rounds int
	// Distance between the last two accepted points, or +Inf before two
	// points exist.
	LastDistance float64
	// Reason is non-empty once the loop has terminated.
	Reason StopReason
}
