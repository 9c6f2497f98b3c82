// Package server exposes the optimization driver over HTTP: asynchronous
// closed-loop jobs against builtin benchmark objectives, and a stateless
// open-loop suggestion endpoint for externally evaluated objectives.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/substratelabs/bopt/internal/config"
	"github.com/substratelabs/bopt/internal/objectives"
	"github.com/substratelabs/bopt/internal/optimization"
	"github.com/substratelabs/bopt/internal/optimization/acquisition"
	"github.com/substratelabs/bopt/internal/optimization/bayesian"
)

// Job statuses.
const (
	statusPending    = "pending"
	statusRunning    = "running"
	statusCancelling = "cancelling"
	statusCompleted  = "completed"
	statusFailed     = "failed"
	statusCancelled  = "cancelled"
)

// job tracks one asynchronous closed-loop optimization. The loop itself is
// single-threaded; results are read only once the job reaches a terminal
// status, and only the runJob goroutine writes terminal state.
type job struct {
	ID              string
	Objective       string
	Status          string
	StartTime       time.Time
	EndTime         *time.Time
	Error           string
	cancelRequested bool
	loop            *bayesian.Loop
	cancel          context.CancelFunc
}

// Server manages optimization jobs and serves suggestions.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics

	mu   sync.RWMutex
	jobs map[string]*job
}

// NewServer creates a server. Metrics are registered on reg; pass
// prometheus.DefaultRegisterer in production.
func NewServer(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		metrics: newMetrics(reg),
		jobs:    make(map[string]*job),
	}
}

// RegisterRoutes mounts the API on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimizations", s.handleStartJob)
		r.Get("/optimizations/{id}", s.handleJobStatus)
		r.Delete("/optimizations/{id}", s.handleCancelJob)
		r.Post("/suggest", s.handleSuggest)
	})
}

// Close cancels every running job.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
	return nil
}

type startJobRequest struct {
	Objective         string  `json:"objective"`
	MaxIter           int     `json:"max_iter"`
	MaxTimeSeconds    float64 `json:"max_time_seconds"`
	Eps               float64 `json:"eps"`
	BatchSize         int     `json:"batch_size"`
	NumCores          int     `json:"num_cores"`
	AcquisitionType   string  `json:"acquisition_type"`
	AcquisitionJitter float64 `json:"acquisition_jitter"`
	AcquisitionWeight float64 `json:"acquisition_weight"`
	InitialDesign     int     `json:"initial_design_numdata"`
	NormalizeY        bool    `json:"normalize_y"`
	ExactFeval        bool    `json:"exact_feval"`
	DeDuplication     bool    `json:"de_duplication"`
	Seed              int64   `json:"seed"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	objective, domain, err := objectives.ByName(req.Objective)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MaxIter <= 0 {
		req.MaxIter = s.cfg.Optimization.MaxIterations
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.cfg.Optimization.BatchSize
	}
	if req.NumCores <= 0 {
		req.NumCores = s.cfg.Optimization.NumCores
	}
	if req.InitialDesign <= 0 {
		req.InitialDesign = s.cfg.Optimization.InitialDesign
	}
	if req.Seed == 0 {
		req.Seed = s.cfg.Optimization.RandomSeed
	}

	loop, err := bayesian.New(bayesian.Config{
		Domain:               domain,
		Objective:            objective,
		AcquisitionType:      acquisition.Type(req.AcquisitionType),
		AcquisitionJitter:    req.AcquisitionJitter,
		AcquisitionWeight:    req.AcquisitionWeight,
		NormalizeY:           req.NormalizeY,
		ExactFeval:           req.ExactFeval,
		InitialDesignNumdata: req.InitialDesign,
		BatchSize:            req.BatchSize,
		NumCores:             req.NumCores,
		DeDuplication:        req.DeDuplication,
		RandomSeed:           req.Seed,
		Logger:               s.logger,
	})
	if err != nil {
		s.respondError(w, statusFromError(err), err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		ID:        uuid.NewString(),
		Objective: req.Objective,
		Status:    statusPending,
		StartTime: time.Now(),
		loop:      loop,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	s.metrics.jobsStarted.Inc()

	params := bayesian.RunParams{
		MaxIter: req.MaxIter,
		MaxTime: time.Duration(req.MaxTimeSeconds * float64(time.Second)),
		Eps:     req.Eps,
	}
	go s.runJob(ctx, j, params)

	// runJob owns j.Status from here on; report the state the job was
	// created in rather than reading the shared field unlocked.
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     j.ID,
		"status": statusPending,
	})
}

func (s *Server) runJob(ctx context.Context, j *job, params bayesian.RunParams) {
	s.setStatus(j, statusRunning, "")

	err := j.loop.RunOptimization(ctx, params)

	switch {
	case err == nil:
		s.metrics.evaluations.Add(float64(j.loop.Observations()))
		s.setStatus(j, statusCompleted, "")
	case errors.Is(err, context.Canceled):
		s.setStatus(j, statusCancelled, "")
	default:
		s.logger.Error("optimization job failed",
			zap.String("job_id", j.ID),
			zap.Error(err),
		)
		s.setStatus(j, statusFailed, err.Error())
	}
}

// setStatus transitions a job's status. Only the runJob goroutine calls it,
// so a terminal status is written exactly once; the guard keeps it
// idempotent regardless.
func (s *Server) setStatus(j *job, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.Status == statusCompleted || j.Status == statusFailed || j.Status == statusCancelled {
		return
	}
	j.Status = status
	j.Error = errMsg
	if status != statusRunning {
		now := time.Now()
		j.EndTime = &now
		s.metrics.jobsCompleted.WithLabelValues(status).Inc()
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		s.respondError(w, http.StatusNotFound, "optimization not found")
		return
	}

	terminal := j.Status == statusCompleted || j.Status == statusFailed || j.Status == statusCancelled
	status := j.Status
	if j.cancelRequested && !terminal {
		status = statusCancelling
	}
	resp := map[string]interface{}{
		"id":         j.ID,
		"objective":  j.Objective,
		"status":     status,
		"started_at": j.StartTime.Format(time.RFC3339),
	}
	if j.EndTime != nil {
		resp["ended_at"] = j.EndTime.Format(time.RFC3339)
	}
	if j.Error != "" {
		resp["error"] = j.Error
	}
	s.mu.RUnlock()

	// Loop internals are single-threaded; read them only once the driving
	// goroutine has finished.
	if terminal && j.loop.Observations() > 0 {
		resp["evaluations"] = j.loop.Observations()
		resp["stop_reason"] = string(j.loop.StopReason())
		resp["best"] = map[string]interface{}{
			"x": j.loop.BestX(),
			"y": j.loop.BestY(),
		}
		history := j.loop.History()
		entries := make([]map[string]interface{}, len(history))
		for i, ev := range history {
			entries[i] = map[string]interface{}{
				"round": ev.Round,
				"x":     ev.Solution.X,
				"y":     ev.Solution.Y,
			}
		}
		resp["history"] = entries
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleCancelJob requests cancellation. Terminal state (and the cancelled
// metric) is recorded by runJob once the loop actually stops, so results are
// never read while the driving goroutine is still mid-round.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		s.respondError(w, http.StatusNotFound, "optimization not found")
		return
	}
	switch j.Status {
	case statusCompleted, statusFailed, statusCancelled:
		s.mu.Unlock()
		s.respondError(w, http.StatusConflict, "optimization already in terminal state "+j.Status)
		return
	}
	if j.cancelRequested {
		s.mu.Unlock()
		s.respondError(w, http.StatusConflict, "cancellation already requested")
		return
	}
	j.cancelRequested = true
	cancel := j.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("optimization cancellation requested", zap.String("job_id", id))
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": statusCancelling})
}

// variableSpec is the wire form of a domain variable.
type variableSpec struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Values     []float64 `json:"values"`
	Categories []string  `json:"categories"`
}

func (v variableSpec) toVariable() optimization.Variable {
	switch optimization.VariableType(v.Type) {
	case optimization.DiscreteType:
		return optimization.Discrete(v.Name, v.Values...)
	case optimization.CategoricalType:
		return optimization.Categorical(v.Name, v.Categories...)
	default:
		return optimization.Variable{
			Name:  v.Name,
			Type:  optimization.VariableType(v.Type),
			Lower: v.Lower,
			Upper: v.Upper,
		}
	}
}

type suggestRequest struct {
	Domain            []variableSpec `json:"domain"`
	X                 [][]float64    `json:"x"`
	Y                 []float64      `json:"y"`
	Pending           [][]float64    `json:"pending"`
	Ignored           [][]float64    `json:"ignored"`
	BatchSize         int            `json:"batch_size"`
	AcquisitionType   string         `json:"acquisition_type"`
	AcquisitionJitter float64        `json:"acquisition_jitter"`
	AcquisitionWeight float64        `json:"acquisition_weight"`
	NormalizeY        bool           `json:"normalize_y"`
	ExactFeval        bool           `json:"exact_feval"`
	DeDuplication     bool           `json:"de_duplication"`
	Seed              int64          `json:"seed"`
}

// handleSuggest serves the open-loop workflow: the caller owns evaluation
// and passes the full history (plus any in-flight pending points) on every
// request.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	domain := make(optimization.Domain, len(req.Domain))
	for i, v := range req.Domain {
		domain[i] = v.toVariable()
	}

	loop, err := bayesian.New(bayesian.Config{
		Domain:            domain,
		X:                 req.X,
		Y:                 req.Y,
		AcquisitionType:   acquisition.Type(req.AcquisitionType),
		AcquisitionJitter: req.AcquisitionJitter,
		AcquisitionWeight: req.AcquisitionWeight,
		NormalizeY:        req.NormalizeY,
		ExactFeval:        req.ExactFeval,
		BatchSize:         req.BatchSize,
		DeDuplication:     req.DeDuplication,
		RandomSeed:        req.Seed,
		Logger:            s.logger,
	})
	if err != nil {
		s.respondError(w, statusFromError(err), err.Error())
		return
	}

	points, err := loop.SuggestNextLocations(r.Context(), req.Pending, req.Ignored)
	if err != nil {
		s.respondError(w, statusFromError(err), err.Error())
		return
	}

	s.metrics.suggestions.Inc()
	s.metrics.suggestDuration.Observe(time.Since(start).Seconds())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// statusFromError maps the optimization error taxonomy onto HTTP statuses.
func statusFromError(err error) int {
	var cfgErr *optimization.ConfigurationError
	var dataErr *optimization.DataError
	if errors.As(err, &cfgErr) || errors.As(err, &dataErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("request error",
		zap.Int("status", status),
		zap.String("message", message),
	)
	s.respondJSON(w, status, map[string]string{"error": message})
}
