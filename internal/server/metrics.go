package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the server's prometheus instruments. They are registered on
// an explicit registerer so tests can use isolated registries.
type metrics struct {
	jobsStarted     prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
	suggestions     prometheus.Counter
	suggestDuration prometheus.Histogram
	evaluations     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		jobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bopt_jobs_started_total",
			Help: "Optimization jobs started.",
		}),
		jobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bopt_jobs_completed_total",
			Help: "Optimization jobs finished, by terminal status.",
		}, []string{"status"}),
		suggestions: factory.NewCounter(prometheus.CounterOpts{
			Name: "bopt_suggestions_total",
			Help: "Open-loop suggestion requests served.",
		}),
		suggestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bopt_suggest_duration_seconds",
			Help:    "Latency of suggestion requests, including model refit.",
			Buckets: prometheus.DefBuckets,
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "bopt_evaluations_total",
			Help: "Objective evaluations recorded by completed jobs.",
		}),
	}
}
