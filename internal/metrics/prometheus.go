package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts intake requests by language and result.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_submissions_total",
			Help: "Total number of submissions received",
		},
		[]string{"language", "result"},
	)

	// EvaluationsTotal counts evaluation outcomes by language.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_evaluations_total",
			Help: "Total number of evaluations by outcome",
		},
		[]string{"language", "outcome"},
	)

	// EvaluationDuration tracks end-to-end evaluation time in seconds.
	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_evaluation_duration_seconds",
			Help:    "Duration of submission evaluations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"language"},
	)

	// VerdictsTotal counts per-test-case verdicts.
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_verdicts_total",
			Help: "Total number of test case verdicts",
		},
		[]string{"verdict"},
	)

	// WorkersActive tracks the number of workers currently evaluating a job.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// SandboxFailures counts sandbox infrastructure failures (not user code errors).
	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_sandbox_failures_total",
			Help: "Total number of sandbox infrastructure failures",
		},
	)

	// DeliveryFailures counts status updates that could not be delivered.
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_delivery_failures_total",
			Help: "Total number of failed result deliveries",
		},
		[]string{"status"},
	)

	// LeaderboardCredits counts points awarded by difficulty.
	LeaderboardCredits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_leaderboard_credits_total",
			Help: "Total number of leaderboard credits",
		},
		[]string{"difficulty"},
	)

	// HTTPRequestDuration tracks API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
