package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchbridge_commands_total",
		Help: "Total number of bridge commands handled, by operation and result status.",
	}, []string{"operation", "status"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sketchbridge_command_seconds",
		Help:    "Time spent handling a bridge command.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ImportFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchbridge_import_failures_total",
		Help: "Total number of rejected import commands, by error code.",
	}, []string{"code"})

	ImportTasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sketchbridge_import_tasks_active",
		Help: "Current number of imports handed to the editor and not yet finished.",
	})

	ImportTasksFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchbridge_import_tasks_finished_total",
		Help: "Total number of imports that reached a terminal state.",
	}, []string{"state"})

	UnityCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sketchbridge_unity_command_seconds",
		Help:    "Round-trip latency of commands sent to the Unity editor.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	UnityCommandErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchbridge_unity_command_errors_total",
		Help: "Total number of failed commands sent to the Unity editor.",
	}, []string{"command"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchbridge_rate_limited_total",
		Help: "Total number of requests rejected by a rate limiter.",
	}, []string{"transport"})

	TaskStoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sketchbridge_task_store_errors_total",
		Help: "Total number of failed task store writes.",
	})
)
