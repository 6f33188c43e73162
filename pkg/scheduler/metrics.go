package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_jobs_runs_total",
		Help: "Completed job runs by terminal status.",
	}, []string{"module", "job", "status"})

	coalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_jobs_coalesced_total",
		Help: "Scheduled ticks skipped because an instance was still pending.",
	}, []string{"module", "job"})

	pausedSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedeater_jobs_paused_skips_total",
		Help: "Scheduled ticks skipped while the module was paused by invalid settings.",
	}, []string{"module", "job"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedeater_jobs_duration_seconds",
		Help:    "Job run duration from start to terminal state.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"module", "job"})
)
