package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "browserq_jobs_submitted_total",
		Help: "Total number of jobs created or overwritten",
	})

	JobsReusedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "browserq_jobs_reused_total",
		Help: "Total number of submissions answered with an existing job",
	})

	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "browserq_jobs_finished_total",
		Help: "Total number of jobs that reached a terminal status",
	}, []string{"status"})

	JobRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "browserq_job_run_duration_seconds",
		Help:    "Time spent in the agent per job",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "browserq_running_jobs",
		Help: "Jobs currently executing in this process",
	})

	QueuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "browserq_queued_jobs",
		Help: "Jobs waiting for a free worker",
	})

	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "browserq_sweeps_total",
		Help: "Timeout sweeps by outcome",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
