package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retry reasons recorded in RetriesTotal.
const (
	ReasonTimeout = "timeout"
	ReasonOOM     = "oom"
	ReasonCluster = "cluster"
)

var (
	// Submission metrics
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurm_pipeline_submissions_total",
			Help: "Total number of sbatch submissions by job",
		},
		[]string{"job"},
	)

	SubmissionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurm_pipeline_submission_errors_total",
			Help: "Total number of failed sbatch submissions by job",
		},
		[]string{"job"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurm_pipeline_retries_total",
			Help: "Total number of work package retries by job and reason",
		},
		[]string{"job", "reason"},
	)

	// Queue metrics
	WorkPackages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slurm_pipeline_work_packages",
			Help: "Current number of work packages by job and status",
		},
		[]string{"job", "status"},
	)

	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slurm_pipeline_poll_cycles_total",
			Help: "Total number of completed poll cycles by job",
		},
		[]string{"job"},
	)

	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slurm_pipeline_poll_duration_seconds",
			Help:    "Duration of a single monitor pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// Notification metrics
	NotifyErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slurm_pipeline_notify_errors_total",
			Help: "Total number of failed Slack notifications",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(SubmissionErrorsTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(WorkPackages)
	prometheus.MustRegister(PollCyclesTotal)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(NotifyErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
