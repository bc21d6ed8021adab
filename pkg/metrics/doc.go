/*
Package metrics provides Prometheus instrumentation and health
endpoints for the control plane.

All collectors are registered against the default registry at package
init and exposed over one HTTP listener per daemon, configured via
properties.metrics_addr. Schedulers feed the collectors directly while
they poll; there is no separate sampling loop.

# Architecture

	┌──────────────────── OBSERVABILITY ─────────────────────┐
	│                                                         │
	│  ┌───────────────┐     updates      ┌───────────────┐   │
	│  │ pkg/scheduler │ ───────────────► │  collectors   │   │
	│  │  (per job)    │                  │  (registry)   │   │
	│  └───────┬───────┘                  └───────┬───────┘   │
	│          │ UpdateComponent                  │           │
	│          ▼                                  ▼           │
	│  ┌───────────────┐                  ┌───────────────┐   │
	│  │ HealthChecker │                  │   promhttp    │   │
	│  └───────┬───────┘                  └───────┬───────┘   │
	│          │                                  │           │
	│          ▼                                  ▼           │
	│   /health /ready /live                  /metrics        │
	│          └──────────── one mux ─────────────┘           │
	└─────────────────────────────────────────────────────────┘

# Collectors

	slurm_pipeline_submissions_total{job}         sbatch calls
	slurm_pipeline_submission_errors_total{job}   failed sbatch calls
	slurm_pipeline_retries_total{job,reason}      requeues (timeout|oom|cluster)
	slurm_pipeline_work_packages{job,status}      queue composition gauge
	slurm_pipeline_poll_cycles_total{job}         completed poll cycles
	slurm_pipeline_poll_duration_seconds{job}     monitor pass latency
	slurm_pipeline_notify_errors_total            failed Slack posts

# Health

The health endpoints mirror scheduler state: config and registry are
the readiness-critical components registered at boot, and every job
scheduler maintains one component entry with its processed counts.
A tripped failure threshold flips the job component unhealthy, which
turns /health 503 while /ready stays 200.

# Usage

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PollDuration, job)
*/
package metrics
