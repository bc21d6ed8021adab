/*
Package scheduler drives one pipeline job through the cluster until
every work package has either succeeded or terminally failed.

The scheduler owns the full lifecycle of a job's work packages: it reads
the parameter bundles, sizes each package through the resource policy,
submits packages with identical requests as bounded array jobs, polls
the cluster, classifies every observed status, retries with scaled
resources, and persists a durable queue snapshot after every pass.

# Architecture

One Scheduler runs one job; jobs of a configuration are processed
sequentially by the daemon. The loop is single-threaded on purpose: all
parallelism lives in the cluster, and the control plane only reconciles
observed cluster state with its queue.

	┌─────────────────────────────────────────────────────────────┐
	│                         Run(ctx)                            │
	│                                                             │
	│  initQueue ──► init-failure check ──► notifyStart           │
	│      │                                                      │
	│      ▼                                                      │
	│  ┌──────────────── while PENDING work ─────────────────┐    │
	│  │                                                     │    │
	│  │  schedule ──► wait ──► monitor ──► notifyStatus     │    │
	│  │     │                    │                          │    │
	│  │     │ group by           │ classify status,         │    │
	│  │     │ (cpus,mem,         │ requeue or fail,         │    │
	│  │     │  time,partition),  │ persist work.json,       │    │
	│  │     │ chunk, sbatch      │ failure threshold        │    │
	│  └─────┴────────────────────┴──────────────────────────┘    │
	│      │                                                      │
	│      ▼                                                      │
	│  persistResults ──► notifyDone ──► cleanup ──► recordRun    │
	└─────────────────────────────────────────────────────────────┘

# Status classification

Every poll, each scheduled package's cluster status is classified:

	COMPLETED        package succeeded
	TIMEOUT          time limit scaled by exp_backoff_factor, requeued
	OUT_OF_MEMORY    memory scaled by exp_backoff_factor, requeued;
	                 terminal once at the partition's ceiling
	CANCELLED        OOM policy when stderr shows the memory-limit kill,
	                 terminal failure otherwise
	FAILED           terminal failure
	retryable        (BOOT_FAIL, NODE_FAIL, REQUEUED, ...) requeued with
	                 unchanged resources
	active           (PENDING, RUNNING, ...) left alone
	anything else    terminal failure with an unknown-status diagnostic

A requeued package keeps PENDING status, appends its job id to the old
id history, and is picked up by the next schedule pass. Tries counts
submissions: with max_retries 3 a package is submitted at most 4 times.

# Failure threshold

Two failure rates can abort a run early. The init rate is checked once
after queue initialization; the runtime rate after every monitor pass,
excluding init failures and only once failure_threshold_activation
packages were processed. A tripped threshold panics the run: queued
packages fail immediately, scheduled ones are cancelled best-effort,
and the loop drains.

# Consumers

The cluster, chat sink, and run registry are consumed through small
interfaces so tests can run the full loop against fakes:

	sched, err := scheduler.New(job, props,
		scheduler.WithNotifier(notify.NewSlack(channel, token)),
		scheduler.WithRecorder(store),
	)
	if err != nil {
		return err
	}
	return sched.Run(ctx)

Without options, New wires the exec-backed slurm client and the
production resource policy. The clock and the poll sleep are injectable
for deterministic tests.

# Integration Points

  - pkg/slurm: submission, status polling, cancellation, hard limits
  - pkg/policy: per-package resource resolution during queue init
  - pkg/state: run directory layout and atomic work.json snapshots
  - pkg/notify: start/status/done chat messages
  - pkg/storage: run registry records for the operator CLI
  - pkg/metrics: submission/retry/poll counters and package gauges
*/
package scheduler
