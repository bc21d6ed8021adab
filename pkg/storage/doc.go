/*
Package storage provides the BoltDB-backed run registry.

The registry is a small embedded database in the operator's home
directory that maps every pipeline run to its run directory on the
shared filesystem. The CLI resolves "the newest run of job X" through
it without globbing log directories, and keeps a durable history of
final counts after run directories are rotated away.

# Architecture

	┌────────────────── RUN REGISTRY ───────────────────┐
	│                                                    │
	│  File: ~/.slurm-pipeline.db                        │
	│  Override: properties.state_db                     │
	│                                                    │
	│  ┌──────────────────────────────────────────────┐  │
	│  │ bucket: runs                                 │  │
	│  │                                              │  │
	│  │  key                          value          │  │
	│  │  ghs-prep/2024-05-17--09-30   RunRecord JSON │  │
	│  │  ghs-prep/2024-05-18--11-02   RunRecord JSON │  │
	│  │  merge/2024-05-18--11-40      RunRecord JSON │  │
	│  └──────────────────────────────────────────────┘  │
	│                                                    │
	│  Keys embed the run start timestamp, so a cursor   │
	│  prefix scan over <job>/ yields runs in            │
	│  chronological order and the last entry is the     │
	│  latest run.                                       │
	└────────────────────────────────────────────────────┘

# Locking

The control plane opens the registry read-write and holds the handle
for the whole run. Concurrent CLI invocations open read-only with a
one second lock timeout; when the daemon holds the write lock the CLI
falls back to mtime-based run directory discovery (pkg/state).

# Usage

	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := &storage.RunRecord{Job: "ghs-prep", Dir: dir.Root, StartedAt: start}
	if err := store.SaveRun(rec); err != nil {
		return err
	}

	latest, err := store.LatestRun("ghs-prep")

# Integration Points

  - pkg/scheduler: records each run at start and finish
  - cmd/slurm-pipeline: run directory resolution, the runs command
*/
package storage
