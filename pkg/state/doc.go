/*
Package state persists pipeline run state as plain JSON on a shared
filesystem.

Every scheduler run owns a timestamped directory under the job's log
directory. The queue snapshot inside it is the single source of truth
that the operator CLI reads while the control plane is running on a
different node.

# Layout

	<log_dir>/
	└── <job>-2006-01-02--15-04-05/
	    ├── work.json                  full queue, rewritten every poll
	    ├── succeeded-work.json        final snapshot per terminal status
	    ├── failed-work.json
	    ├── params-retry.json          written by the retry command
	    ├── workdir/
	    │   ├── <uuid>-workfile.json   param batches for array submissions
	    │   ├── sbatch.sh              materialised submission templates
	    │   └── sbatch-workfile.sh
	    └── task-logs/
	        ├── <jobid>_<task>.stdout
	        ├── <jobid>_<task>.stderr
	        └── <jobid>_<task>.dat     mprof memory profiles

# Snapshot Writes

All snapshots go through WriteJSON: encode with four-space indent and
no HTML escaping, write to <path>.tmp, rename over the target. Readers
on other nodes either see the previous snapshot or the new one, never
a torn file.

# CLI State

The start command records the submitted control plane in
~/.slurm-pipeline so later invocations (abort, squeue, retry, log
inspection) can find the active config, account, and job id without
arguments.

# Integration Points

  - pkg/scheduler: creates run dirs, writes work.json and workfiles
  - pkg/storage: registry entries point at RunDir roots
  - cmd/slurm-pipeline: reads snapshots and the CLI state file
*/
package state
