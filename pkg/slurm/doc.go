/*
Package slurm wraps the cluster's batch scheduler CLI behind a shell-free,
testable seam. Every external call the control plane makes — submitting,
polling, cancelling, listing — goes through this package.

# Architecture

	┌─────────────────── CLUSTER ADAPTER ────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐         │
	│  │               Client                        │         │
	│  │  Submit / SubmitWorkfile / Status /         │         │
	│  │  Cancel / Squeue                            │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │             SubmitConfig                    │         │
	│  │  - defaults (nodes, ntasks, log patterns)   │         │
	│  │  - partition/gres/QoS inference             │         │
	│  │  - ValidateAndAdjust: clamp CPUs/mem,       │         │
	│  │    drop arrays on the io partition          │         │
	│  │  - Args(): --flag=value argument array      │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐         │
	│  │               Runner                        │         │
	│  │  exec.CommandContext + captured buffers     │         │
	│  │  (tests inject fakes here)                  │         │
	│  └──────────────────┬─────────────────────────┘         │
	│                     │                                    │
	│        sbatch / sacct / scancel / squeue                 │
	└──────────────────────────────────────────────────────────┘

# Submission

Submissions wrap the user program in one of two embedded shell templates:
sbatch.sh for plain runs and sbatch-workfile.sh for array runs that
consume a JSON workfile. The templates activate the configured conda
environment and, for workfiles, run each task under the memory profiler.
SubmitWorkfile returns the per-task ids "<jobID>_<i>" for accepted
arrays; on the io partition (which rejects arrays) the array range is
dropped during ValidateAndAdjust, a single job runs the bundles
sequentially, and the returned id list is empty.

Hard limits are enforced by clamping, not rejection: CPU requests cap at
MaxCPUs and memory at MaxMem (GPUMaxMem on the gpu partition), each with
a warning log. QoS derives from the requested wall time — short up to a
day, medium up to a week, long beyond or when no limit is set — with a
"gpu" prefix on the gpu partition and the fixed "io" class on io.

# Status

Status runs sacct with --parsable2 and reads the first token of the
first line. Three outcomes never surface as errors: an empty record
(the job is not yet visible) counts as StatusPending, an unrecognised
token becomes StatusUnknown, and recognised tokens map onto the closed
Status enumeration. Only a non-zero sacct exit returns *Error, which
preserves the CLI's stderr verbatim.

# Time limits

ParseTime implements the sbatch time grammar: "30" is thirty minutes,
"5:30" five minutes thirty seconds, "01:00:00" an hour, "1-10" a day and
ten hours. Minutes rounds a limit to whole minutes for QoS selection and
timeout rescaling.
*/
package slurm
