/*
Package policy resolves the effective resource request for a work
package before it is submitted to the cluster.

Resolution starts from the job's default resources (cpus required, the
rest optional) and walks the configured special cases in order. Each
special case names a file rule: a path template with {{var}}
placeholders filled from the package parameters, and an optional byte
size window. When the measured on-disk size of the resolved path falls
inside the window, that case's resource overrides replace the matching
default fields and resolution stops. First match wins.

	resources:
	  cpus: 2
	  time: "04:00:00"
	special_cases:
	  - files:
	      path: /data/{{country}}/{{city}}.gpkg
	      size_min: 500000000
	    resources:
	      cpus: 16
	      mem: 120000
	      time: "1-00:00:00"

Paths may name a regular file, a directory (sizes are summed
recursively) or a glob pattern (sizes are summed over all matches). A
path that resolves to nothing, or a placeholder with no matching
parameter, is an error: the scheduler converts it into a pre-failed
work package carrying the diagnostic, and the run continues without
ever submitting that bundle.
*/
package policy
