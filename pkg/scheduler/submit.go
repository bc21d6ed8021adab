package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/eubucco/slurm-pipeline/pkg/metrics"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/state"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// resourceKey groups queued packages that can share one array job.
type resourceKey struct {
	cpus      int
	mem       int
	time      string
	partition string
}

// schedule submits every queued package. Packages with identical
// resource requests share an array submission, split into chunks no
// larger than the cluster's array limit.
func (s *Scheduler) schedule(ctx context.Context) {
	queued := s.queuedWork()
	s.logger.Info().Msgf("Scheduling %d/%d new work packages...", len(queued), s.nTotal)
	if len(queued) == 0 {
		return
	}

	for _, group := range groupByResources(queued) {
		for _, chunk := range chunks(group, slurm.MaxArraySize) {
			s.submitChunk(ctx, chunk)
		}
	}

	s.persistWork()
}

// submitChunk persists the chunk's parameters as a workfile and submits
// it as one array job. On success every package is moved to scheduled
// with its per-task id; on submission failure the whole chunk is
// decommissioned with the cluster's error text.
func (s *Scheduler) submitChunk(ctx context.Context, chunk []*work.Package) {
	lead := chunk[0]
	s.logger.Debug().Msgf("Scheduling Slurm job for %d work packages with %d cpus and a time limit of %s...", len(chunk), lead.CPUs, lead.Time)

	params := make([]work.Params, 0, len(chunk))
	for _, p := range chunk {
		params = append(params, p.Params)
	}

	workfile, err := state.WriteWorkfile(s.dir.Workdir, params)
	if err != nil {
		s.logger.Error().Msgf("Failed to persist workfile: %v", err)
		for _, p := range chunk {
			s.decommission(p, err.Error())
		}
		return
	}

	req := slurm.SubmitRequest{
		Script:   s.job.Script,
		CondaEnv: s.props.CondaEnv,
		Workfile: workfile,
		Config: slurm.SubmitConfig{
			CPUs:      lead.CPUs,
			Mem:       lead.Mem,
			Time:      lead.Time,
			Partition: lead.Partition,
			Array:     fmt.Sprintf("0-%d", len(chunk)-1), // --array=0-0 is valid
			JobName:   s.job.Name,
			Account:   s.props.Account,
			LogDir:    s.dir.Root,
			Error:     filepath.Join("task-logs", "%A_%a.stderr"),
			Output:    filepath.Join("task-logs", "%A_%a.stdout"),
		},
	}

	jobID, taskIDs, err := s.cluster.SubmitWorkfile(ctx, req)
	if err != nil {
		s.logger.Error().Msgf("Failed to submit Slurm job array: %v", err)
		metrics.SubmissionErrorsTotal.WithLabelValues(s.job.Name).Inc()
		for _, p := range chunk {
			s.decommission(p, err.Error())
		}
		return
	}
	metrics.SubmissionsTotal.WithLabelValues(s.job.Name).Inc()

	for i, p := range chunk {
		// Partitions without array support return no task ids; synthetic
		// per-index ids keep the log paths disambiguated.
		taskID := fmt.Sprintf("%s_%d", jobID, i)
		if i < len(taskIDs) {
			taskID = taskIDs[i]
		}

		p.Tries++
		p.JobID = taskID
		p.StdoutLog = filepath.Join(s.dir.TaskLogs, taskID+".stdout")
		p.StderrLog = filepath.Join(s.dir.TaskLogs, taskID+".stderr")
		p.MemProfile = filepath.Join(s.dir.TaskLogs, fmt.Sprintf("mprofile_%s.dat", taskID))
	}
}

// groupByResources partitions packages by their resource request in
// first-seen order, so any two packages of one group can share an array
// submission.
func groupByResources(wps []*work.Package) [][]*work.Package {
	var order []resourceKey
	groups := make(map[resourceKey][]*work.Package)

	for _, p := range wps {
		k := resourceKey{cpus: p.CPUs, mem: p.Mem, time: p.Time, partition: p.Partition}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	out := make([][]*work.Package, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

// chunks yields successive n-sized package chunks according to the
// cluster's maximum array size.
func chunks(wps []*work.Package, n int) [][]*work.Package {
	var out [][]*work.Package
	for i := 0; i < len(wps); i += n {
		end := i + n
		if end > len(wps) {
			end = len(wps)
		}
		out = append(out, wps[i:end])
	}
	return out
}
