package scheduler

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/eubucco/slurm-pipeline/pkg/metrics"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// oomStderrMarker appears in a task's stderr when the cluster kills it
// for exceeding its memory allocation but accounts it as CANCELLED.
const oomStderrMarker = "Exceeded job memory limit"

// monitor polls every scheduled package and applies the classification
// table: COMPLETED succeeds, TIMEOUT and OUT_OF_MEMORY requeue with
// scaled resources, retryable interruptions requeue unchanged, FAILED
// and unknown statuses decommission, active statuses are left alone.
// A status query error decommissions that one package and never aborts
// the pass. Afterwards the queue snapshot is persisted once and the
// failure threshold is evaluated.
func (s *Scheduler) monitor(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PollDuration, s.job.Name)

	s.logger.Info().Msgf("Monitoring remaining %d/%d work packages...", len(s.scheduledWork()), s.nTotal)

	for _, p := range s.scheduledWork() {
		status, err := s.cluster.Status(ctx, p.JobID)
		if err != nil {
			s.logger.Error().Msgf("Failed to determine Slurm job status: %v", err)
			s.decommission(p, err.Error())
			continue
		}
		p.SlurmStatus = status

		switch {
		case status == slurm.StatusCompleted:
			s.processSuccess(p)
		case status == slurm.StatusTimeout:
			s.processTimeout(p)
		case status == slurm.StatusOutOfMemory:
			s.processOOM(p)
		case status.IsRetryable():
			s.requeue(p, metrics.ReasonCluster)
		case status == slurm.StatusFailed:
			s.processFailure(p)
		case status == slurm.StatusCancelled:
			s.processCancellation(p)
		case status.IsActive():
			// still owned by the cluster
		default:
			s.processUnknownStatus(p)
		}
	}

	s.persistWork()
	s.updateMetrics()
	metrics.PollCyclesTotal.WithLabelValues(s.job.Name).Inc()

	if s.runtimeFailureThresholdReached() {
		s.logger.Error().Msgf("Failure threshold of %v reached. Cancelling all Slurm jobs and aborting the pipeline run...", s.props.FailureThreshold)
		metrics.UpdateComponent(s.job.Name, false, "failure threshold exceeded")
		s.panic(ctx)
		return
	}
	metrics.UpdateComponent(s.job.Name, true, s.progress())
}

func (s *Scheduler) processSuccess(p *work.Package) {
	p.Status = work.StatusSucceeded
	s.readPeakMem(p)
	s.logger.Debug().Msgf("Job %s (%s) succeeded. Removing job from queue.", p.Name, p.JobID)
}

func (s *Scheduler) processFailure(p *work.Package) {
	s.decommission(p, "")
	s.logger.Error().Msgf("Unexpected error occurred for job %s (%s). Removing job from queue.", p.Name, p.JobID)
}

// processCancellation distinguishes operator cancellations from the
// cluster killing a job over its memory allocation, which some
// accounting versions report as CANCELLED rather than OUT_OF_MEMORY.
func (s *Scheduler) processCancellation(p *work.Package) {
	if s.oomCancellation(p) {
		s.processOOM(p)
		return
	}
	s.decommission(p, "")
	s.logger.Error().Msgf("Job %s (%s) was canceled. Reason unknown. Removing job from queue.", p.Name, p.JobID)
}

func (s *Scheduler) processTimeout(p *work.Package) {
	minutes := int(math.Round(float64(slurm.Minutes(p.Time)) * s.props.ExpBackoffFactor))
	p.Time = strconv.Itoa(minutes)
	s.logger.Error().Msgf("Job %s (%s) ran into timeout. Rescheduling with %gx higher timeout: %s.", p.Name, p.JobID, s.props.ExpBackoffFactor, p.Time)
	s.requeue(p, metrics.ReasonTimeout)
}

// processOOM scales the memory request. The current allocation is the
// explicit request or the partition's per-CPU default; once it reaches
// the partition's ceiling the package cannot grow and is decommissioned.
func (s *Scheduler) processOOM(p *work.Package) {
	maxMem, memPerCPU := slurm.MaxMem, slurm.MemPerCPU
	if p.Partition == "gpu" {
		maxMem, memPerCPU = slurm.GPUMaxMem, slurm.GPUMemPerCPU
	}

	alloc := p.Mem
	if alloc == 0 {
		alloc = p.CPUs * memPerCPU
	}

	if alloc >= maxMem {
		s.logger.Error().Msgf("Job %s (%s) ran out of memory, but has already been allocated the maximum amount of memory (%dMB). Rescheduling not possible. Removing job from queue.", p.Name, p.JobID, maxMem)
		s.decommission(p, "")
		return
	}

	mem := int(math.Round(float64(alloc) * s.props.ExpBackoffFactor))
	if mem > maxMem {
		mem = maxMem
	}
	p.Mem = mem

	s.logger.Error().Msgf("Job %s (%s) ran out of memory. Rescheduling with %gx higher memory limit: %dMB.", p.Name, p.JobID, s.props.ExpBackoffFactor, p.Mem)
	s.requeue(p, metrics.ReasonOOM)
}

func (s *Scheduler) processUnknownStatus(p *work.Package) {
	s.decommission(p, fmt.Sprintf("unknown status: %s", p.SlurmStatus))
	s.logger.Error().Msgf("Unknown Slurm status %s for job %s (%s). Removing job from queue.", p.SlurmStatus, p.Name, p.JobID)
}

func (s *Scheduler) oomCancellation(p *work.Package) bool {
	if p.StderrLog == "" {
		return false
	}
	data, err := os.ReadFile(p.StderrLog)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), oomStderrMarker)
}

// decommission terminally fails a package. Terminal transitions pick up
// the peak memory observed by the profiler when an artifact exists.
func (s *Scheduler) decommission(p *work.Package, errorMsg string) {
	if errorMsg != "" {
		p.ErrorMsg = errorMsg
	}
	p.Status = work.StatusFailed
	s.readPeakMem(p)
}

// requeue returns a package to the queue for resubmission, or
// decommissions it once its submissions are used up. Tries counts
// submissions, so max_retries retries allow max_retries+1 submissions.
func (s *Scheduler) requeue(p *work.Package, reason string) {
	if p.Tries >= s.props.MaxRetries+1 {
		s.logger.Error().Msgf("Work package for %v failed to schedule after %d retries. Removing from queue.", p.Params, s.props.MaxRetries)
		s.decommission(p, "")
		return
	}

	if p.JobID != "" {
		p.OldJobIDs = append(p.OldJobIDs, p.JobID)
		p.JobID = ""
	}
	metrics.RetriesTotal.WithLabelValues(s.job.Name, reason).Inc()
}

func (s *Scheduler) readPeakMem(p *work.Package) {
	if p.MemProfile == "" {
		return
	}
	if peak, ok := work.PeakMem(p.MemProfile); ok {
		p.MaxMem = &peak
	}
}

// panic sweeps the queue after the failure threshold tripped: queued
// packages fail immediately, scheduled ones additionally get a
// best-effort cancel. The main loop then drains naturally.
func (s *Scheduler) panic(ctx context.Context) {
	for _, p := range s.queuedWork() {
		p.ErrorMsg = "Panic! All work packages in queue were canceled."
		p.Status = work.StatusFailed
	}

	for _, p := range s.scheduledWork() {
		p.ErrorMsg = "Panic! All running jobs were canceled."
		p.Status = work.StatusFailed
		if err := s.cluster.Cancel(ctx, p.JobID); err != nil {
			s.logger.Error().Msgf("Failed to cancel Slurm job %s: %v", p.JobID, err)
		}
	}

	s.persistWork()
	s.updateMetrics()
}

// initFailureThresholdReached checks the init failure rate once, right
// after queue initialization, so a broken configuration aborts before
// anything is submitted.
func (s *Scheduler) initFailureThresholdReached() bool {
	if s.nTotal == 0 {
		return false
	}
	rate := float64(s.nInitFailed) / float64(s.nTotal)
	return rate >= s.props.FailureThreshold
}

// runtimeFailureThresholdReached compares the runtime failure rate
// against the threshold. Init failures are excluded from both sides of
// the rate; the check arms only once enough packages were processed.
func (s *Scheduler) runtimeFailureThresholdReached() bool {
	runtimeFailed := len(s.failedWork()) - s.nInitFailed
	processed := len(s.succeededWork()) + runtimeFailed
	if processed < s.props.FailureThresholdActivation || processed == 0 {
		return false
	}

	rate := float64(runtimeFailed) / float64(processed)
	return rate >= s.props.FailureThreshold
}
