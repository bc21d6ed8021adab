package scheduler

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/log"
	"github.com/eubucco/slurm-pipeline/pkg/metrics"
	"github.com/eubucco/slurm-pipeline/pkg/policy"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/state"
	"github.com/eubucco/slurm-pipeline/pkg/storage"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

const (
	// fastPollWindow is the boot phase of a run during which the queue is
	// polled at fastPollInterval instead of the configured poll_interval,
	// so small runs finish without waiting out a full poll cycle.
	fastPollWindow   = 5 * time.Minute
	fastPollInterval = 3 * time.Second

	// statusNotifyPolls throttles chat status updates to every Nth poll.
	statusNotifyPolls = 25
)

// Cluster is the scheduler's view of the batch cluster. It is satisfied
// by *slurm.Client; tests substitute a fake.
type Cluster interface {
	SubmitWorkfile(ctx context.Context, req slurm.SubmitRequest) (jobID string, taskIDs []string, err error)
	Status(ctx context.Context, jobID string) (slurm.Status, error)
	Cancel(ctx context.Context, jobID string) error
}

// Notifier is the chat sink used for progress messages. It is satisfied
// by *notify.Slack. Notifier failures are logged and swallowed; they
// never affect scheduling.
type Notifier interface {
	Send(ctx context.Context, text, threadTS string) (ts, channel string, err error)
	Update(ctx context.Context, text, channel, ts string) error
}

// Recorder persists run records into the run registry. It is satisfied
// by *storage.RunStore; a nil Recorder disables registry bookkeeping.
type Recorder interface {
	SaveRun(rec *storage.RunRecord) error
}

// Resolver computes the effective resource request for one parameter
// bundle. The default is policy.Resolve.
type Resolver func(job config.Job, params work.Params) (config.Resources, error)

// Scheduler drives one pipeline job to completion: it queues the work
// packages, submits them as array chunks, polls the cluster, classifies
// outcomes, retries with scaled resources, and persists every state
// change into the run directory. The loop is strictly sequential; all
// parallelism lives in the cluster.
type Scheduler struct {
	job   config.Job
	props config.Properties

	cluster  Cluster
	notifier Notifier
	recorder Recorder
	runner   slurm.Runner
	resolver Resolver

	now   func() time.Time
	sleep func(time.Duration)

	configPath string
	dir        state.RunDir
	startTime  time.Time

	packages    []*work.Package
	nTotal      int
	nInitFailed int

	threadTS      string
	statusTS      string
	statusChannel string

	logger zerolog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCluster replaces the slurm-backed cluster adapter.
func WithCluster(c Cluster) Option {
	return func(s *Scheduler) { s.cluster = c }
}

// WithNotifier sets the chat sink. Without one, messages are logged and
// dropped.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithRecorder sets the run registry.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithRunner replaces the command runner used for param generators.
func WithRunner(r slurm.Runner) Option {
	return func(s *Scheduler) { s.runner = r }
}

// WithResolver replaces the resource policy.
func WithResolver(r Resolver) Option {
	return func(s *Scheduler) { s.resolver = r }
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleep replaces the poll sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithConfigPath records the configuration file in the run registry.
func WithConfigPath(path string) Option {
	return func(s *Scheduler) { s.configPath = path }
}

// New prepares a run for the given job: it creates the run directory
// under the job's log_dir and captures the start time. Submission only
// happens once Run is called.
func New(job config.Job, props config.Properties, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		job:      job,
		props:    props,
		resolver: policy.Resolve,
		now:      time.Now,
		sleep:    time.Sleep,
		logger:   log.WithJob(job.Name),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startTime = s.now()

	dir, err := state.NewRunDir(job.LogDir, job.Name, s.startTime)
	if err != nil {
		return nil, err
	}
	s.dir = dir

	if s.cluster == nil {
		s.cluster = slurm.NewClient(slurm.WithTemplateDir(filepath.Join(dir.Workdir, "templates")))
	}
	if s.runner == nil {
		s.runner = slurm.NewExecRunner()
	}

	metrics.RegisterComponent(job.Name, true, "run initialized")
	return s, nil
}

// Dir returns the run directory layout of this run.
func (s *Scheduler) Dir() state.RunDir {
	return s.dir
}

// Run executes the job until every work package has either succeeded or
// terminally failed. Notifier and persistence failures are logged and
// swallowed; only queue initialization errors and context cancellation
// abort the run.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.initQueue(ctx); err != nil {
		return err
	}
	s.recordRun(nil)

	if s.initFailureThresholdReached() {
		s.logger.Error().Msgf("Failure threshold of %v reached during queue initialization. Aborting the pipeline run...", s.props.FailureThreshold)
		metrics.UpdateComponent(s.job.Name, false, "failure threshold exceeded")
		s.panic(ctx)
	}
	s.notifyStart(ctx)

	for len(s.pendingWork()) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.schedule(ctx)
		s.wait()
		s.monitor(ctx)
		s.notifyStatus(ctx)
	}

	s.persistResults()
	s.notifyDone(ctx)
	s.cleanup()

	finished := s.now()
	s.recordRun(&finished)
	return nil
}

// wait sleeps until the next poll. During the first minutes of a run the
// cadence is shortened so freshly submitted jobs are observed quickly.
func (s *Scheduler) wait() {
	interval := time.Duration(s.props.PollInterval) * time.Second
	if s.duration() < fastPollWindow {
		interval = fastPollInterval
	}

	s.logger.Info().Msgf("Waiting %s until new poll...", interval)
	s.sleep(interval)
}

func (s *Scheduler) duration() time.Duration {
	return s.now().Sub(s.startTime)
}

// everyNPolls is true when the run duration, rounded to the nearest
// poll, lands on a multiple of n polls. Unlike a counter it tolerates
// missed iterations.
func (s *Scheduler) everyNPolls(n int) bool {
	base := float64(s.props.PollInterval)
	rounded := base * math.Round(s.duration().Seconds()/base)
	return math.Mod(rounded, base*float64(n)) == 0
}

func (s *Scheduler) pendingWork() []*work.Package   { return s.inStatus(work.StatusPending) }
func (s *Scheduler) succeededWork() []*work.Package { return s.inStatus(work.StatusSucceeded) }
func (s *Scheduler) failedWork() []*work.Package    { return s.inStatus(work.StatusFailed) }

func (s *Scheduler) inStatus(status work.Status) []*work.Package {
	var out []*work.Package
	for _, p := range s.packages {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// queuedWork returns the pending packages awaiting submission.
func (s *Scheduler) queuedWork() []*work.Package {
	var out []*work.Package
	for _, p := range s.packages {
		if p.Queued() {
			out = append(out, p)
		}
	}
	return out
}

// scheduledWork returns the pending packages with a live cluster job.
func (s *Scheduler) scheduledWork() []*work.Package {
	var out []*work.Package
	for _, p := range s.packages {
		if p.Scheduled() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Scheduler) encodeWork() []work.Record {
	records := make([]work.Record, 0, len(s.packages))
	for _, p := range s.packages {
		records = append(records, p.Encode())
	}
	return records
}

// persistWork snapshots the full queue to work.json. The write is
// atomic, so concurrent readers never observe a partial state.
func (s *Scheduler) persistWork() {
	if err := state.WriteWork(s.dir.Root, s.encodeWork()); err != nil {
		s.logger.Error().Msgf("Failed to persist work state: %v", err)
	}
}

// persistResults writes the succeeded and failed partitions at run end.
func (s *Scheduler) persistResults() {
	s.logger.Info().Msg("All pending work processed. Persisting results...")

	records := s.encodeWork()
	for _, status := range []work.Status{work.StatusSucceeded, work.StatusFailed} {
		if err := state.WriteWorkStatus(s.dir.Root, records, status); err != nil {
			s.logger.Error().Msgf("Failed to persist %s work state: %v", status, err)
		}
	}
}

func (s *Scheduler) cleanup() {
	s.logger.Info().Msg("Cleaning up temporary resources...")
	if s.props.KeepWorkDir {
		return
	}
	if err := os.RemoveAll(s.dir.Workdir); err != nil {
		s.logger.Error().Msgf("Failed to remove workdir: %v", err)
	}
}

// recordRun upserts this run into the registry, keyed by job and start
// time. A nil finished time marks the run as still in flight.
func (s *Scheduler) recordRun(finished *time.Time) {
	if s.recorder == nil {
		return
	}

	rec := &storage.RunRecord{
		Job:        s.job.Name,
		Dir:        s.dir.Root,
		Config:     s.configPath,
		StartedAt:  s.startTime,
		FinishedAt: finished,
		Total:      s.nTotal,
		Succeeded:  len(s.succeededWork()),
		Failed:     len(s.failedWork()),
	}
	if err := s.recorder.SaveRun(rec); err != nil {
		s.logger.Error().Msgf("Failed to record run in registry: %v", err)
	}
}

// updateMetrics refreshes the per-status package gauges.
func (s *Scheduler) updateMetrics() {
	job := s.job.Name
	metrics.WorkPackages.WithLabelValues(job, "pending").Set(float64(len(s.pendingWork())))
	metrics.WorkPackages.WithLabelValues(job, "succeeded").Set(float64(len(s.succeededWork())))
	metrics.WorkPackages.WithLabelValues(job, "failed").Set(float64(len(s.failedWork())))
}

func (s *Scheduler) progress() string {
	return fmt.Sprintf("%d/%d work packages processed", s.nTotal-len(s.pendingWork()), s.nTotal)
}
