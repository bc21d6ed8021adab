package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/storage"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// fakeCluster scripts cluster behavior per test. Submissions are
// recorded after the same request adjustment the real client applies,
// so tests observe the flags sbatch would have received.
type fakeCluster struct {
	submissions []slurm.SubmitRequest
	cancelled   []string
	statusFn    func(jobID string) (slurm.Status, error)
	submitErr   error
	nextJobID   int
}

func (f *fakeCluster) SubmitWorkfile(ctx context.Context, req slurm.SubmitRequest) (string, []string, error) {
	if f.submitErr != nil {
		return "", nil, f.submitErr
	}

	req.Config.ValidateAndAdjust()
	f.submissions = append(f.submissions, req)

	f.nextJobID++
	jobID := strconv.Itoa(1000 + f.nextJobID)

	taskIDs := make([]string, 0, req.Config.ArraySize())
	for i := 0; i < req.Config.ArraySize(); i++ {
		taskIDs = append(taskIDs, fmt.Sprintf("%s_%d", jobID, i))
	}
	return jobID, taskIDs, nil
}

func (f *fakeCluster) Status(ctx context.Context, jobID string) (slurm.Status, error) {
	if f.statusFn != nil {
		return f.statusFn(jobID)
	}
	return slurm.StatusCompleted, nil
}

func (f *fakeCluster) Cancel(ctx context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type sentMsg struct {
	text     string
	threadTS string
}

type updatedMsg struct {
	text    string
	channel string
	ts      string
}

type fakeNotifier struct {
	sent    []sentMsg
	updated []updatedMsg
}

func (f *fakeNotifier) Send(ctx context.Context, text, threadTS string) (string, string, error) {
	f.sent = append(f.sent, sentMsg{text: text, threadTS: threadTS})
	return fmt.Sprintf("%d.100", len(f.sent)), "C024BE91L", nil
}

func (f *fakeNotifier) Update(ctx context.Context, text, channel, ts string) error {
	f.updated = append(f.updated, updatedMsg{text: text, channel: channel, ts: ts})
	return nil
}

type fakeRecorder struct {
	saved []storage.RunRecord
}

func (f *fakeRecorder) SaveRun(rec *storage.RunRecord) error {
	f.saved = append(f.saved, *rec)
	return nil
}

func testProps() config.Properties {
	return config.Properties{
		CondaEnv:                   "slurm-pipeline",
		Account:                    "eubucco",
		MaxRetries:                 3,
		PollInterval:               60,
		ExpBackoffFactor:           2,
		FailureThreshold:           1,
		FailureThresholdActivation: 10,
		KeepWorkDir:                true,
	}
}

func writeParamFile(t *testing.T, path string, params []work.Params) {
	t.Helper()
	data, err := json.Marshal(params)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func cityParams(cities ...string) []work.Params {
	params := make([]work.Params, 0, len(cities))
	for _, c := range cities {
		params = append(params, work.Params{"city": c})
	}
	return params
}

func testJob(t *testing.T, params []work.Params) config.Job {
	t.Helper()
	dir := t.TempDir()
	paramFile := filepath.Join(dir, "cities.json")
	writeParamFile(t, paramFile, params)

	return config.Job{
		Name:       "ghs-prep",
		Script:     "process.py",
		LogDir:     filepath.Join(dir, "logs"),
		Resources:  config.Resources{CPUs: 1, Time: "01:00:00"},
		ParamFiles: []string{paramFile},
	}
}

// sizeByCity gives paris a small request and everything else a bigger
// one, so queues split into two resource classes.
func sizeByCity(job config.Job, params work.Params) (config.Resources, error) {
	res := config.Resources{CPUs: 2, Time: "02:00:00", Partition: job.Resources.Partition}
	if params["city"] == "paris" {
		res = config.Resources{CPUs: 1, Time: "01:00:00", Partition: job.Resources.Partition}
	}
	return res, nil
}

func assertInvariants(t *testing.T, s *Scheduler, maxRetries int) {
	t.Helper()

	total := len(s.pendingWork()) + len(s.succeededWork()) + len(s.failedWork())
	assert.Equal(t, s.nTotal, total, "package count must be conserved")

	for _, p := range s.packages {
		assert.LessOrEqual(t, p.Tries, maxRetries+1, "tries of %s exceed the submission budget", p.Name)

		jobBit := 0
		if p.JobID != "" {
			jobBit = 1
		}
		assert.Equal(t, p.Tries, len(p.OldJobIDs)+jobBit, "job id history of %s out of sync", p.Name)
	}
}

// TestRunTwoResourceClasses submits three packages in two resource
// classes and observes one success and two failures.
func TestRunTwoResourceClasses(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid", "berlin"))
	fc := &fakeCluster{}
	fr := &fakeRecorder{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		if jobID == "1001_0" {
			return slurm.StatusCompleted, nil
		}
		return slurm.StatusFailed, nil
	}

	s, err := New(job, testProps(),
		WithCluster(fc),
		WithRecorder(fr),
		WithResolver(sizeByCity),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 2)
	assert.Equal(t, 1, fc.submissions[0].Config.CPUs)
	assert.Equal(t, "01:00:00", fc.submissions[0].Config.Time)
	assert.Equal(t, "0-0", fc.submissions[0].Config.Array)
	assert.Equal(t, 2, fc.submissions[1].Config.CPUs)
	assert.Equal(t, "02:00:00", fc.submissions[1].Config.Time)
	assert.Equal(t, "0-1", fc.submissions[1].Config.Array)
	for _, req := range fc.submissions {
		assert.Equal(t, "process.py", req.Script)
		assert.Equal(t, "eubucco", req.Config.Account)
		assert.Equal(t, "ghs-prep", req.Config.JobName)
		assert.Equal(t, "short", req.Config.QOS)
		assert.NotEmpty(t, req.Workfile)
	}

	succeeded, err := work.LoadFile(filepath.Join(s.dir.Root, "succeeded-work.json"))
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, "ghs-prep.0", succeeded[0].Name)

	failed, err := work.LoadFile(filepath.Join(s.dir.Root, "failed-work.json"))
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "1002_0", *failed[0].JobID)
	assert.Equal(t, "1002_1", *failed[1].JobID)

	workfiles, err := filepath.Glob(filepath.Join(s.dir.Workdir, "*-workfile.json"))
	require.NoError(t, err)
	assert.Len(t, workfiles, 2)

	require.Len(t, fr.saved, 2)
	assert.Nil(t, fr.saved[0].FinishedAt)
	require.NotNil(t, fr.saved[1].FinishedAt)
	assert.Equal(t, 3, fr.saved[1].Total)
	assert.Equal(t, 1, fr.saved[1].Succeeded)
	assert.Equal(t, 2, fr.saved[1].Failed)

	assertInvariants(t, s, testProps().MaxRetries)
}

// TestRunIOPartitionDegradation checks that submissions on the io
// partition drop the array range and fall back to synthetic per-index
// job ids for log disambiguation.
func TestRunIOPartitionDegradation(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid", "berlin"))
	job.Resources.Partition = "io"
	fc := &fakeCluster{}

	s, err := New(job, testProps(),
		WithCluster(fc),
		WithResolver(sizeByCity),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 2)
	for _, req := range fc.submissions {
		assert.Empty(t, req.Config.Array)
		assert.Equal(t, "io", req.Config.QOS)
	}

	ids := make([]string, 0, len(s.packages))
	for _, p := range s.packages {
		ids = append(ids, p.JobID)
		assert.Contains(t, p.StdoutLog, p.JobID+".stdout")
		assert.Contains(t, p.StderrLog, p.JobID+".stderr")
	}
	assert.Equal(t, []string{"1001_0", "1002_0", "1002_1"}, ids)
}

// TestRunOOMRetryUntilLimit drives one package through repeated
// out-of-memory kills: the memory request scales each retry and the
// package fails terminally once its submissions are used up.
func TestRunOOMRetryUntilLimit(t *testing.T) {
	job := testJob(t, cityParams("berlin"))
	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		return slurm.StatusOutOfMemory, nil
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 4)
	mems := make([]int, 0, 4)
	for _, req := range fc.submissions {
		mems = append(mems, req.Config.Mem)
	}
	assert.Equal(t, []int{0, 10936, 21872, 43744}, mems)

	p := s.packages[0]
	assert.Equal(t, work.StatusFailed, p.Status)
	assert.Equal(t, 4, p.Tries)
	assert.Equal(t, slurm.StatusOutOfMemory, p.SlurmStatus)
	assert.Equal(t, []string{"1001_0", "1002_0", "1003_0"}, p.OldJobIDs)
	assert.Equal(t, "1004_0", p.JobID)

	assertInvariants(t, s, testProps().MaxRetries)
}

// TestRunFailureThresholdPanic trips the runtime failure threshold and
// expects the panic sweep to fail and cancel everything still in
// flight.
func TestRunFailureThresholdPanic(t *testing.T) {
	cities := make([]string, 100)
	for i := range cities {
		cities[i] = fmt.Sprintf("city-%d", i)
	}
	job := testJob(t, cityParams(cities...))

	props := testProps()
	props.FailureThreshold = 0.25
	props.FailureThresholdActivation = 50

	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		idx, err := strconv.Atoi(strings.SplitN(jobID, "_", 2)[1])
		require.NoError(t, err)
		switch {
		case idx < 40:
			return slurm.StatusCompleted, nil
		case idx < 60:
			return slurm.StatusFailed, nil
		default:
			return slurm.StatusRunning, nil
		}
	}

	s, err := New(job, props, WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 1)
	assert.Equal(t, "0-99", fc.submissions[0].Config.Array)

	assert.Len(t, s.succeededWork(), 40)
	assert.Len(t, s.failedWork(), 60)

	assert.Len(t, fc.cancelled, 40)
	assert.Contains(t, fc.cancelled, "1001_60")
	assert.Contains(t, fc.cancelled, "1001_99")

	panicked := 0
	for _, p := range s.failedWork() {
		if strings.HasPrefix(p.ErrorMsg, "Panic!") {
			panicked++
			assert.Equal(t, "Panic! All running jobs were canceled.", p.ErrorMsg)
			assert.Equal(t, slurm.StatusRunning, p.SlurmStatus)
		}
	}
	assert.Equal(t, 40, panicked)

	assertInvariants(t, s, props.MaxRetries)
}

// TestRunInitFailures turns resolver errors into pre-failed packages
// and reports them below the start message.
func TestRunInitFailures(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid", "berlin"))
	fc := &fakeCluster{}
	fn := &fakeNotifier{}

	resolver := func(job config.Job, params work.Params) (config.Resources, error) {
		if params["city"] == "berlin" {
			return config.Resources{}, fmt.Errorf("failed to measure /data/berlin.gpkg: no such file")
		}
		return job.Resources, nil
	}

	s, err := New(job, testProps(),
		WithCluster(fc),
		WithNotifier(fn),
		WithResolver(resolver),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 1)
	assert.Equal(t, "0-1", fc.submissions[0].Config.Array)

	assert.Len(t, s.succeededWork(), 2)
	failed := s.failedWork()
	require.Len(t, failed, 1)
	assert.Equal(t, "ghs-prep.2", failed[0].Name)
	assert.Contains(t, failed[0].ErrorMsg, "berlin.gpkg")
	assert.Zero(t, failed[0].Tries)

	require.NotEmpty(t, fn.sent)
	assert.Contains(t, fn.sent[0].text, "*PIPELINE JOB STARTED*")
	assert.Contains(t, fn.sent[1].text, "🚨  1 of 3 work packages could not be initialized and are marked as failed.")
	assert.Equal(t, "1.100", fn.sent[1].threadTS)
}

// TestRunInitFailurePanic aborts before any submission when the init
// failure rate already exceeds the threshold.
func TestRunInitFailurePanic(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid", "berlin"))
	props := testProps()
	props.FailureThreshold = 0.5
	fc := &fakeCluster{}

	resolver := func(job config.Job, params work.Params) (config.Resources, error) {
		if params["city"] == "paris" {
			return job.Resources, nil
		}
		return config.Resources{}, fmt.Errorf("unknown parameter %q", "city")
	}

	s, err := New(job, props,
		WithCluster(fc),
		WithResolver(resolver),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, fc.submissions)
	assert.Empty(t, fc.cancelled)
	assert.Len(t, s.failedWork(), 3)

	paris := s.packages[0]
	assert.Equal(t, "Panic! All work packages in queue were canceled.", paris.ErrorMsg)
	assert.Zero(t, paris.Tries)
}

// TestRunSubmitError fails the whole chunk with the cluster's error
// text when sbatch exits non-zero.
func TestRunSubmitError(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid"))
	fc := &fakeCluster{
		submitErr: &slurm.Error{Op: "sbatch", Cmd: "sbatch --parsable", Stderr: "sbatch: error: invalid partition specified"},
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, fc.submissions)
	require.Len(t, s.failedWork(), 2)
	for _, p := range s.failedWork() {
		assert.Contains(t, p.ErrorMsg, "invalid partition specified")
		assert.Zero(t, p.Tries)
		assert.Empty(t, p.JobID)
	}

	assertInvariants(t, s, testProps().MaxRetries)
}

// TestRunStatusError decommissions only the package whose status query
// failed; the rest of the pass continues.
func TestRunStatusError(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid"))
	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		if jobID == "1001_0" {
			return slurm.StatusUnknown, &slurm.Error{Op: "sacct", Cmd: "sacct --job=1001_0", Stderr: "sacct: error: slurmdbd down"}
		}
		return slurm.StatusCompleted, nil
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, s.failedWork(), 1)
	assert.Contains(t, s.failedWork()[0].ErrorMsg, "slurmdbd down")
	assert.Len(t, s.succeededWork(), 1)
}

// TestRunTimeoutBackoff rescales the time limit after a timeout and
// resubmits.
func TestRunTimeoutBackoff(t *testing.T) {
	job := testJob(t, cityParams("paris"))
	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		if jobID == "1001_0" {
			return slurm.StatusTimeout, nil
		}
		return slurm.StatusCompleted, nil
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 2)
	assert.Equal(t, "01:00:00", fc.submissions[0].Config.Time)
	assert.Equal(t, "120", fc.submissions[1].Config.Time)

	p := s.packages[0]
	assert.Equal(t, work.StatusSucceeded, p.Status)
	assert.Equal(t, 2, p.Tries)
	assert.Equal(t, []string{"1001_0"}, p.OldJobIDs)
}

// TestRunRetryableRequeue resubmits interrupted jobs with unchanged
// resources.
func TestRunRetryableRequeue(t *testing.T) {
	job := testJob(t, cityParams("paris"))
	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		if jobID == "1001_0" {
			return slurm.StatusNodeFail, nil
		}
		return slurm.StatusCompleted, nil
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 2)
	assert.Equal(t, fc.submissions[0].Config.CPUs, fc.submissions[1].Config.CPUs)
	assert.Equal(t, fc.submissions[0].Config.Mem, fc.submissions[1].Config.Mem)
	assert.Equal(t, fc.submissions[0].Config.Time, fc.submissions[1].Config.Time)
	assert.Equal(t, work.StatusSucceeded, s.packages[0].Status)
}

// TestRunUnknownStatus fails packages whose reported status matches no
// known classification.
func TestRunUnknownStatus(t *testing.T) {
	job := testJob(t, cityParams("paris"))
	fc := &fakeCluster{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		return slurm.Status("REVOKED"), nil
	}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	p := s.packages[0]
	assert.Equal(t, work.StatusFailed, p.Status)
	assert.Equal(t, "unknown status: REVOKED", p.ErrorMsg)
}

// TestRunCancelledOOMSniff treats a cancellation whose stderr shows the
// memory-limit kill as an out-of-memory retry.
func TestRunCancelledOOMSniff(t *testing.T) {
	job := testJob(t, cityParams("berlin"))
	fc := &fakeCluster{}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	fc.statusFn = func(jobID string) (slurm.Status, error) {
		if jobID == "1001_0" {
			stderrLog := filepath.Join(s.dir.TaskLogs, "1001_0.stderr")
			require.NoError(t, os.WriteFile(stderrLog, []byte("slurmstepd: error: Exceeded job memory limit at some point.\n"), 0o644))
			return slurm.StatusCancelled, nil
		}
		return slurm.StatusCompleted, nil
	}

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 2)
	assert.Equal(t, 0, fc.submissions[0].Config.Mem)
	assert.Equal(t, 10936, fc.submissions[1].Config.Mem)

	p := s.packages[0]
	assert.Equal(t, work.StatusSucceeded, p.Status)
	assert.Equal(t, []string{"1001_0"}, p.OldJobIDs)
}

// TestRunCancelledUnknownReason fails a cancelled package terminally
// when its stderr shows no memory-limit kill.
func TestRunCancelledUnknownReason(t *testing.T) {
	job := testJob(t, cityParams("berlin"))
	fc := &fakeCluster{}

	s, err := New(job, testProps(), WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)

	fc.statusFn = func(jobID string) (slurm.Status, error) {
		stderrLog := filepath.Join(s.dir.TaskLogs, "1001_0.stderr")
		require.NoError(t, os.WriteFile(stderrLog, []byte("scancel: job cancelled by operator\n"), 0o644))
		return slurm.StatusCancelled, nil
	}

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fc.submissions, 1)
	p := s.packages[0]
	assert.Equal(t, work.StatusFailed, p.Status)
	assert.Equal(t, slurm.StatusCancelled, p.SlurmStatus)
	assert.Equal(t, 1, p.Tries)
}

// TestNotifyFlow pins the run thread with the start message, posts the
// first status snapshot in-thread, updates it in place afterwards, and
// finishes with a top-level summary.
func TestNotifyFlow(t *testing.T) {
	job := testJob(t, cityParams("paris"))
	props := testProps()
	props.PollInterval = 10

	fc := &fakeCluster{}
	fn := &fakeNotifier{}
	polls := 0
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		polls++
		if polls == 1 {
			return slurm.StatusRunning, nil
		}
		return slurm.StatusCompleted, nil
	}

	start := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	s, err := New(job, props,
		WithCluster(fc),
		WithNotifier(fn),
		WithNow(func() time.Time { return start }),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, fn.sent, 3)

	assert.Contains(t, fn.sent[0].text, "*PIPELINE JOB STARTED*")
	assert.Contains(t, fn.sent[0].text, "Slurm ghs-prep job is being scheduled...")
	assert.Contains(t, fn.sent[0].text, "Scheduled param_file: cities.json.")
	assert.Empty(t, fn.sent[0].threadTS)

	assert.Contains(t, fn.sent[1].text, "*Status update after 0:00:00*")
	assert.Contains(t, fn.sent[1].text, "> TOTAL: 1\n")
	assert.Contains(t, fn.sent[1].text, "> PENDING: 1\n")
	assert.Equal(t, "1.100", fn.sent[1].threadTS)

	require.Len(t, fn.updated, 1)
	assert.Contains(t, fn.updated[0].text, "> SUCCEEDED: 1\n")
	assert.Equal(t, "C024BE91L", fn.updated[0].channel)
	assert.Equal(t, "2.100", fn.updated[0].ts)

	assert.Contains(t, fn.sent[2].text, "*PIPELINE JOB FINISHED*")
	assert.Contains(t, fn.sent[2].text, "🎉  1 of 1 work packages succeeded.")
	assert.Empty(t, fn.sent[2].threadTS)
}

// TestRunStatusFailureCauses breaks the status message down by observed
// cluster status of the failed packages.
func TestRunStatusFailureCauses(t *testing.T) {
	job := testJob(t, cityParams("paris", "madrid", "berlin"))
	fc := &fakeCluster{}
	fn := &fakeNotifier{}
	fc.statusFn = func(jobID string) (slurm.Status, error) {
		switch jobID {
		case "1001_0":
			return slurm.StatusCompleted, nil
		case "1001_1":
			return slurm.StatusFailed, nil
		default:
			return slurm.StatusDeadline, nil
		}
	}

	start := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	s, err := New(job, testProps(),
		WithCluster(fc),
		WithNotifier(fn),
		WithNow(func() time.Time { return start }),
		WithSleep(func(time.Duration) {}),
	)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.GreaterOrEqual(t, len(fn.sent), 2)
	status := fn.sent[1].text
	assert.Contains(t, status, "> FAILED: 2\n")
	assert.Contains(t, status, ">   > slurm failed: 1\n")
	assert.Contains(t, status, ">   > slurm deadline: 1\n")
}

// TestRunRemovesWorkdir drops the workdir during cleanup unless the
// operator asked to keep it.
func TestRunRemovesWorkdir(t *testing.T) {
	job := testJob(t, cityParams("paris"))
	props := testProps()
	props.KeepWorkDir = false
	fc := &fakeCluster{}

	s, err := New(job, props, WithCluster(fc), WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.NoDirExists(t, s.dir.Workdir)
	assert.FileExists(t, filepath.Join(s.dir.Root, "work.json"))
	assert.FileExists(t, filepath.Join(s.dir.Root, "succeeded-work.json"))
}
