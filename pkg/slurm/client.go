package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eubucco/slurm-pipeline/pkg/log"
)

// Runner executes an external command and captures its output. It exists
// so tests can stand in for the cluster CLI; production code uses the
// exec-based implementation. Commands are argument arrays, never shell
// strings.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

// NewExecRunner returns the os/exec backed Runner.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Error is returned when a cluster CLI call exits non-zero. The CLI's
// stderr is preserved verbatim so callers can persist or inspect it.
type Error struct {
	Op     string
	Cmd    string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("error running Slurm cmd %s:\n%s", e.Cmd, e.Stderr)
	}
	return fmt.Sprintf("error running Slurm cmd %s: %v", e.Cmd, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SubmitRequest describes one sbatch invocation: the user program, the
// conda environment it runs in, the resource flags, and either plain
// arguments or a workfile consumed through the array wrapper script.
type SubmitRequest struct {
	Script       string
	CondaEnv     string
	Config       SubmitConfig
	Args         []string
	Workfile     string
	SbatchScript string
}

// Client wraps the cluster CLI (sbatch, sacct, scancel, squeue). All
// external calls of the control plane go through here.
type Client struct {
	runner      Runner
	templateDir string

	tmplOnce sync.Once
	tmpl     Templates
	tmplErr  error
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the exec-based command runner.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithTemplateDir overrides where the embedded sbatch wrapper scripts are
// materialised.
func WithTemplateDir(dir string) Option {
	return func(c *Client) { c.templateDir = dir }
}

// NewClient returns a Client backed by the local cluster CLI.
func NewClient(opts ...Option) *Client {
	c := &Client{
		runner:      execRunner{},
		templateDir: filepath.Join(os.TempDir(), "slurm-pipeline"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) templates() (Templates, error) {
	c.tmplOnce.Do(func() {
		c.tmpl, c.tmplErr = WriteTemplates(c.templateDir)
	})
	return c.tmpl, c.tmplErr
}

// Submit emits a single batch submission and returns the opaque job id
// printed by sbatch --parsable. A non-zero exit surfaces as *Error with
// the CLI's stderr attached.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if (req.Workfile != "" || req.Config.Array != "") && req.SbatchScript == "" {
		return "", fmt.Errorf("default sbatch script supports neither workfile nor array submissions")
	}

	req.Config.ValidateAndAdjust()
	return c.submit(ctx, req)
}

// SubmitWorkfile submits an array job whose tasks consume the given
// workfile through the array wrapper script. It returns the job id and
// the per-task ids "<jobID>_<i>". When the partition does not accept
// arrays the submission degrades to a single job and the task id list is
// empty; the caller assigns per-index ids itself.
func (c *Client) SubmitWorkfile(ctx context.Context, req SubmitRequest) (string, []string, error) {
	tmpl, err := c.templates()
	if err != nil {
		return "", nil, fmt.Errorf("failed to write sbatch templates: %w", err)
	}
	req.SbatchScript = tmpl.Workfile

	req.Config.ValidateAndAdjust()

	jobID, err := c.submit(ctx, req)
	if err != nil {
		return "", nil, err
	}

	taskIDs := make([]string, 0, req.Config.ArraySize())
	for i := 0; i < req.Config.ArraySize(); i++ {
		taskIDs = append(taskIDs, fmt.Sprintf("%s_%d", jobID, i))
	}
	return jobID, taskIDs, nil
}

func (c *Client) submit(ctx context.Context, req SubmitRequest) (string, error) {
	sbatchScript := req.SbatchScript
	if sbatchScript == "" {
		tmpl, err := c.templates()
		if err != nil {
			return "", fmt.Errorf("failed to write sbatch templates: %w", err)
		}
		sbatchScript = tmpl.Run
	}

	args := append([]string{"--parsable"}, req.Config.Args()...)
	args = append(args, sbatchScript, req.CondaEnv, req.Script)
	if req.Workfile != "" {
		args = append(args, req.Workfile)
	} else {
		args = append(args, req.Args...)
	}

	cmd := "sbatch " + strings.Join(args, " ")
	log.Logger.Debug().Msgf("Submitting Slurm job with cmd: %s", cmd)

	stdout, stderr, err := c.runner.Run(ctx, "sbatch", args...)
	if len(stderr) > 0 {
		log.Logger.Info().Msgf("stderr: %s", stderr)
	}
	if err != nil {
		return "", &Error{Op: "sbatch", Cmd: cmd, Stderr: string(stderr), Err: err}
	}

	return strings.TrimSpace(string(stdout)), nil
}

// Status queries the accounting CLI for the job's state. An empty record
// means the job is not yet visible to sacct and counts as pending; an
// unrecognised state token maps to StatusUnknown.
func (c *Client) Status(ctx context.Context, jobID string) (Status, error) {
	log.Logger.Debug().Msgf("Getting Slurm status for job %s...", jobID)

	args := []string{fmt.Sprintf("--job=%s", jobID), "--format=state", "--parsable2", "--noheader"}
	stdout, stderr, err := c.runner.Run(ctx, "sacct", args...)
	if err != nil {
		return StatusUnknown, &Error{Op: "sacct", Cmd: "sacct " + strings.Join(args, " "), Stderr: string(stderr), Err: err}
	}

	lines := strings.Split(string(stdout), "\n")
	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		log.Logger.Warn().Msgf("Could not determine status for job %s. Maybe the job has not been submitted yet?", jobID)
		return StatusPending, nil
	}

	return ParseStatus(fields[0]), nil
}

// Cancel terminates the job. Best effort; the next poll observes the
// resulting CANCELLED state.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	log.Logger.Debug().Msgf("Cancelling Slurm job %s...", jobID)

	_, stderr, err := c.runner.Run(ctx, "scancel", jobID)
	if err != nil {
		return &Error{Op: "scancel", Cmd: "scancel " + jobID, Stderr: string(stderr), Err: err}
	}
	return nil
}

// Squeue returns the raw queue listing, optionally filtered by job name
// and account.
func (c *Client) Squeue(ctx context.Context, job, account string) (string, error) {
	args := []string{"--states=all"}
	if job != "" {
		args = append(args, fmt.Sprintf("--name=%s", job))
	}
	if account != "" {
		args = append(args, fmt.Sprintf("--account=%s", account))
	}

	stdout, stderr, err := c.runner.Run(ctx, "squeue", args...)
	if err != nil {
		return "", &Error{Op: "squeue", Cmd: "squeue " + strings.Join(args, " "), Stderr: string(stderr), Err: err}
	}
	return string(stdout), nil
}
