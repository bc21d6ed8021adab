package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/state"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// The control plane is tiny; it lives on the io partition so it never
// competes with its own worker tasks.
const (
	defaultAccount  = "eubucco"
	defaultLogDir   = "/p/projects/eubucco/logs/control_plane"
	defaultCondaEnv = "~/.conda/envs/slurm-pipeline"

	controlJobName = "control_plane"
)

var startCmd = &cobra.Command{
	Use:   "start <config>",
	Short: "Submit the pipeline control plane to the cluster",
	Long: `Start schedules the control plane itself as a Slurm job and records the
submission in ~/.slurm-pipeline so the other commands know which
pipeline to inspect.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, _ := cmd.Flags().GetString("account")
		logDir, _ := cmd.Flags().GetString("log-dir")
		env, _ := cmd.Flags().GetString("env")
		return startControlPlane(cmd.Context(), args[0], account, logDir, env)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reschedule the failed work packages of the last run",
	Long: `Retry collects the failed work packages of every job, writes their
parameters back out as param files into the run directories, and starts
a fresh control plane on a copy of the configuration that points at
them.`,
	RunE: runRetry,
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Cancel scheduled Slurm jobs and the control plane",
	RunE:  runAbort,
}

func init() {
	startCmd.Flags().StringP("account", "a", defaultAccount, "Slurm account the control plane is billed to")
	startCmd.Flags().StringP("log-dir", "l", defaultLogDir, "Directory for the control plane's own logs")
	startCmd.Flags().StringP("env", "e", defaultCondaEnv, "Conda environment the control plane runs in")

	retryCmd.Flags().Bool("dry-run", false, "Write the retry config but do not start a control plane")
	retryCmd.Flags().StringP("account", "a", defaultAccount, "Slurm account the control plane is billed to")
	retryCmd.Flags().StringP("log-dir", "l", defaultLogDir, "Directory for the control plane's own logs")
	retryCmd.Flags().StringP("env", "e", defaultCondaEnv, "Conda environment the control plane runs in")

	abortCmd.Flags().StringP("job", "j", "", "Only abort the Slurm jobs of this pipeline job")
	abortCmd.Flags().Bool("all", false, "Abort all scheduled jobs and the control plane itself")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(abortCmd)
}

func startControlPlane(ctx context.Context, configPath, account, logDir, env string) error {
	// Validate locally before burning a submission on a broken config.
	if _, err := config.Load(configPath); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create control plane log dir: %w", err)
	}

	req := slurm.SubmitRequest{
		Script:   self,
		CondaEnv: expandHome(env),
		Args:     []string{"run", configPath},
		Config: slurm.SubmitConfig{
			JobName:   controlJobName,
			CPUs:      1,
			Partition: "io",
			Account:   account,
			LogDir:    logDir,
			Error:     controlJobName + ".stderr",
			Output:    controlJobName + ".stdout",
		},
	}

	jobID, err := slurm.NewClient().Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Pipeline control plane started. Slurm job id: %s\n", jobID)

	cliState := state.CLIState{
		Account: account,
		Config:  configPath,
		JobID:   jobID,
		Stderr:  filepath.Join(logDir, controlJobName+".stderr"),
		Stdout:  filepath.Join(logDir, controlJobName+".stdout"),
	}
	if err := state.SaveCLIState(cliState); err != nil {
		return fmt.Errorf("failed to record CLI state: %w", err)
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	account, _ := cmd.Flags().GetString("account")
	logDir, _ := cmd.Flags().GetString("log-dir")
	env, _ := cmd.Flags().GetString("env")

	st, cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}

	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		dir, err := resolveRunDir(cfg.Properties, *job)
		if err != nil {
			return err
		}
		records, err := state.LoadWork(dir)
		if err != nil {
			return err
		}

		params := make([]work.Params, 0)
		for _, rec := range work.Filter(records, work.StatusFailed) {
			params = append(params, rec.Params)
		}

		paramsPath, err := state.WriteRetryParams(dir, params)
		if err != nil {
			return err
		}
		job.ParamFiles = []string{paramsPath}
		job.ParamGeneratorFile = ""
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render retry config: %w", err)
	}
	retryPath := postfixFilename(st.Config, "-retry")
	if err := os.WriteFile(retryPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write retry config: %w", err)
	}
	fmt.Printf("New slurm config with updated param files has been created: %s\n", retryPath)

	if dryRun {
		return nil
	}
	return startControlPlane(cmd.Context(), retryPath, account, logDir, env)
}

func runAbort(cmd *cobra.Command, args []string) error {
	jobName, _ := cmd.Flags().GetString("job")
	all, _ := cmd.Flags().GetBool("all")
	if !all && jobName == "" {
		return errors.New("please provide either -j/--job or --all")
	}

	ctx := cmd.Context()
	client := slurm.NewClient()

	st, cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	states, err := workStates(cfg)
	if err != nil {
		return err
	}

	if jobName != "" {
		js, ok := findState(states, jobName)
		if !ok {
			return fmt.Errorf("%s job is unknown", jobName)
		}
		cancelPackages(ctx, client, js)
		fmt.Printf("%s jobs have been aborted.\n", jobName)
		return nil
	}

	for _, js := range states {
		cancelPackages(ctx, client, js)
	}
	if err := client.Cancel(ctx, st.JobID); err != nil {
		return err
	}
	fmt.Println("Control plane and all scheduled jobs have been aborted.")
	return nil
}

// cancelPackages cancels every package that holds a Slurm job id.
// Cancellation is best effort; ids of finished jobs are fine to pass to
// scancel again.
func cancelPackages(ctx context.Context, client *slurm.Client, js jobState) {
	queued := false
	for _, rec := range js.records {
		id := deref(rec.JobID)
		if id == "" {
			if rec.Status == string(work.StatusPending) {
				queued = true
			}
			continue
		}
		if err := client.Cancel(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to cancel Slurm job %s: %v\n", id, err)
		}
	}
	if queued {
		fmt.Println("Not all work packages have been initialized. Please retry in a few moments.")
	}
}

func expandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// postfixFilename turns config.yml into config-retry.yml.
func postfixFilename(path, postfix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + postfix + ext
}
