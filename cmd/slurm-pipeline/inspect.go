package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
	"github.com/eubucco/slurm-pipeline/pkg/state"
	"github.com/eubucco/slurm-pipeline/pkg/storage"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the work package counts of the running pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		states, err := workStates(cfg)
		if err != nil {
			return err
		}

		for _, js := range states {
			fmt.Printf("----- JOB %s -----\n", strings.ToUpper(js.job.Name))
			fmt.Printf("PENDING: %d\n", len(work.Filter(js.records, work.StatusPending)))
			fmt.Printf("SUCCEEDED: %d\n", len(work.Filter(js.records, work.StatusSucceeded)))
			fmt.Printf("FAILED: %d\n", len(work.Filter(js.records, work.StatusFailed)))
		}
		return nil
	},
}

var workCmd = &cobra.Command{
	Use:   "work <job>",
	Short: "Dump the work packages of a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		job, ok := cfg.Job(args[0])
		if !ok {
			return fmt.Errorf("%s job is unknown", args[0])
		}

		dir, err := resolveRunDir(cfg.Properties, *job)
		if err != nil {
			return err
		}
		records, err := state.LoadWork(dir)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Summarize the error messages of failed work packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("number")

		_, cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		states, err := workStates(cfg)
		if err != nil {
			return err
		}

		for _, js := range states {
			fmt.Printf("----- JOB %s -----\n", strings.ToUpper(js.job.Name))
			counts := work.ErrorTypes(js.records)
			if len(counts) > n {
				counts = counts[:n]
			}
			for _, ec := range counts {
				fmt.Printf("Error %s: %d\n", ec.Type, ec.Count)
			}
		}
		return nil
	},
}

var squeueCmd = &cobra.Command{
	Use:   "squeue",
	Short: "Show the cluster queue for the pipeline account",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := state.LoadCLIState()
		if err != nil {
			return err
		}
		out, err := slurm.NewClient().Squeue(cmd.Context(), "", st.Account)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the pipeline runs recorded in the run registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobName, _ := cmd.Flags().GetString("job")

		// The registry lives wherever the last started config put it;
		// without CLI state the default location is tried.
		props := config.Properties{}
		if _, cfg, err := loadCLIConfig(); err == nil {
			props = cfg.Properties
		}
		store, err := openRegistryReadOnly(props)
		if err != nil {
			return fmt.Errorf("failed to open run registry: %w", err)
		}
		defer store.Close()

		recs, err := store.ListRuns(jobName)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, rec := range recs {
			status := "running"
			if rec.FinishedAt != nil {
				status = "finished " + rec.FinishedAt.Format(state.TimestampFormat)
			}
			fmt.Printf("%s  %s  %d/%d succeeded, %d failed  (%s)\n",
				rec.Key(), status, rec.Succeeded, rec.Total, rec.Failed, rec.Dir)
		}
		return nil
	},
}

func init() {
	errorsCmd.Flags().IntP("number", "n", 5, "Number of error types to show per job")
	runsCmd.Flags().StringP("job", "j", "", "Only list the runs of this job")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(squeueCmd)
	rootCmd.AddCommand(runsCmd)
}

// jobState is one job's queue snapshot, read back from its newest run
// directory.
type jobState struct {
	job     config.Job
	dir     string
	records []work.Record
}

func loadCLIConfig() (state.CLIState, *config.Config, error) {
	st, err := state.LoadCLIState()
	if err != nil {
		return state.CLIState{}, nil, err
	}
	cfg, err := config.Load(st.Config)
	if err != nil {
		return state.CLIState{}, nil, err
	}
	return st, cfg, nil
}

func workStates(cfg *config.Config) ([]jobState, error) {
	states := make([]jobState, 0, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		dir, err := resolveRunDir(cfg.Properties, job)
		if err != nil {
			return nil, err
		}
		records, err := state.LoadWork(dir)
		if err != nil {
			return nil, err
		}
		states = append(states, jobState{job: job, dir: dir, records: records})
	}
	return states, nil
}

func findState(states []jobState, name string) (jobState, bool) {
	for _, js := range states {
		if js.job.Name == name {
			return js, true
		}
	}
	return jobState{}, false
}

// resolveRunDir finds the newest run directory of a job, preferring the
// run registry and falling back to the directory timestamps when the
// registry has no answer.
func resolveRunDir(props config.Properties, job config.Job) (string, error) {
	if store, err := openRegistryReadOnly(props); err == nil {
		rec, err := store.LatestRun(job.Name)
		store.Close()
		if err == nil {
			if _, err := os.Stat(rec.Dir); err == nil {
				return rec.Dir, nil
			}
		}
	}
	return state.NewestRunDir(job.LogDir, job.Name)
}

func openRegistryReadOnly(props config.Properties) (*storage.RunStore, error) {
	path := props.StateDB
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.OpenReadOnly(path)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
