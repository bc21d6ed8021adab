package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eubucco/slurm-pipeline/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slurm-pipeline",
	Short: "Schedule embarrassingly parallel pipelines on a Slurm cluster",
	Long: `slurm-pipeline maps user scripts over parameter bundles and drives the
resulting Slurm jobs to completion: it batches work packages by resource
class, submits them as array jobs, polls the accounting database, and
retries timeouts and out-of-memory kills with growing budgets.

The control plane itself runs as a cluster job. "start" submits it,
"status", "stdout" and "stderr" inspect a running pipeline, and "retry"
reschedules everything that failed.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging(logLevel)
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"slurm-pipeline version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
}

func initLogging(level string) {
	log.Init(log.Config{
		Level:      log.ParseLevel(level),
		JSONOutput: logFormat == "json",
	})
}
