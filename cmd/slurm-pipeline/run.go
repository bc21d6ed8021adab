package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/log"
	"github.com/eubucco/slurm-pipeline/pkg/metrics"
	"github.com/eubucco/slurm-pipeline/pkg/notify"
	"github.com/eubucco/slurm-pipeline/pkg/scheduler"
	"github.com/eubucco/slurm-pipeline/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Run the pipeline control plane in the foreground",
	Long: `Run processes the configured jobs one after another until every work
package has either succeeded or failed for good. It is what "start"
submits to the cluster; invoke it directly to keep the control plane on
the current machine.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	configPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		metrics.RegisterComponent("config", false, err.Error())
		return err
	}
	metrics.RegisterComponent("config", true, "configuration loaded")
	metrics.SetVersion(Version)

	// The configured log level applies unless the flag overrides it.
	if !rootCmd.PersistentFlags().Changed("log-level") && cfg.Properties.LogLevel != "" {
		initLogging(cfg.Properties.LogLevel)
	}
	logger := log.WithComponent("control_plane")

	if addr := cfg.Properties.MetricsAddr; addr != "" {
		go serveMetrics(addr)
	}

	store := openRegistry(cfg.Properties, logger)
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var firstErr error
	for _, job := range cfg.Jobs {
		opts := []scheduler.Option{scheduler.WithConfigPath(configPath)}
		if store != nil {
			opts = append(opts, scheduler.WithRecorder(store))
		}
		if slack := job.Properties.Slack; slack.Channel != "" {
			opts = append(opts, scheduler.WithNotifier(notify.NewSlack(slack.Channel, slack.Token)))
		}

		sched, err := scheduler.New(job, job.Properties, opts...)
		if err == nil {
			err = sched.Run(ctx)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			logger.Info().Msg("Control plane interrupted")
			return err
		}
		logger.Error().Str("job", job.Name).Msgf("Pipeline job failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openRegistry opens the run registry. A broken registry degrades the
// control plane, it does not stop it; runs then simply go unrecorded.
func openRegistry(props config.Properties, logger zerolog.Logger) *storage.RunStore {
	path := props.StateDB
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			logger.Warn().Msgf("Run registry unavailable, continuing without: %v", err)
			metrics.RegisterComponent("registry", false, err.Error())
			return nil
		}
		path = p
	}

	store, err := storage.Open(path)
	if err != nil {
		logger.Warn().Msgf("Run registry unavailable, continuing without: %v", err)
		metrics.RegisterComponent("registry", false, err.Error())
		return nil
	}
	metrics.RegisterComponent("registry", true, "run registry open")
	return store
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	logger := log.WithComponent("metrics")
	logger.Info().Msgf("Serving metrics and health on %s", addr)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error().Msgf("Metrics server stopped: %v", err)
	}
}
