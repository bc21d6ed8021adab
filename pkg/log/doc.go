/*
Package log provides structured logging for slurm-pipeline using zerolog.

The log package wraps the zerolog library behind a small global logger with
component- and job-scoped child loggers. The control plane runs for hours or
days inside a Slurm allocation, so every line carries a timestamp and a
severity that can be filtered after the fact from the control plane's own
stdout/stderr logs.

# Usage

Initializing the logger (done once by the CLI root command):

	log.Init(log.Config{
		Level:      log.ParseLevel(props.LogLevel),
		JSONOutput: false,
		Output:     os.Stdout,
	})

Component loggers:

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Int("queued", n).Msg("Scheduling new work packages")

	jobLog := log.WithJob("preprocessing")
	jobLog.Error().Err(err).Msg("Failed to submit Slurm job array")

The console format is the default; `--log-format json` switches to line
JSON for runs whose logs are shipped into an aggregator.

Levels are debug, info, warn and error; the configured
`properties.log_level` string is mapped via ParseLevel with info as the
fallback. Fatal logs and exits; it is reserved for unusable configuration
at process start.
*/
package log
