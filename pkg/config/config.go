package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resources is a job's default resource request. CPUs is required; the
// zero values of the remaining fields mean "scheduler default".
type Resources struct {
	CPUs      int    `yaml:"cpus"`
	Mem       int    `yaml:"mem,omitempty"`
	Time      string `yaml:"time,omitempty"`
	Partition string `yaml:"partition,omitempty"`
}

// ResourceOverride overlays individual resource fields. Only fields
// present in the configuration replace the job defaults.
type ResourceOverride struct {
	CPUs      *int    `yaml:"cpus,omitempty"`
	Mem       *int    `yaml:"mem,omitempty"`
	Time      *string `yaml:"time,omitempty"`
	Partition *string `yaml:"partition,omitempty"`
}

// Apply returns res with the override's set fields replaced.
func (o ResourceOverride) Apply(res Resources) Resources {
	if o.CPUs != nil {
		res.CPUs = *o.CPUs
	}
	if o.Mem != nil {
		res.Mem = *o.Mem
	}
	if o.Time != nil {
		res.Time = *o.Time
	}
	if o.Partition != nil {
		res.Partition = *o.Partition
	}
	return res
}

// FileRule selects work packages by the on-disk size of an input path.
// Path may contain {{var}} placeholders resolved from the package params
// and may name a file, a directory, or a glob pattern. Bounds are bytes;
// a missing bound leaves that side open.
type FileRule struct {
	Path    string `yaml:"path"`
	SizeMin *int64 `yaml:"size_min,omitempty"`
	SizeMax *int64 `yaml:"size_max,omitempty"`
}

// SpecialCase pairs a file rule with the resource overrides applied when
// the rule matches.
type SpecialCase struct {
	Files     *FileRule        `yaml:"files,omitempty"`
	Resources ResourceOverride `yaml:"resources,omitempty"`
}

// Slack configures the notification sink. Leaving both fields empty
// disables notifications.
type Slack struct {
	Channel string `yaml:"channel,omitempty"`
	Token   string `yaml:"token,omitempty"`
}

// Properties are the run-control knobs. They are declared globally and
// may be overridden per job.
type Properties struct {
	CondaEnv                   string  `yaml:"conda_env,omitempty"`
	Account                    string  `yaml:"account,omitempty"`
	LogLevel                   string  `yaml:"log_level,omitempty"`
	KeepWorkDir                bool    `yaml:"keep_work_dir,omitempty"`
	MaxRetries                 int     `yaml:"max_retries,omitempty"`
	PollInterval               int     `yaml:"poll_interval,omitempty"`
	ExpBackoffFactor           float64 `yaml:"exp_backoff_factor,omitempty"`
	FailureThreshold           float64 `yaml:"failure_threshold,omitempty"`
	FailureThresholdActivation int     `yaml:"failure_threshold_activation,omitempty"`
	Slack                      Slack   `yaml:"slack,omitempty"`
	MetricsAddr                string  `yaml:"metrics_addr,omitempty"`
	StateDB                    string  `yaml:"state_db,omitempty"`
}

// Job describes one pipeline job: a user script and the parameter
// bundles it is mapped over.
type Job struct {
	Name               string        `yaml:"name"`
	Script             string        `yaml:"script"`
	LogDir             string        `yaml:"log_dir"`
	Resources          Resources     `yaml:"resources"`
	ParamFiles         []string      `yaml:"param_files,omitempty"`
	ParamGeneratorFile string        `yaml:"param_generator_file,omitempty"`
	N                  int           `yaml:"n,omitempty"`
	SpecialCases       []SpecialCase `yaml:"special_cases,omitempty"`

	// RawProperties holds the job's own properties block; it is decoded
	// over a copy of the global properties during Load so that Properties
	// always carries the merged view. Keeping the raw node lets a loaded
	// config be marshalled back without baking the merge result in.
	RawProperties yaml.Node  `yaml:"properties,omitempty"`
	Properties    Properties `yaml:"-"`
}

// Config is a full pipeline configuration: global properties plus the
// jobs processed sequentially in listed order.
type Config struct {
	RawProperties yaml.Node  `yaml:"properties,omitempty"`
	Properties    Properties `yaml:"-"`
	Jobs          []Job      `yaml:"jobs"`
}

// DefaultProperties returns the built-in property defaults. The failure
// threshold defaults to 1 so the panic sweep stays disarmed until an
// operator configures a lower rate.
func DefaultProperties() Properties {
	return Properties{
		LogLevel:                   "info",
		MaxRetries:                 3,
		PollInterval:               60,
		ExpBackoffFactor:           2,
		FailureThreshold:           1,
		FailureThresholdActivation: 10,
	}
}

// Load reads, merges, and validates a pipeline configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse behaves like Load on an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Properties: DefaultProperties()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if !cfg.RawProperties.IsZero() {
		if err := cfg.RawProperties.Decode(&cfg.Properties); err != nil {
			return nil, fmt.Errorf("failed to parse global properties: %w", err)
		}
	}

	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		job.Properties = cfg.Properties
		if !job.RawProperties.IsZero() {
			if err := job.RawProperties.Decode(&job.Properties); err != nil {
				return nil, fmt.Errorf("failed to parse properties of job %q: %w", job.Name, err)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Job returns the named job of the configuration.
func (c *Config) Job(name string) (*Job, bool) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], true
		}
	}
	return nil, false
}

var logLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

func (c *Config) validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("no jobs configured")
	}

	seen := make(map[string]bool)
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Name == "" {
			return fmt.Errorf("job #%d: name must be set", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true

		if err := job.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) validate() error {
	if j.Script == "" {
		return fmt.Errorf("job %q: script must be set", j.Name)
	}
	if j.LogDir == "" {
		return fmt.Errorf("job %q: log_dir must be set", j.Name)
	}
	if j.Resources.CPUs < 1 {
		return fmt.Errorf("job %q: resources.cpus must be a positive integer", j.Name)
	}
	if (len(j.ParamFiles) == 0) == (j.ParamGeneratorFile == "") {
		return fmt.Errorf("job %q: exactly one of param_files and param_generator_file must be set", j.Name)
	}
	if j.N < 0 {
		return fmt.Errorf("job %q: n must not be negative", j.Name)
	}

	for idx, sc := range j.SpecialCases {
		if sc.Files == nil || sc.Files.Path == "" {
			return fmt.Errorf("job %q: special_cases[%d] needs a files.path rule", j.Name, idx)
		}
		if sc.Files.SizeMin != nil && sc.Files.SizeMax != nil && *sc.Files.SizeMin > *sc.Files.SizeMax {
			return fmt.Errorf("job %q: special_cases[%d]: size_min exceeds size_max", j.Name, idx)
		}
	}

	return j.Properties.validate(j.Name)
}

func (p Properties) validate(job string) error {
	if p.CondaEnv == "" {
		return fmt.Errorf("job %q: the conda_env must be specified, globally or per job", job)
	}
	if p.LogLevel != "" && !logLevels[p.LogLevel] {
		return fmt.Errorf("job %q: unknown log_level %q", job, p.LogLevel)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("job %q: max_retries must not be negative", job)
	}
	if p.PollInterval < 10 || p.PollInterval > 3600 {
		return fmt.Errorf("job %q: poll_interval must be between 10 and 3600 seconds", job)
	}
	if p.ExpBackoffFactor < 1 {
		return fmt.Errorf("job %q: exp_backoff_factor must be at least 1", job)
	}
	if p.FailureThreshold < 0 || p.FailureThreshold > 1 {
		return fmt.Errorf("job %q: failure_threshold must be between 0.0 and 1.0", job)
	}
	if p.FailureThresholdActivation < 1 {
		return fmt.Errorf("job %q: failure_threshold_activation must be positive", job)
	}
	if (p.Slack.Channel == "") != (p.Slack.Token == "") {
		return fmt.Errorf("job %q: slack needs both channel and token", job)
	}
	return nil
}
