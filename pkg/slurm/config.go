package slurm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eubucco/slurm-pipeline/pkg/log"
)

// Cluster hard limits. Requests beyond these are clamped, not rejected.
const (
	MaxArraySize = 1001
	MaxCPUs      = 128
	MaxMem       = 690000
	MemPerCPU    = 5468
	GPUMaxMem    = 690000
	GPUMemPerCPU = 11328
)

// DefaultPartition picks the hardware pool for a CPU request when the
// configuration names none.
func DefaultPartition(cpus int) string {
	if cpus <= 16 {
		return "standard"
	}
	return "broadwell"
}

// SubmitConfig carries the sbatch flags for one submission. Zero values
// mean "unset"; Normalize fills defaults and infers partition, gres and
// QoS the way the cluster expects them.
type SubmitConfig struct {
	CPUs      int
	Nodes     int
	NTasks    int
	Error     string
	Output    string
	Mem       int
	Time      string
	Partition string
	Gres      string
	QOS       string
	Account   string
	Array     string
	JobName   string
	LogDir    string
	EnvVars   string
}

// Normalize fills defaults and derives partition, gres and QoS. It is
// idempotent and called by ValidateAndAdjust.
func (c *SubmitConfig) Normalize() {
	if c.CPUs == 0 {
		c.CPUs = 1
	}
	if c.Nodes == 0 {
		c.Nodes = 1
	}
	if c.NTasks == 0 {
		c.NTasks = 1
	}
	if c.Error == "" {
		c.Error = "%x_%j.stderr"
	}
	if c.Output == "" {
		c.Output = "%x_%j.stdout"
	}
	if c.Partition == "" {
		c.Partition = DefaultPartition(c.CPUs)
	}
	if c.Gres == "" && c.Partition == "gpu" {
		c.Gres = "gpu"
	}
	if c.QOS == "" {
		c.QOS = c.determineQOS()
	}
}

func (c *SubmitConfig) determineQOS() string {
	if c.Partition == "io" {
		return "io"
	}

	qos := ""
	if c.Partition == "gpu" {
		qos = "gpu"
	}

	switch m := Minutes(c.Time); {
	case c.Time == "" || m > 24*60*7:
		qos += "long"
	case m > 24*60:
		qos += "medium"
	default:
		qos += "short"
	}
	return qos
}

// ArraySize returns the task count encoded in the array range, 0 when no
// array is requested.
func (c *SubmitConfig) ArraySize() int {
	if c.Array == "" {
		return 0
	}
	parts := strings.SplitN(c.Array, "-", 2)
	if len(parts) != 2 {
		return 0
	}
	hi, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return hi + 1
}

// ValidateAndAdjust normalizes the config and clamps requests that exceed
// the cluster's hard limits. The io partition does not support sbatch
// arrays, so the array range is dropped there and tasks run sequentially.
func (c *SubmitConfig) ValidateAndAdjust() {
	c.Normalize()

	if c.CPUs > MaxCPUs {
		log.Logger.Warn().Msgf("Requesting %d CPUs, but max allowed is %d. Reducing CPUs accordingly.", c.CPUs, MaxCPUs)
		c.CPUs = MaxCPUs
	}

	if c.Partition == "gpu" && c.Mem > GPUMaxMem {
		log.Logger.Warn().Msgf("Requesting %dMB memory, but max allowed is %d. Reducing memory accordingly.", c.Mem, GPUMaxMem)
		c.Mem = GPUMaxMem
	} else if c.Mem > MaxMem {
		log.Logger.Warn().Msgf("Requesting %dMB memory, but max allowed is %d. Reducing memory accordingly.", c.Mem, MaxMem)
		c.Mem = MaxMem
	}

	if c.Array != "" && c.Partition == "io" {
		c.Array = ""
	}
}

// Args renders the sbatch flag list. Flags are emitted as single
// --flag=value tokens so the command can be executed without a shell.
func (c *SubmitConfig) Args() []string {
	args := []string{
		fmt.Sprintf("--nodes=%d", c.Nodes),
		fmt.Sprintf("--error=%s", c.Error),
		fmt.Sprintf("--output=%s", c.Output),
		fmt.Sprintf("--ntasks=%d", c.NTasks),
		fmt.Sprintf("--cpus-per-task=%d", c.CPUs),
		fmt.Sprintf("--qos=%s", c.QOS),
		fmt.Sprintf("--partition=%s", c.Partition),
	}

	if c.Time != "" {
		args = append(args, fmt.Sprintf("--time=%s", c.Time))
	}
	if c.Gres != "" {
		args = append(args, fmt.Sprintf("--gres=%s", c.Gres))
	}
	if c.Mem != 0 {
		args = append(args, fmt.Sprintf("--mem=%d", c.Mem))
	}
	if c.Account != "" {
		args = append(args, fmt.Sprintf("--account=%s", c.Account))
	}
	if c.Array != "" {
		args = append(args, fmt.Sprintf("--array=%s", c.Array))
	}
	if c.JobName != "" {
		args = append(args, fmt.Sprintf("--job-name=%s", c.JobName))
	}
	if c.LogDir != "" {
		args = append(args, fmt.Sprintf("--chdir=%s", c.LogDir))
	}
	if c.EnvVars != "" {
		args = append(args, fmt.Sprintf("--export=ALL,%s", c.EnvVars))
	}

	return args
}
