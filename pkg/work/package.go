package work

import (
	"github.com/eubucco/slurm-pipeline/pkg/slurm"
)

// Status is the lifecycle state of a work package. It is distinct from
// the cluster's job state: a package stays PENDING across any number of
// resubmissions and only ever ends SUCCEEDED or FAILED.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Params is one parameter bundle for the user script. Values are opaque
// scalars; the bundle is never mutated after creation.
type Params map[string]any

// Package is one unit of work: a single invocation of the job's script
// with one parameter bundle. The scheduler is the only mutator.
type Package struct {
	Params      Params
	CPUs        int
	Mem         int
	Time        string
	Partition   string
	Name        string
	Status      Status
	SlurmStatus slurm.Status
	Tries       int
	JobID       string
	OldJobIDs   []string
	StdoutLog   string
	StderrLog   string
	MemProfile  string
	MaxMem      *float64
	ErrorMsg    string
}

// New creates a queued package with the given resource request. An empty
// partition resolves to the CPU threshold default so grouping keys and
// persisted records are concrete.
func New(params Params, cpus, mem int, timeLimit, partition string) *Package {
	if partition == "" {
		partition = slurm.DefaultPartition(cpus)
	}
	return &Package{
		Params:    params,
		CPUs:      cpus,
		Mem:       mem,
		Time:      timeLimit,
		Partition: partition,
		Status:    StatusPending,
		OldJobIDs: []string{},
	}
}

// InitFailed creates a terminal package for parameters whose resource
// resolution failed. No resources are set and no submission ever happens.
func InitFailed(params Params, errorMsg string) *Package {
	return &Package{
		Params:    params,
		Status:    StatusFailed,
		ErrorMsg:  errorMsg,
		OldJobIDs: []string{},
	}
}

// Queued reports whether the package awaits submission.
func (p *Package) Queued() bool {
	return p.Status == StatusPending && p.JobID == ""
}

// Scheduled reports whether the package has a live cluster job.
func (p *Package) Scheduled() bool {
	return p.Status == StatusPending && p.JobID != ""
}

// Encode converts the package into its persisted record form.
func (p *Package) Encode() Record {
	oldIDs := p.OldJobIDs
	if oldIDs == nil {
		oldIDs = []string{}
	}

	var cpus *int
	if p.CPUs != 0 {
		cpus = &p.CPUs
	}

	return Record{
		CPUs:        cpus,
		ErrorMsg:    strPtr(p.ErrorMsg),
		JobID:       strPtr(p.JobID),
		MaxMem:      p.MaxMem,
		Mem:         p.Mem,
		MemProfile:  strPtr(p.MemProfile),
		NTries:      p.Tries,
		Name:        p.Name,
		OldJobIDs:   oldIDs,
		Params:      p.Params,
		Partition:   strPtr(p.Partition),
		SlurmStatus: strPtr(string(p.SlurmStatus)),
		Status:      string(p.Status),
		Stderr:      strPtr(p.StderrLog),
		Stdout:      strPtr(p.StdoutLog),
		Time:        strPtr(p.Time),
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
