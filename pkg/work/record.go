package work

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Record is the persisted form of a work package. Fields are declared in
// alphabetical json-key order so MarshalIndent emits sorted keys, which
// keeps snapshots byte-stable across rewrites.
type Record struct {
	CPUs        *int     `json:"cpus"`
	ErrorMsg    *string  `json:"error_msg"`
	JobID       *string  `json:"job_id"`
	MaxMem      *float64 `json:"max_mem"`
	Mem         int      `json:"mem"`
	MemProfile  *string  `json:"mem_profile"`
	NTries      int      `json:"n_tries"`
	Name        string   `json:"name"`
	OldJobIDs   []string `json:"old_job_ids"`
	Params      Params   `json:"params"`
	Partition   *string  `json:"partition"`
	SlurmStatus *string  `json:"slurm_status"`
	Status      string   `json:"status"`
	Stderr      *string  `json:"stderr"`
	Stdout      *string  `json:"stdout"`
	Time        *string  `json:"time"`
}

// LoadFile reads a persisted work state file (work.json or one of its
// status partitions).
func LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read work state %s: %w", path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode work state %s: %w", path, err)
	}
	return records, nil
}

// Filter returns the records in the given lifecycle state.
func Filter(records []Record, status Status) []Record {
	var out []Record
	for _, r := range records {
		if r.Status == string(status) {
			out = append(out, r)
		}
	}
	return out
}

// FindByJobID returns the record carrying the given cluster job id.
func FindByJobID(records []Record, jobID string) (Record, bool) {
	for _, r := range records {
		if r.JobID != nil && *r.JobID == jobID {
			return r, true
		}
	}
	return Record{}, false
}

// MatchParams reports whether any parameter value of the record matches
// the pattern at its start.
func MatchParams(r Record, re *regexp.Regexp) bool {
	for _, v := range r.Params {
		loc := re.FindStringIndex(fmt.Sprint(v))
		if loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

// ErrorCount is one error type with its number of occurrences.
type ErrorCount struct {
	Type  string
	Count int
}

// ErrorTypes aggregates records by error type, the diagnostic up to its
// first colon, most frequent first.
func ErrorTypes(records []Record) []ErrorCount {
	counts := make(map[string]int)
	for _, r := range records {
		if r.ErrorMsg == nil {
			continue
		}
		errType := strings.SplitN(*r.ErrorMsg, ":", 2)[0]
		if errType == "" {
			continue
		}
		counts[errType]++
	}

	out := make([]ErrorCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, ErrorCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
