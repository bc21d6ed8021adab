package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// TimestampFormat stamps run directories and registry keys. The layout
// sorts lexicographically in chronological order.
const TimestampFormat = "2006-01-02--15-04-05"

// WorkFile is the queue snapshot inside a run directory.
const WorkFile = "work.json"

// cliStateFile sits in the operator's home directory and records the
// last started control plane.
const cliStateFile = ".slurm-pipeline"

// RunDir is the on-disk layout of a single pipeline run:
//
//	<log_dir>/<job>-<timestamp>/
//	├── work.json            queue snapshot, rewritten every poll
//	├── workdir/             workfiles and sbatch templates
//	└── task-logs/           per-task stdout/stderr/memory profiles
type RunDir struct {
	Root     string
	Workdir  string
	TaskLogs string
}

// NewRunDir creates the directory tree for a fresh run.
func NewRunDir(logDir, job string, now time.Time) (RunDir, error) {
	root := filepath.Join(logDir, fmt.Sprintf("%s-%s", job, now.Format(TimestampFormat)))
	dir := OpenRunDir(root)

	for _, d := range []string{dir.Workdir, dir.TaskLogs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return RunDir{}, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return dir, nil
}

// OpenRunDir derives the layout of an existing run directory without
// touching the filesystem.
func OpenRunDir(root string) RunDir {
	return RunDir{
		Root:     root,
		Workdir:  filepath.Join(root, "workdir"),
		TaskLogs: filepath.Join(root, "task-logs"),
	}
}

// NewestRunDir finds the most recently modified run directory of a job.
// It is the fallback discovery path when no registry entry exists.
func NewestRunDir(logDir, job string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(logDir, job+"-*"))
	if err != nil {
		return "", fmt.Errorf("failed to list run directories: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest, newestMod = m, info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no run directory for job %s under %s", job, logDir)
	}
	return newest, nil
}

// WriteJSON persists v as indented JSON via a temp file rename, so
// concurrent readers never observe a partial snapshot.
func WriteJSON(path string, v any) error {
	return writeJSON(path, v, "    ")
}

func writeJSON(path string, v any, indent string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteWork snapshots the full queue to work.json.
func WriteWork(dir string, records []work.Record) error {
	return WriteJSON(filepath.Join(dir, WorkFile), records)
}

// WriteWorkStatus snapshots the packages in the given status to
// <status>-work.json, e.g. failed-work.json.
func WriteWorkStatus(dir string, records []work.Record, status work.Status) error {
	name := strings.ToLower(string(status)) + "-work.json"
	return WriteJSON(filepath.Join(dir, name), work.Filter(records, status))
}

// WriteWorkfile writes a parameter batch for one array submission and
// returns its path. Worker tasks index into the file by task id.
func WriteWorkfile(workdir string, params []work.Params) (string, error) {
	path := filepath.Join(workdir, fmt.Sprintf("%s-workfile.json", uuid.New()))
	if err := writeJSON(path, params, "  "); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRetryParams writes the parameter bundles of a retry attempt into
// an existing run directory and returns the file's path. The file is a
// plain param file, so a retry config can point at it directly.
func WriteRetryParams(dir string, params []work.Params) (string, error) {
	path := filepath.Join(dir, "params-retry.json")
	if err := writeJSON(path, params, "  "); err != nil {
		return "", err
	}
	return path, nil
}

// LoadWork reads a queue snapshot back from a run directory.
func LoadWork(dir string) ([]work.Record, error) {
	return work.LoadFile(filepath.Join(dir, WorkFile))
}

// CLIState records the last control plane started from this machine.
type CLIState struct {
	Account string `json:"account"`
	Config  string `json:"config"`
	JobID   string `json:"job_id"`
	Stderr  string `json:"stderr"`
	Stdout  string `json:"stdout"`
}

// CLIStatePath returns ~/.slurm-pipeline.
func CLIStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, cliStateFile), nil
}

// SaveCLIState persists the CLI state to ~/.slurm-pipeline.
func SaveCLIState(s CLIState) error {
	path, err := CLIStatePath()
	if err != nil {
		return err
	}
	return WriteJSON(path, s)
}

// LoadCLIState reads ~/.slurm-pipeline back.
func LoadCLIState() (CLIState, error) {
	path, err := CLIStatePath()
	if err != nil {
		return CLIState{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return CLIState{}, fmt.Errorf("failed to read CLI state, did you start a pipeline? %w", err)
	}

	var s CLIState
	if err := json.Unmarshal(data, &s); err != nil {
		return CLIState{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}
