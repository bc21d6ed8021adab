package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eubucco/slurm-pipeline/pkg/state"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

var stdoutCmd = &cobra.Command{
	Use:   "stdout",
	Short: "Show the stdout log of a work package",
	Long: `Stdout prints the captured stdout of a single work package. The package
is picked by Slurm job id, by job name with an optional index (-j
prep.3), or by a regex over its param values; without a selector every
package is a candidate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLog(cmd, "stdout")
	},
}

var stderrCmd = &cobra.Command{
	Use:   "stderr",
	Short: "Show the stderr log of a work package",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLog(cmd, "stderr")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{stdoutCmd, stderrCmd} {
		cmd.Flags().StringP("job", "j", "", "Job name, optionally with a package index (name.3)")
		cmd.Flags().StringP("job-id", "i", "", "Slurm job id of the work package")
		cmd.Flags().StringP("params", "p", "", "Regex matched against the package's param values")
		cmd.Flags().BoolP("failed", "f", false, "Only consider failed work packages")
		cmd.Flags().BoolP("control", "c", false, "Show the control plane's own log instead")
		rootCmd.AddCommand(cmd)
	}
}

var errNoPackage = errors.New("could not find work package for given options")

func showLog(cmd *cobra.Command, stream string) error {
	jobFlag, _ := cmd.Flags().GetString("job")
	jobID, _ := cmd.Flags().GetString("job-id")
	pattern, _ := cmd.Flags().GetString("params")
	failedOnly, _ := cmd.Flags().GetBool("failed")
	control, _ := cmd.Flags().GetBool("control")

	if control {
		return showControlLog(stream)
	}

	_, cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	states, err := workStates(cfg)
	if err != nil {
		return err
	}

	rec, err := selectPackage(states, jobFlag, jobID, pattern, failedOnly)
	if err != nil {
		return err
	}

	path := deref(rec.Stdout)
	if stream == "stderr" {
		path = deref(rec.Stderr)
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		fmt.Printf("Log file for job %s is empty or does not yet exist.\n", packageID(rec))
		return nil
	}
	fmt.Print(string(data))
	return nil
}

func showControlLog(stream string) error {
	st, err := state.LoadCLIState()
	if err != nil {
		return err
	}

	path := st.Stdout
	if stream == "stderr" {
		path = st.Stderr
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		fmt.Printf("Log file %s is empty or does not yet exist.\n", path)
		return nil
	}
	fmt.Print(string(data))
	return nil
}

// selectPackage resolves the log flags to a single work package. The
// job id wins over the job name, which wins over the params regex.
func selectPackage(states []jobState, jobFlag, jobID, pattern string, failedOnly bool) (work.Record, error) {
	if jobID != "" {
		for _, js := range states {
			if rec, ok := work.FindByJobID(js.records, jobID); ok {
				return rec, nil
			}
		}
		return work.Record{}, errNoPackage
	}

	if jobFlag != "" {
		name, idx, hasIdx, err := splitJobFlag(jobFlag)
		if err != nil {
			return work.Record{}, err
		}
		js, ok := findState(states, name)
		if !ok {
			return work.Record{}, fmt.Errorf("%s job is unknown", name)
		}
		if hasIdx {
			if idx < 0 || idx >= len(js.records) {
				return work.Record{}, fmt.Errorf("could not find work package for given options, job index %d is out of bounds", idx)
			}
			return js.records[idx], nil
		}
		return pickPackage([]jobState{js}, false)
	}

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return work.Record{}, fmt.Errorf("invalid params pattern: %w", err)
		}
		for _, js := range states {
			for _, rec := range js.records {
				if work.MatchParams(rec, re) {
					return rec, nil
				}
			}
		}
		return work.Record{}, errNoPackage
	}

	return pickPackage(states, failedOnly)
}

// pickPackage returns the only matching package, or lists the matches
// so the operator can narrow the selection.
func pickPackage(states []jobState, failedOnly bool) (work.Record, error) {
	type candidate struct {
		label string
		rec   work.Record
	}
	var cands []candidate
	for _, js := range states {
		for idx, rec := range js.records {
			if failedOnly && rec.Status != string(work.StatusFailed) {
				continue
			}
			cands = append(cands, candidate{
				label: fmt.Sprintf("Job: %s #%d (Slurm id: %s)", js.job.Name, idx, packageID(rec)),
				rec:   rec,
			})
		}
	}

	switch len(cands) {
	case 0:
		return work.Record{}, errNoPackage
	case 1:
		return cands[0].rec, nil
	}

	fmt.Println("Please select a work package:")
	for _, c := range cands {
		fmt.Printf("  %s\n", c.label)
	}
	return work.Record{}, errors.New("multiple work packages match, narrow the selection with -j job.index or -i job-id")
}

func splitJobFlag(flag string) (name string, idx int, hasIdx bool, err error) {
	name, idxStr, found := strings.Cut(flag, ".")
	if !found {
		return name, 0, false, nil
	}
	idx, err = strconv.Atoi(idxStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid job index %q", idxStr)
	}
	return name, idx, true, nil
}

func packageID(rec work.Record) string {
	if id := deref(rec.JobID); id != "" {
		return id
	}
	return rec.Name
}
