package scheduler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eubucco/slurm-pipeline/pkg/work"
)

// initQueue builds the work queue from the job's param files or its
// param generator. Parameter bundles whose resource resolution fails
// become pre-failed packages; they count toward the init failure rate
// but are never submitted.
func (s *Scheduler) initQueue(ctx context.Context) error {
	s.logger.Info().Msg("Initialized queue...")

	bundles, err := s.workParams(ctx)
	if err != nil {
		return err
	}

	for _, params := range bundles {
		name := fmt.Sprintf("%s.%d", s.job.Name, len(s.packages))

		res, err := s.resolver(s.job, params)
		if err != nil {
			s.logger.Error().Msgf("Failed to initialize work package for %v: %v", params, err)
			p := work.InitFailed(params, err.Error())
			p.Name = name
			s.packages = append(s.packages, p)
			continue
		}

		p := work.New(params, res.CPUs, res.Mem, res.Time, res.Partition)
		p.Name = name
		s.packages = append(s.packages, p)
	}

	s.nTotal = len(s.packages)
	s.nInitFailed = len(s.failedWork())

	s.persistWork()
	s.updateMetrics()
	return nil
}

func (s *Scheduler) workParams(ctx context.Context) ([]work.Params, error) {
	if s.job.ParamGeneratorFile != "" {
		params, err := s.generateParams(ctx)
		if err != nil {
			return nil, err
		}
		return s.capParams(params), nil
	}

	var bundles []work.Params
	for _, file := range s.job.ParamFiles {
		params, err := s.readParamFile(file)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, s.capParams(params)...)
	}
	return bundles, nil
}

// readParamFile loads one param file as a list of parameter bundles.
// The format follows the extension: YAML list, JSON array, or CSV with
// a header row. A missing file contributes zero packages so a partial
// configuration still runs.
func (s *Scheduler) readParamFile(path string) ([]work.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Error().Msgf("Could not find param file %s.", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read param file %s: %w", path, err)
	}

	var params []work.Params
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("failed to parse param file %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("failed to parse param file %s: %w", path, err)
		}
	case ".csv":
		params, err = parseCSVParams(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse param file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported param file type %q: please specify a param file of type YAML, JSON, or CSV", ext)
	}

	return params, nil
}

// generateParams executes the param generator and parses its stdout as
// a JSON array of parameter bundles.
func (s *Scheduler) generateParams(ctx context.Context) ([]work.Params, error) {
	s.logger.Info().Msgf("Generating work params with %s...", s.job.ParamGeneratorFile)

	stdout, stderr, err := s.runner.Run(ctx, s.job.ParamGeneratorFile)
	if err != nil {
		if len(stderr) > 0 {
			return nil, fmt.Errorf("param generator %s failed: %s", s.job.ParamGeneratorFile, strings.TrimSpace(string(stderr)))
		}
		return nil, fmt.Errorf("param generator %s failed: %w", s.job.ParamGeneratorFile, err)
	}

	var params []work.Params
	if err := json.Unmarshal(stdout, &params); err != nil {
		return nil, fmt.Errorf("failed to parse output of param generator %s: %w", s.job.ParamGeneratorFile, err)
	}
	return params, nil
}

// capParams truncates a bundle list to the job's n cap when one is set.
func (s *Scheduler) capParams(params []work.Params) []work.Params {
	if s.job.N > 0 && len(params) > s.job.N {
		return params[:s.job.N]
	}
	return params
}

// parseCSVParams reads CSV rows into parameter bundles keyed by the
// header row. All values are strings.
func parseCSVParams(data []byte) ([]work.Params, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	params := make([]work.Params, 0, len(rows)-1)
	for _, row := range rows[1:] {
		p := make(work.Params, len(header))
		for i, col := range header {
			if i < len(row) {
				p[col] = row[i]
			}
		}
		params = append(params, p)
	}
	return params, nil
}
