package policy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/log"
	"github.com/eubucco/slurm-pipeline/pkg/work"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Resolve returns the effective resource request for one parameter
// bundle. It starts from the job's default resources and overlays the
// first special case whose file rule matches the on-disk size of its
// interpolated path. Errors (unknown placeholder, missing path) mean
// the package cannot be sized; the caller converts them into a
// pre-failed work package.
func Resolve(job config.Job, params work.Params) (config.Resources, error) {
	res := job.Resources

	for idx, sc := range job.SpecialCases {
		if sc.Files == nil {
			continue
		}

		path, err := Interpolate(sc.Files.Path, params)
		if err != nil {
			return config.Resources{}, fmt.Errorf("special_cases[%d]: %w", idx, err)
		}

		size, err := PathSize(path)
		if err != nil {
			return config.Resources{}, fmt.Errorf("special_cases[%d]: %w", idx, err)
		}

		if !sizeInWindow(size, sc.Files) {
			continue
		}

		policyLog := log.WithComponent("policy")
		policyLog.Debug().
			Str("path", path).
			Int64("size", size).
			Msgf("Special case %d matched, overriding resources", idx)
		return sc.Resources.Apply(res), nil
	}

	return res, nil
}

// Interpolate replaces {{var}} placeholders in the path template with
// the corresponding parameter values. A placeholder with no matching
// parameter is an error.
func Interpolate(template string, params work.Params) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			missing = name
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("unknown parameter %q in path template %q", missing, template)
	}
	return out, nil
}

// PathSize measures the total byte size behind a path: the size of a
// regular file, the recursive sum of a directory, or the sum over all
// glob matches. A path that resolves to nothing is an error.
func PathSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return dirSize(path)
		}
		return info.Size(), nil
	}

	matches, globErr := filepath.Glob(path)
	if globErr != nil || len(matches) == 0 {
		return 0, fmt.Errorf("failed to measure %s: %w", path, err)
	}

	var total int64
	for _, m := range matches {
		size, err := PathSize(m)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure %s: %w", dir, err)
	}
	return total, nil
}

func sizeInWindow(size int64, rule *config.FileRule) bool {
	if rule.SizeMin != nil && size < *rule.SizeMin {
		return false
	}
	if rule.SizeMax != nil && size > *rule.SizeMax {
		return false
	}
	return true
}
