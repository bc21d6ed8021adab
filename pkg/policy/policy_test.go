package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eubucco/slurm-pipeline/pkg/config"
	"github.com/eubucco/slurm-pipeline/pkg/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

// TestInterpolate tests {{var}} substitution from params
func TestInterpolate(t *testing.T) {
	params := work.Params{"country": "germany", "city": "berlin", "n": 3}

	out, err := Interpolate("/data/{{country}}/{{city}}.gpkg", params)
	require.NoError(t, err)
	assert.Equal(t, "/data/germany/berlin.gpkg", out)

	out, err = Interpolate("/data/{{ city }}/part-{{n}}", params)
	require.NoError(t, err)
	assert.Equal(t, "/data/berlin/part-3", out)

	out, err = Interpolate("/data/static", params)
	require.NoError(t, err)
	assert.Equal(t, "/data/static", out)

	_, err = Interpolate("/data/{{region}}", params)
	assert.ErrorContains(t, err, "region")
}

// TestPathSize tests file, directory and glob measurement
func TestPathSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), 100)
	writeFile(t, filepath.Join(dir, "b.csv"), 50)
	writeFile(t, filepath.Join(dir, "nested", "c.csv"), 25)

	size, err := PathSize(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)

	size, err = PathSize(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(175), size)

	size, err = PathSize(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	assert.Equal(t, int64(150), size)

	_, err = PathSize(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

// TestResolveDefaults tests pass-through without special cases
func TestResolveDefaults(t *testing.T) {
	job := config.Job{
		Resources: config.Resources{CPUs: 2, Time: "04:00:00"},
	}

	res, err := Resolve(job, work.Params{"city": "berlin"})
	require.NoError(t, err)
	assert.Equal(t, job.Resources, res)
}

// TestResolveSpecialCase tests size-window matching and override merging
func TestResolveSpecialCase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "berlin.gpkg"), 1000)

	job := config.Job{
		Resources: config.Resources{CPUs: 2, Time: "04:00:00"},
		SpecialCases: []config.SpecialCase{
			{
				Files: &config.FileRule{
					Path:    filepath.Join(dir, "{{city}}.gpkg"),
					SizeMin: int64Ptr(500),
				},
				Resources: config.ResourceOverride{
					CPUs: intPtr(16),
					Mem:  intPtr(120000),
				},
			},
		},
	}

	res, err := Resolve(job, work.Params{"city": "berlin"})
	require.NoError(t, err)
	assert.Equal(t, 16, res.CPUs)
	assert.Equal(t, 120000, res.Mem)
	assert.Equal(t, "04:00:00", res.Time, "unset override fields keep the defaults")
}

// TestResolveSizeWindow tests both window bounds
func TestResolveSizeWindow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input"), 1000)

	tests := []struct {
		name    string
		min     *int64
		max     *int64
		matched bool
	}{
		{name: "open window", matched: true},
		{name: "inside both bounds", min: int64Ptr(500), max: int64Ptr(2000), matched: true},
		{name: "at min", min: int64Ptr(1000), matched: true},
		{name: "at max", max: int64Ptr(1000), matched: true},
		{name: "below min", min: int64Ptr(1001), matched: false},
		{name: "above max", max: int64Ptr(999), matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := config.Job{
				Resources: config.Resources{CPUs: 1},
				SpecialCases: []config.SpecialCase{
					{
						Files:     &config.FileRule{Path: filepath.Join(dir, "input"), SizeMin: tt.min, SizeMax: tt.max},
						Resources: config.ResourceOverride{CPUs: intPtr(8)},
					},
				},
			}

			res, err := Resolve(job, work.Params{})
			require.NoError(t, err)
			if tt.matched {
				assert.Equal(t, 8, res.CPUs)
			} else {
				assert.Equal(t, 1, res.CPUs)
			}
		})
	}
}

// TestResolveFirstMatchWins tests special case ordering
func TestResolveFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "input"), 1000)

	job := config.Job{
		Resources: config.Resources{CPUs: 1},
		SpecialCases: []config.SpecialCase{
			{
				Files:     &config.FileRule{Path: filepath.Join(dir, "input"), SizeMin: int64Ptr(5000)},
				Resources: config.ResourceOverride{CPUs: intPtr(4)},
			},
			{
				Files:     &config.FileRule{Path: filepath.Join(dir, "input")},
				Resources: config.ResourceOverride{CPUs: intPtr(8), Partition: strPtr("broadwell")},
			},
			{
				Files:     &config.FileRule{Path: filepath.Join(dir, "input")},
				Resources: config.ResourceOverride{CPUs: intPtr(64)},
			},
		},
	}

	res, err := Resolve(job, work.Params{})
	require.NoError(t, err)
	assert.Equal(t, 8, res.CPUs, "first matching case wins")
	assert.Equal(t, "broadwell", res.Partition)
}

// TestResolveMissingPath tests the pre-fail error contract
func TestResolveMissingPath(t *testing.T) {
	job := config.Job{
		Resources: config.Resources{CPUs: 1},
		SpecialCases: []config.SpecialCase{
			{
				Files:     &config.FileRule{Path: "/nonexistent/{{city}}.gpkg"},
				Resources: config.ResourceOverride{CPUs: intPtr(4)},
			},
		},
	}

	_, err := Resolve(job, work.Params{"city": "berlin"})
	assert.ErrorContains(t, err, "berlin.gpkg")

	_, err = Resolve(job, work.Params{})
	assert.ErrorContains(t, err, "unknown parameter")
}
