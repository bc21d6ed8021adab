package slurm

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/sbatch.sh templates/sbatch-workfile.sh
var templateFS embed.FS

// Templates holds the on-disk locations of the sbatch wrapper scripts.
type Templates struct {
	Run      string
	Workfile string
}

// WriteTemplates materialises the embedded wrapper scripts into dir so
// sbatch can read them, and returns their paths. Existing files are
// overwritten; the scripts are static per binary version.
func WriteTemplates(dir string) (Templates, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Templates{}, fmt.Errorf("failed to create template dir %s: %w", dir, err)
	}

	t := Templates{
		Run:      filepath.Join(dir, "sbatch.sh"),
		Workfile: filepath.Join(dir, "sbatch-workfile.sh"),
	}

	for name, path := range map[string]string{
		"templates/sbatch.sh":          t.Run,
		"templates/sbatch-workfile.sh": t.Workfile,
	} {
		data, err := templateFS.ReadFile(name)
		if err != nil {
			return Templates{}, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}
		if err := os.WriteFile(path, data, 0o755); err != nil {
			return Templates{}, fmt.Errorf("failed to write template %s: %w", path, err)
		}
	}

	return t, nil
}
