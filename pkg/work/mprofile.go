package work

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// PeakMem scans a memory-profiler artifact for its peak sample in MB.
// The file holds lines of the form "MEM <mb> <timestamp>". It returns
// false when the file is missing or carries no samples; profiling is
// best effort and never fails a package.
func PeakMem(path string) (float64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var peak float64
	found := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MEM" {
			continue
		}
		mb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		if !found || mb > peak {
			peak = mb
			found = true
		}
	}

	return peak, found
}
