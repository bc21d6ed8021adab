package slurm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime parses sbatch time limit strings. Acceptable formats are
// "minutes", "minutes:seconds", "hours:minutes:seconds", "days-hours",
// "days-hours:minutes" and "days-hours:minutes:seconds"
// (https://slurm.schedmd.com/sbatch.html#OPT_time). An empty string
// yields zero.
func ParseTime(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	var days, hours, mins, secs int64
	var hasDays bool
	rest := s

	if i := strings.IndexByte(rest, '-'); i >= 0 {
		d, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		days = d
		hasDays = true
		rest = rest[i+1:]
	}

	parts := strings.Split(rest, ":")
	vals := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		vals[i] = v
	}

	switch {
	case len(vals) == 1 && hasDays:
		hours = vals[0]
	case len(vals) == 2 && hasDays:
		hours, mins = vals[0], vals[1]
	case len(vals) == 1:
		mins = vals[0]
	case len(vals) == 2:
		mins, secs = vals[0], vals[1]
	case len(vals) == 3:
		hours, mins, secs = vals[0], vals[1], vals[2]
	default:
		return 0, fmt.Errorf("invalid time %q", s)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second, nil
}

// Minutes returns the time limit rounded to whole minutes. Unparseable
// strings count as zero.
func Minutes(s string) int {
	d, err := ParseTime(s)
	if err != nil {
		return 0
	}
	return int((d + 30*time.Second) / time.Minute)
}
