package viz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Emyrk/pstatviz/viz/profiling"
	"github.com/Emyrk/pstatviz/viz/pstats"
)

// ErrUnreadableProfile is returned when a file exists but cannot be decoded
// as a profile.
var ErrUnreadableProfile = errors.New("unreadable profile")

var pprofSuffixes = []string{".pprof", ".pb.gz", ".pb"}

// IsPprof reports whether a file name looks like a pprof profile.
func IsPprof(path string) bool {
	for _, suffix := range pprofSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// LoadProfile reads a profile file. pprof files are aggregated into records,
// anything else is decoded as JSON records.
func LoadProfile(path string) ([]pstats.Record, error) {
	read := pstats.ReadFile
	if IsPprof(path) {
		read = profiling.ReadFile
	}

	records, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", path, ErrUnreadableProfile, err)
	}
	return records, nil
}
