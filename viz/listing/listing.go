// Package listing builds the directory browser view: one entry per file with
// profile details where the file can be read as a profile.
package listing

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/rs/zerolog"
)

// Loader reads the records of a profile file.
type Loader func(path string) ([]pstats.Record, error)

type Entry struct {
	Path          string   `json:"path"`
	Href          string   `json:"href"`
	FileSize      *int64   `json:"file_size"`
	ExecutionTime *float64 `json:"execution_time"`
	TotalCalls    *int64   `json:"total_calls"`
}

type Lister struct {
	Load Loader
	// Href builds the link of an absolute path. Defaults to the escaped path
	// itself.
	Href   func(path string) string
	Logger zerolog.Logger
}

func (l Lister) href(path string) string {
	if l.Href != nil {
		return l.Href(path)
	}
	return url.PathEscape(path)
}

// List describes the contents of dir. The first entry always points at the
// parent directory. Hidden entries are skipped, directories get a "/" suffix
// and symlinks an "@" suffix.
func (l Lister) List(dir string) ([]Entry, error) {
	logger := l.Logger
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries)+1)
	entries = append(entries, Entry{
		Path: "..",
		Href: l.href(filepath.Dir(abs)),
	})

	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		fullname := filepath.Join(abs, name)

		// Stat follows symlinks, fall back to the link itself when broken.
		info, err := os.Stat(fullname)
		if err != nil {
			info, err = os.Lstat(fullname)
			if err != nil {
				logger.Debug().Err(err).Str("path", fullname).Msg("stat entry")
				continue
			}
		}

		display := name
		if info.IsDir() {
			display += "/"
		}
		if de.Type()&os.ModeSymlink != 0 {
			display += "@"
		}

		size := info.Size()
		entry := Entry{
			Path:     display,
			Href:     l.href(fullname),
			FileSize: &size,
		}

		if !info.IsDir() {
			records, err := l.Load(fullname)
			if err != nil {
				logger.Debug().Err(err).Str("path", fullname).Msg("not a profile")
			} else {
				calls, total := pstats.Summary(records)
				entry.TotalCalls = &calls
				entry.ExecutionTime = &total
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
