// Package watermark derives the delta cutoff of an entity type from the
// names of the batch files already written for it.
package watermark

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Layout is the timestamp segment of batch file names.
const Layout = "20060102T150405"

// Mark is a resolved cutoff. File is the batch file it was derived from,
// empty when there is none. A zero Since means everything is fetched.
type Mark struct {
	Since time.Time
	File  string
}

// IsFull reports whether the mark selects every entity.
func (m Mark) IsFull() bool {
	return m.Since.IsZero()
}

// Resolver looks for batch files in the incoming and processed folders.
type Resolver struct {
	Incoming  string
	Processed string
	Overlap   time.Duration
	// Location of the file name timestamps. Defaults to time.Local.
	Location *time.Location
}

// Resolve returns the cutoff for entityType: the timestamp of its
// lexicographically last batch file minus the overlap. Without a usable
// file the zero time is returned. Missing folders count as empty.
func (r Resolver) Resolve(entityType string) (Mark, error) {
	last, err := Latest(entityType, r.Incoming, r.Processed)
	if err != nil {
		return Mark{}, err
	}
	if last == "" {
		return Mark{}, nil
	}

	ts, ok := ParseFileName(entityType, last, r.location())
	if !ok {
		log.Printf("[Watermark] Cannot read timestamp of %s, fetching all %s entities", last, entityType)
		return Mark{File: last}, nil
	}
	if ts.IsZero() {
		return Mark{File: last}, nil
	}
	return Mark{Since: ts.Add(-r.Overlap), File: last}, nil
}

func (r Resolver) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.Local
}

// Latest returns the base name of the lexicographically last
// "<entityType>_*.json" file across dirs, or "" when there is none.
func Latest(entityType string, dirs ...string) (string, error) {
	var names []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, entityType+"_*.json"))
		if err != nil {
			return "", fmt.Errorf("list %s files in %s: %w", entityType, dir, err)
		}
		for _, m := range matches {
			names = append(names, filepath.Base(m))
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

// ParseFileName reads the timestamp segment of a batch file name, the one
// following "<entityType>_". ok is false when it does not match Layout.
func ParseFileName(entityType, name string, loc *time.Location) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	rest, found := strings.CutPrefix(base, entityType+"_")
	if !found {
		return time.Time{}, false
	}
	segment, _, _ := strings.Cut(rest, "_")

	// Hours parse from a single digit, so the width is checked first.
	if len(segment) != len(Layout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(Layout, segment, loc)
	if err != nil {
		return time.Time{}, false
	}
	if ts.Year() == 1 && ts.YearDay() == 1 && ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
		return time.Time{}, true
	}
	return ts, true
}
