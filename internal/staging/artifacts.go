package staging

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"behaviorpipe/internal/textutil"
)

// Class is a kind of artifact published from scratch, identified by suffix.
type Class string

const (
	ClassAVI    Class = ".avi"
	ClassMP4    Class = ".mp4"
	ClassCSV    Class = ".csv"
	ClassPickle Class = ".pickle"
	ClassH5     Class = ".h5"
	ClassXLSX   Class = ".xlsx"
)

// AllClasses lists every artifact class the pipeline produces.
func AllClasses() []Class {
	return []Class{ClassAVI, ClassMP4, ClassCSV, ClassPickle, ClassH5, ClassXLSX}
}

// Match returns the files in dir whose suffix matches class, in natural
// order. A missing dir yields no files.
func Match(dir string, class Class) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), string(class)) {
			names = append(names, entry.Name())
		}
	}
	textutil.SortNatural(names)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// trialMediaPattern matches the per-trial container-A video, e.g. 12.avi.
var trialMediaPattern = regexp.MustCompile(`^\d+\.avi$`)

// IsTrialMedia reports whether name is a per-trial video.
func IsTrialMedia(name string) bool {
	return trialMediaPattern.MatchString(name)
}

// ListTrialMedia returns the per-trial videos in dir in natural order.
func ListTrialMedia(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && IsTrialMedia(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	textutil.SortNatural(names)
	return names, nil
}

// CountTrialMedia counts the per-trial videos in dir.
func CountTrialMedia(dir string) (int, error) {
	names, err := ListTrialMedia(dir)
	return len(names), err
}
