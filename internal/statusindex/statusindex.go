package statusindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"behaviorpipe/internal/fileutil"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/services"
)

// FileName is the status file kept inside every group directory.
const FileName = "status.json"

// Entry is the cached state of one work-unit.
type Entry struct {
	Processed  bool `json:"processed"`
	TrialCount int  `json:"trial_count"`
}

// UnmarshalJSON accepts the folder_cnt key written by earlier pipeline
// versions.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Processed  bool `json:"processed"`
		TrialCount *int `json:"trial_count"`
		FolderCnt  *int `json:"folder_cnt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Processed = raw.Processed
	switch {
	case raw.TrialCount != nil:
		e.TrialCount = *raw.TrialCount
	case raw.FolderCnt != nil:
		e.TrialCount = *raw.FolderCnt
	default:
		e.TrialCount = 0
	}
	return nil
}

// Index maps work-unit names to their cached entries for one group.
type Index map[string]Entry

// Names returns the work-unit names in sorted order.
func (i Index) Names() []string {
	return slices.Sorted(maps.Keys(i))
}

// SameUnits reports whether names is exactly the set of units in the index.
func (i Index) SameUnits(names []string) bool {
	if len(names) != len(i) {
		return false
	}
	for _, name := range names {
		if _, ok := i[name]; !ok {
			return false
		}
	}
	return true
}

// Path returns the status file location for a group directory.
func Path(groupDir string) string {
	return filepath.Join(groupDir, FileName)
}

// Store reads and writes group status files. Writes through one Store are
// serialized so concurrent work-units of a group cannot lose updates.
type Store struct {
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore constructs a status store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logging.NewComponentLogger(logger, "status_index")}
}

// Load reads the status file at path. exists is false when no file is
// present, in which case the index is empty and err is nil.
func (s *Store) Load(path string) (idx Index, exists bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Index{}, false, nil
		}
		return nil, false, services.Wrap(services.ErrTransient, "", "status read", path, err)
	}
	idx = Index{}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, true, services.Wrap(services.ErrValidation, "", "status parse", path, err)
	}
	if idx == nil {
		idx = Index{}
	}
	return idx, true, nil
}

// Save writes idx to path. It reports whether the file changed; identical
// content is left untouched.
func (s *Store) Save(path string, idx Index) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(path, idx)
}

func (s *Store) saveLocked(path string, idx Index) (bool, error) {
	if idx == nil {
		idx = Index{}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode status: %w", err)
	}
	data = append(data, '\n')
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return false, services.Wrap(services.ErrTransient, "", "status write", path, err)
	}
	return true, nil
}

// MarkProcessed flips one work-unit to processed. The status file and the
// unit's entry must already exist.
func (s *Store) MarkProcessed(path, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists, err := s.Load(path)
	if err != nil {
		return err
	}
	if !exists {
		return services.Wrap(services.ErrNotFound, "", "status mark processed", fmt.Sprintf("%s does not exist", path), nil)
	}
	entry, ok := idx[unit]
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "status mark processed", fmt.Sprintf("work-unit %q not in %s", unit, path), nil)
	}
	if entry.Processed {
		return nil
	}
	entry.Processed = true
	idx[unit] = entry
	if _, err := s.saveLocked(path, idx); err != nil {
		return err
	}
	s.logger.Info("work-unit marked processed",
		logging.String(logging.FieldSession, unit),
		logging.String("path", path),
		logging.String(logging.FieldEventType, "status_processed"),
	)
	return nil
}
