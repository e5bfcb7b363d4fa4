package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"behaviorpipe/internal/fileutil"
	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/textutil"
)

// FileName is the manifest file kept inside every work-unit directory.
const FileName = "meta-data.json"

const (
	keyFolders  = "folders"
	keyStage    = "stage"
	keyLastTask = "last_task"
)

// Manifest is the persisted progress record of one work-unit.
type Manifest struct {
	Folders []string      `json:"folders"`
	Stage   session.Stage `json:"stage"`
}

// Path returns the manifest location for a work-unit directory.
func Path(sessionDir string) string {
	return filepath.Join(sessionDir, FileName)
}

// Store reads and writes work-unit manifests. Side effects are confined to
// the manifest files themselves.
type Store struct {
	logger *slog.Logger
}

// NewStore constructs a manifest store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logging.NewComponentLogger(logger, "manifest")}
}

// Read returns the work-unit's current stage. A manifest without a stage is
// healed to the initial stage (or to the stage its legacy last_task names)
// and persisted. A missing file yields an error matching services.ErrNotFound.
func (s *Store) Read(path string) (session.Stage, error) {
	m, err := s.Load(path)
	if err != nil {
		return "", err
	}
	return m.Stage, nil
}

// Load returns the full manifest, healing a missing stage as Read does.
func (s *Store) Load(path string) (Manifest, error) {
	fields, err := readFields(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if raw, ok := fields[keyFolders]; ok {
		if err := json.Unmarshal(raw, &m.Folders); err != nil {
			return Manifest{}, corrupt(path, "folders", err)
		}
	}

	stage, present, err := decodeStage(fields)
	if err != nil {
		return Manifest{}, corrupt(path, "stage", err)
	}
	m.Stage = stage
	if present {
		return m, nil
	}

	if err := writeStage(path, fields, stage); err != nil {
		return Manifest{}, err
	}
	s.logger.Info("manifest stage healed",
		logging.String("path", path),
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldEventType, "manifest_healed"),
	)
	return m, nil
}

// Peek returns the stage the manifest records without healing or writing
// anything.
func (s *Store) Peek(path string) (session.Stage, error) {
	fields, err := readFields(path)
	if err != nil {
		return "", err
	}
	stage, _, err := decodeStage(fields)
	if err != nil {
		return "", corrupt(path, "stage", err)
	}
	return stage, nil
}

// Create writes a fresh manifest listing trialFolders in natural order at the
// initial stage.
func (s *Store) Create(path string, trialFolders []string) (session.Stage, error) {
	folders := append([]string(nil), trialFolders...)
	textutil.SortNatural(folders)
	if folders == nil {
		folders = []string{}
	}
	m := Manifest{Folders: folders, Stage: session.InitialStage}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "", "manifest create", path, err)
	}
	s.logger.Debug("manifest created",
		logging.String("path", path),
		logging.Int("trial_count", len(folders)),
		logging.String(logging.FieldEventType, "manifest_created"),
	)
	return m.Stage, nil
}

// ReadOrCreate reads the manifest at path, creating it from trialFolders when
// it does not exist.
func (s *Store) ReadOrCreate(path string, trialFolders []string) (session.Stage, error) {
	stage, err := s.Read(path)
	if errors.Is(err, services.ErrNotFound) {
		return s.Create(path, trialFolders)
	}
	return stage, err
}

// Advance overwrites the stage field and leaves every other field as found.
// An unparseable manifest is reported with a warning and an error; it never
// panics, so one corrupt manifest cannot take down a batch.
func (s *Store) Advance(path string, next session.Stage) error {
	if !next.Valid() {
		return services.Wrap(services.ErrValidation, "", "manifest advance", fmt.Sprintf("unknown stage %q", next), nil)
	}
	fields, err := readFields(path)
	if err != nil {
		logging.WarnWithContext(s.logger, "manifest advance failed; stage not recorded", "manifest_advance_failed",
			logging.String("path", path),
			logging.String(logging.FieldStage, string(next)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect or delete the manifest so it is rebuilt on the next run"),
			logging.String(logging.FieldImpact, "work-unit stays at its previous stage and will repeat this stage"),
		)
		return err
	}
	if current, present, err := decodeStage(fields); err == nil && present && current == next {
		return nil
	}
	return writeStage(path, fields, next)
}

// ListTrialFolders returns the non-hidden subdirectories of sessionDir in
// natural order.
func ListTrialFolders(sessionDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	textutil.SortNatural(names)
	return names, nil
}

func readFields(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "", "manifest read", path, err)
		}
		return nil, services.Wrap(services.ErrTransient, "", "manifest read", path, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, corrupt(path, "document", err)
	}
	if fields == nil {
		return nil, corrupt(path, "document", errors.New("manifest is null"))
	}
	return fields, nil
}

// decodeStage returns the stage recorded in fields. present is false when the
// document carries no stage, in which case the healed stage is returned.
func decodeStage(fields map[string]json.RawMessage) (session.Stage, bool, error) {
	if raw, ok := fields[keyStage]; ok {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", false, err
		}
		if value != "" {
			stage, err := session.ParseStage(value)
			if err != nil {
				return "", false, err
			}
			return stage, true, nil
		}
	}
	if raw, ok := fields[keyLastTask]; ok {
		var value string
		if err := json.Unmarshal(raw, &value); err == nil && value != "" {
			if stage, err := session.ParseStage(value); err == nil {
				return stage, false, nil
			}
		}
	}
	return session.InitialStage, false, nil
}

func writeStage(path string, fields map[string]json.RawMessage, stage session.Stage) error {
	encoded, err := json.Marshal(string(stage))
	if err != nil {
		return fmt.Errorf("encode stage: %w", err)
	}
	fields[keyStage] = encoded
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "", "manifest write", path, err)
	}
	return nil
}

func corrupt(path, what string, err error) error {
	return services.Wrap(services.ErrValidation, "", "manifest parse", fmt.Sprintf("%s: invalid %s", path, what), err)
}
