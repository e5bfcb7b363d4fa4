package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"behaviorpipe/internal/logging"
	"behaviorpipe/internal/manifest"
	"behaviorpipe/internal/services"
	"behaviorpipe/internal/session"
	"behaviorpipe/internal/statusindex"
)

// Pending is a work-unit that still has stages to run.
type Pending struct {
	Group      string
	Unit       string
	TrialCount int
	Stage      session.Stage
}

// UnitError records a work-unit that could not be reconciled, typically
// because its manifest is corrupt.
type UnitError struct {
	Group string
	Unit  string
	Err   error
}

func (e UnitError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("%s/%s: %v", e.Group, e.Unit, e.Err)
}

func (e UnitError) Unwrap() error { return e.Err }

// Result summarizes one reconciliation pass over the input root.
type Result struct {
	Pending []Pending
	Groups  int
	// Rebuilt lists groups whose status file was created or rebuilt because
	// the set of work-units on disk changed.
	Rebuilt []string
	Errors  []UnitError
}

// Outstanding counts pending work-units.
func (r Result) Outstanding() int { return len(r.Pending) }

// Reconciler compares the cached status files against the input tree and
// repairs them.
type Reconciler struct {
	manifests *manifest.Store
	status    *statusindex.Store
	logger    *slog.Logger
}

// New constructs a reconciler.
func New(manifests *manifest.Store, status *statusindex.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		manifests: manifests,
		status:    status,
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Reconcile walks every group under inputRoot. A group that cannot be read is
// recorded in Result.Errors and the walk continues; only an unreadable input
// root is returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, inputRoot string) (Result, error) {
	groups, err := listDirs(inputRoot)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "", "reconcile", fmt.Sprintf("read input root %s", inputRoot), err)
	}

	var result Result
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Groups++
		outcome, err := r.reconcileGroup(ctx, filepath.Join(inputRoot, group))
		if err != nil {
			logging.WarnWithContext(r.logger, "group reconciliation failed; group skipped", "reconcile_group_failed",
				logging.String(logging.FieldGroup, group),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the group directory and its status.json"),
				logging.String(logging.FieldImpact, "work-units in this group are not processed this run"),
			)
			result.Errors = append(result.Errors, UnitError{Group: group, Err: err})
			continue
		}
		if outcome.rebuilt {
			result.Rebuilt = append(result.Rebuilt, group)
		}
		result.Pending = append(result.Pending, outcome.pending...)
		result.Errors = append(result.Errors, outcome.errors...)
	}
	return result, nil
}

type groupOutcome struct {
	pending []Pending
	errors  []UnitError
	rebuilt bool
}

// reconcileGroup brings one group's status file up to date and returns the
// work-units that still need processing.
func (r *Reconciler) reconcileGroup(ctx context.Context, groupDir string) (groupOutcome, error) {
	group := filepath.Base(groupDir)
	logger := r.logger.With(logging.String(logging.FieldGroup, group))
	statusPath := statusindex.Path(groupDir)

	units, err := listDirs(groupDir)
	if err != nil {
		return groupOutcome{}, err
	}

	idx, exists, err := r.status.Load(statusPath)
	if err != nil {
		if !errors.Is(err, services.ErrValidation) {
			return groupOutcome{}, err
		}
		logging.WarnWithContext(logger, "status file unreadable; rebuilding from disk", "status_corrupt",
			logging.String("path", statusPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "every work-unit in the group is re-examined"),
		)
		exists = false
	}

	var outcome groupOutcome
	switch {
	case !exists:
		logger.Info("status file missing; building from disk", logging.String(logging.FieldEventType, "status_build"))
		idx = r.scan(groupDir, units)
		outcome.rebuilt = true
	case !idx.SameUnits(units):
		logger.Info("work-unit set changed; rebuilding status file",
			logging.Int("recorded", len(idx)),
			logging.Int("on_disk", len(units)),
			logging.String(logging.FieldEventType, "status_rebuild"),
		)
		idx = r.scan(groupDir, units)
		outcome.rebuilt = true
	default:
		logger.Debug("work-unit set unchanged; checking progress", logging.String(logging.FieldEventType, "status_patch"))
	}

	var finished []string
	for _, unit := range idx.Names() {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		entry := idx[unit]
		if entry.Processed {
			continue
		}
		unitDir := filepath.Join(groupDir, unit)
		trials, err := manifest.ListTrialFolders(unitDir)
		if err != nil {
			outcome.errors = append(outcome.errors, r.unitError(logger, group, unit, err))
			continue
		}
		entry.TrialCount = len(trials)
		idx[unit] = entry
		if entry.TrialCount == 0 {
			continue
		}

		stage, err := r.manifests.ReadOrCreate(manifest.Path(unitDir), trials)
		if err != nil {
			outcome.errors = append(outcome.errors, r.unitError(logger, group, unit, err))
			continue
		}
		if stage.IsTerminal() {
			finished = append(finished, unit)
			continue
		}
		outcome.pending = append(outcome.pending, Pending{
			Group:      group,
			Unit:       unit,
			TrialCount: entry.TrialCount,
			Stage:      stage,
		})
	}

	if _, err := r.status.Save(statusPath, idx); err != nil {
		return outcome, err
	}
	for _, unit := range finished {
		if err := r.status.MarkProcessed(statusPath, unit); err != nil {
			outcome.errors = append(outcome.errors, r.unitError(logger, group, unit, err))
		}
	}

	sort.Slice(outcome.pending, func(i, j int) bool {
		return outcome.pending[i].Unit < outcome.pending[j].Unit
	})
	return outcome, nil
}

// scan derives fresh status entries from disk. Every entry starts
// unprocessed, even when a manifest already exists: a manifest only proves
// the work-unit was discovered, not that it reached the terminal stage.
// Finished units are flipped by MarkProcessed once their manifest stage has
// been checked.
func (r *Reconciler) scan(groupDir string, units []string) statusindex.Index {
	idx := make(statusindex.Index, len(units))
	for _, unit := range units {
		trials, err := manifest.ListTrialFolders(filepath.Join(groupDir, unit))
		if err != nil {
			trials = nil
		}
		idx[unit] = statusindex.Entry{TrialCount: len(trials)}
	}
	return idx
}

func (r *Reconciler) unitError(logger *slog.Logger, group, unit string, err error) UnitError {
	logging.WarnWithContext(logger, "work-unit skipped during reconciliation", "reconcile_unit_failed",
		logging.String(logging.FieldSession, unit),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix or delete the work-unit manifest; it is recreated on the next run"),
		logging.String(logging.FieldImpact, "work-unit stays at its last recorded stage"),
	)
	return UnitError{Group: group, Unit: unit, Err: err}
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
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
	sort.Strings(names)
	return names, nil
}

// UnitStatus is a read-only view of one work-unit for reporting.
type UnitStatus struct {
	Group      string
	Unit       string
	Processed  bool
	TrialCount int
	Stage      session.Stage
	// Tracked is false when the unit has no status entry yet.
	Tracked bool
	Err     error
}

// Inspect reports every work-unit under inputRoot without writing status
// files or manifests.
func (r *Reconciler) Inspect(inputRoot string) ([]UnitStatus, error) {
	groups, err := listDirs(inputRoot)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "inspect", fmt.Sprintf("read input root %s", inputRoot), err)
	}
	var out []UnitStatus
	for _, group := range groups {
		groupDir := filepath.Join(inputRoot, group)
		units, err := listDirs(groupDir)
		if err != nil {
			out = append(out, UnitStatus{Group: group, Err: err})
			continue
		}
		idx, _, err := r.status.Load(statusindex.Path(groupDir))
		if err != nil {
			idx = statusindex.Index{}
		}
		for _, unit := range units {
			entry, tracked := idx[unit]
			st := UnitStatus{
				Group:      group,
				Unit:       unit,
				Processed:  entry.Processed,
				TrialCount: entry.TrialCount,
				Tracked:    tracked,
			}
			stage, err := r.manifests.Peek(manifest.Path(filepath.Join(groupDir, unit)))
			switch {
			case err == nil:
				st.Stage = stage
			case !errors.Is(err, services.ErrNotFound):
				st.Err = err
			}
			out = append(out, st)
		}
	}
	return out, nil
}
