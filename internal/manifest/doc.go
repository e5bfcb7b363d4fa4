// Package manifest persists each work-unit's progress in a small JSON
// document (meta-data.json) inside the work-unit directory.
//
// Writes go through a temp file and rename, so a reader never sees a partial
// stage value. The stage recorded here is only ever advanced after the stage's
// work has completed.
package manifest
