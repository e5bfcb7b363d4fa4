// Package staging owns the scratch working area and the publication of
// artifacts from scratch to final storage.
//
// Publication shells out to a bulk-transfer tool (rclone by default), one
// invocation per file, in the run's fixed move or copy mode. A missing tool
// skips publication with a warning instead of failing the run. Scratch
// deletion is opportunistic: directories are renamed aside and removed in
// the background, and leftovers are swept at the start of the next run.
package staging
