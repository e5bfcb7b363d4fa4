// Package runner executes batches of independent per-item operations, one
// video build per trial or one transfer per file, with bounded parallelism.
//
// Sequential mode runs items in sorted order for debugging and produces the
// same results as parallel mode. Items are isolated: one failure is reported
// on its own and never cancels its siblings.
package runner
