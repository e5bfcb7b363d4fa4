// Package preflight provides readiness checks for the filesystem roots and
// external commands the pipeline depends on.
//
// These checks run in two contexts:
//   - A pipeline run calls RunAll before reconciliation and logs a warning
//     per failed check. Only a missing input root aborts the run; the other
//     failures surface later as per-session errors.
//   - The CLI "behaviorpipe doctor" command prints every result.
//
// Analysis commands are only checked for perspectives that run them.
package preflight
