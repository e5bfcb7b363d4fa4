// Package reconcile walks the input tree, compares each group's work-units
// against its cached status file, and repairs the cache.
//
// When the set of work-units in a group changes the status file is rebuilt
// from disk; otherwise only unprocessed entries are re-examined. Work-units
// whose manifest reached the terminal stage are flipped with an explicit
// MarkProcessed call.
package reconcile
