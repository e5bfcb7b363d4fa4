// Package statusindex stores the per-group status file (status.json), a cache
// of which work-units are finished and how many trials each had at the last
// reconciliation.
//
// The cache may be stale; the reconcile package revalidates it against the
// filesystem on every run.
package statusindex
