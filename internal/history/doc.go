// Package history keeps a SQLite ledger of orchestrator runs and every stage
// attempt they made. The ledger is informational: manifests and status
// files remain the source of truth, and callers treat ledger errors as
// warnings.
package history
