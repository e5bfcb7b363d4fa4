// Package services defines shared utilities consumed by the stage handlers
// and the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, groups, sessions, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that separate run-fatal
//     configuration problems from per-work-unit failures.
//   - The Executor abstraction that makes external tool invocation testable.
package services
