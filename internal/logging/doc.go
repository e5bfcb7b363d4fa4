// Package logging assembles structured slog loggers for behaviorpipe runs.
//
// A run logger always writes to a durable per-run log file and mirrors to the
// console only when requested. Context helpers stamp the run, group, session,
// and stage onto log lines so a single work-unit can be followed through a
// long batch. NewNop serves tests and wiring code that cannot fail.
package logging
