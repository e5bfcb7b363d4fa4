package services

import "context"

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	groupKey     contextKey = "group"
	sessionKey   contextKey = "session"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the orchestrator run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}

// WithGroup annotates context with the top-level input folder name.
func WithGroup(ctx context.Context, group string) context.Context {
	return withString(ctx, groupKey, group)
}

// GroupFromContext returns the group name if present.
func GroupFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, groupKey)
}

// WithSession annotates context with the work-unit name.
func WithSession(ctx context.Context, session string) context.Context {
	return withString(ctx, sessionKey, session)
}

// SessionFromContext returns the work-unit name if present.
func SessionFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, sessionKey)
}

// WithStage annotates context with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}
