package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	fields := logger.With()
	if tc.TraceID != "" {
		fields = fields.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		fields = fields.Str("run_id", tc.RunID)
	}
	if tc.System != "" {
		fields = fields.Str("system", tc.System)
	}
	if tc.CallID != "" {
		fields = fields.Str("call_id", tc.CallID)
	}
	if tc.Tool != "" {
		fields = fields.Str("tool", tc.Tool)
	}
	return fields.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// Detach returns a context that carries the tracing values of ctx but is
// never cancelled. Work that must outlive a caller, such as an owner
// construction shared by several waiters, runs under it.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}

// MergeContext copies tracing values from source that target lacks
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.RunID != "" && GetRunID(target) == "" {
		target = WithRunID(target, tc.RunID)
	}
	if tc.System != "" && GetSystem(target) == "" {
		target = WithSystem(target, tc.System)
	}
	if tc.CallID != "" && GetCallID(target) == "" {
		target = WithCallID(target, tc.CallID)
	}
	if tc.Tool != "" && GetTool(target) == "" {
		target = WithTool(target, tc.Tool)
	}
	return target
}
