package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for a discovery run ID
	RunIDKey ContextKey = "run_id"
	// SystemKey is the context key for the system id being bridged
	SystemKey ContextKey = "system"
	// CallIDKey is the context key for a bridged call ID
	CallIDKey ContextKey = "call_id"
	// ToolKey is the context key for the tool name of a call
	ToolKey ContextKey = "tool"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	RunID   string
	System  string
	CallID  string
	Tool    string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new discovery run ID
func NewRunID() string {
	return uuid.New().String()
}

// NewCallID generates a short ID for a bridged call
func NewCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		return uuid.New().String()
	}
	return id
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func WithSystem(ctx context.Context, system string) context.Context {
	return context.WithValue(ctx, SystemKey, system)
}

func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, CallIDKey, callID)
}

func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, ToolKey, tool)
}

func value(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return value(ctx, TraceIDKey) }

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string { return value(ctx, RunIDKey) }

// GetSystem retrieves the system id from the context
func GetSystem(ctx context.Context) string { return value(ctx, SystemKey) }

// GetCallID retrieves the call ID from the context
func GetCallID(ctx context.Context) string { return value(ctx, CallIDKey) }

// GetTool retrieves the tool name from the context
func GetTool(ctx context.Context) string { return value(ctx, ToolKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		RunID:   GetRunID(ctx),
		System:  GetSystem(ctx),
		CallID:  GetCallID(ctx),
		Tool:    GetTool(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.System != "" {
		ctx = WithSystem(ctx, tc.System)
	}
	if tc.CallID != "" {
		ctx = WithCallID(ctx, tc.CallID)
	}
	if tc.Tool != "" {
		ctx = WithTool(ctx, tc.Tool)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewDiscoveryContext starts a discovery run for a system. The trace ID is
// kept when present.
func NewDiscoveryContext(ctx context.Context, system string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = NewRequestContext(ctx)
	}
	ctx = WithRunID(ctx, NewRunID())
	return WithSystem(ctx, system)
}

// NewCallContext starts a bridged call. The trace ID is kept when present.
func NewCallContext(ctx context.Context, tool string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = NewRequestContext(ctx)
	}
	ctx = WithCallID(ctx, NewCallID())
	return WithTool(ctx, tool)
}
