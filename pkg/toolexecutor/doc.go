// Package toolexecutor holds the active tool catalog and gates calls before
// they reach the execution bridge.
//
// Invariants:
// - Tool names are unique.
// - Required arguments are schema-validated before execution.
// - Deny patterns override allow patterns.
// - Tools flagged for confirmation run only when the caller confirmed.
//
// Usage:
//
//	exec := toolexecutor.New(bridge)
//	_ = exec.Load(catalog.Tools)
//	res := exec.Execute(ctx, "cloudkit_ping", nil, &toolexecutor.ExecutionContext{Confirmed: true})
package toolexecutor
