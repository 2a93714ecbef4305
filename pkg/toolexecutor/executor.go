package toolexecutor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/sdkbridge/pkg/bridge"
	"github.com/harun/sdkbridge/pkg/toolgen"
)

// Invoker runs a tool against its canonical reference
type Invoker interface {
	Execute(ctx context.Context, toolName, ref string, args map[string]any) bridge.Result
}

// ToolPolicy defines which tools a caller can use
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // Allowed tools or prefixes ending in * (* for all)
	Deny  []string `json:"deny" mapstructure:"deny"`   // Denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	// Check deny list first (overrides allow list)
	for _, denied := range tp.Deny {
		if matchTool(denied, toolName) {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if matchTool(allowed, toolName) {
			return true
		}
	}

	// If no explicit allow, deny by default
	return false
}

func matchTool(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return false
}

// ExecutionContext provides runtime information for one call
type ExecutionContext struct {
	Caller     string
	ToolPolicy *ToolPolicy
	// Confirmed acknowledges tools that require confirmation
	Confirmed bool
}

// registeredTool is a descriptor with its compiled argument schema
type registeredTool struct {
	desc   toolgen.Descriptor
	schema *gojsonschema.Schema
}

// ToolExecutor holds the active tool catalog and routes calls to an Invoker
type ToolExecutor struct {
	invoker  Invoker
	policies *PolicyEngine
	tools    map[string]*registeredTool
	mu       sync.RWMutex
}

// New creates a new ToolExecutor
func New(invoker Invoker) *ToolExecutor {
	te := &ToolExecutor{
		invoker:  invoker,
		policies: NewPolicyEngine(),
		tools:    make(map[string]*registeredTool),
	}

	log.Debug().Msg("Tool executor initialized")

	return te
}

// RegisterTool registers a generated tool
func (te *ToolExecutor) RegisterTool(desc toolgen.Descriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := argumentSchema(desc)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", desc.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	te.tools[desc.Name] = &registeredTool{desc: desc, schema: schema}

	log.Debug().Str("tool", desc.Name).Msg("Tool registered")

	return nil
}

// Load replaces the registered tools with a catalog. Invalid descriptors are
// skipped and reported together.
func (te *ToolExecutor) Load(descs []toolgen.Descriptor) error {
	next := make(map[string]*registeredTool, len(descs))
	var failed []string
	for _, desc := range descs {
		if err := validateDescriptor(desc); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", desc.Name, err))
			continue
		}
		schema, err := argumentSchema(desc)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", desc.Name, err))
			continue
		}
		next[desc.Name] = &registeredTool{desc: desc, schema: schema}
	}

	te.mu.Lock()
	te.tools = next
	te.mu.Unlock()

	log.Info().Int("tools", len(next)).Int("skipped", len(failed)).Msg("Tool catalog loaded")

	if len(failed) > 0 {
		return fmt.Errorf("skipped %d tools: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
}

// GetTool returns a tool descriptor by name
func (te *ToolExecutor) GetTool(name string) (toolgen.Descriptor, bool) {
	te.mu.RLock()
	defer te.mu.RUnlock()

	t, ok := te.tools[name]
	if !ok {
		return toolgen.Descriptor{}, false
	}
	return t.desc, true
}

// ListTools returns the descriptors visible under a policy, sorted by name
func (te *ToolExecutor) ListTools(policy *ToolPolicy) []toolgen.Descriptor {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	visible := te.policies.FilterToolsByPolicy(names, policy)
	out := make([]toolgen.Descriptor, 0, len(visible))
	for _, name := range visible {
		out = append(out, te.tools[name].desc)
	}
	return out
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Execute checks policy, confirmation and required arguments, then hands
// the call to the invoker
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]any, execCtx *ExecutionContext) bridge.Result {
	startTime := time.Now()
	if execCtx == nil {
		execCtx = ExecContextFromContext(ctx)
	}

	if execCtx != nil {
		if allowed, _ := te.policies.EvaluatePolicy(toolName, execCtx.ToolPolicy, execCtx.Caller); !allowed {
			return rejected(toolName, fmt.Sprintf("tool '%s' is not allowed by policy", toolName), startTime)
		}
	}

	te.mu.RLock()
	tool := te.tools[toolName]
	te.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", toolName).Msg("Tool not found")
		return rejected(toolName, fmt.Sprintf("tool not found: %s", toolName), startTime)
	}

	if tool.desc.Flags.Confirm && execCtx != nil && !execCtx.Confirmed {
		return rejected(toolName, fmt.Sprintf("tool '%s' requires confirmation", toolName), startTime)
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := validateParameters(tool.schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return rejected(toolName, fmt.Sprintf("parameter validation failed: %v", err), startTime)
	}

	return te.invoker.Execute(ContextWithExecContext(ctx, execCtx), toolName, tool.desc.Reference, params)
}

func rejected(toolName, msg string, start time.Time) bridge.Result {
	return bridge.Result{
		Status:   bridge.StatusError,
		Tool:     toolName,
		Error:    msg,
		Duration: time.Since(start),
	}
}

func validateDescriptor(desc toolgen.Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if desc.Reference == "" {
		return fmt.Errorf("tool reference cannot be empty")
	}
	if desc.InputSchema == nil {
		return fmt.Errorf("input schema cannot be nil")
	}
	return nil
}

// argumentSchema compiles the structural part of an input schema. Property
// types stay unchecked since the bridge coerces loosely typed values.
func argumentSchema(desc toolgen.Descriptor) (*gojsonschema.Schema, error) {
	schemaMap := map[string]any{"type": "object"}
	if required, ok := desc.InputSchema["required"]; ok {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
