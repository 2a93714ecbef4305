package toolexecutor

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// PolicyEngine evaluates and combines tool access policies
type PolicyEngine struct{}

// NewPolicyEngine creates a new policy engine
func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{}
}

// EvaluatePolicy evaluates if a tool execution should be allowed
// Returns true if allowed, false if denied
func (pe *PolicyEngine) EvaluatePolicy(toolName string, policy *ToolPolicy, caller string) (bool, error) {
	if policy == nil {
		// No policy means allow all
		return true, nil
	}

	allowed := policy.IsToolAllowed(toolName)

	if !allowed {
		log.Warn().
			Str("tool", toolName).
			Str("caller", caller).
			Msg("Tool execution blocked by policy")
	}

	return allowed, nil
}

// ValidatePolicy rejects malformed patterns and warns about policies that
// deny everything
func (pe *PolicyEngine) ValidatePolicy(policy *ToolPolicy) error {
	if policy == nil {
		return nil
	}

	for _, list := range [][]string{policy.Allow, policy.Deny} {
		for _, pattern := range list {
			if pattern == "" {
				return fmt.Errorf("empty tool pattern")
			}
			if i := strings.Index(pattern, "*"); i >= 0 && i != len(pattern)-1 {
				return fmt.Errorf("tool pattern %q: wildcard must be the last character", pattern)
			}
		}
	}

	if slices.Contains(policy.Allow, "*") && slices.Contains(policy.Deny, "*") {
		log.Warn().Msg("Policy has both allow and deny wildcards - deny will override allow")
	}

	if len(policy.Allow) == 0 {
		log.Warn().Msg("Policy has empty allow list - all tools will be denied by default")
	}

	return nil
}

// MergePolicies merges multiple policies into one
// The resulting policy is the intersection of all allow lists
// and the union of all deny lists
func (pe *PolicyEngine) MergePolicies(policies ...*ToolPolicy) *ToolPolicy {
	if len(policies) == 0 {
		return nil
	}

	// Filter out nil policies
	validPolicies := []*ToolPolicy{}
	for _, p := range policies {
		if p != nil {
			validPolicies = append(validPolicies, p)
		}
	}

	if len(validPolicies) == 0 {
		return nil
	}

	if len(validPolicies) == 1 {
		return validPolicies[0]
	}

	merged := &ToolPolicy{
		Allow: []string{},
		Deny:  []string{},
	}

	// Collect all deny rules (union)
	denySet := make(map[string]bool)
	for _, policy := range validPolicies {
		for _, denied := range policy.Deny {
			denySet[denied] = true
		}
	}

	for denied := range denySet {
		merged.Deny = append(merged.Deny, denied)
	}
	sort.Strings(merged.Deny)

	// For allow rules, we need intersection
	// Start with first policy's allow list
	allowSet := make(map[string]bool)
	for _, allowed := range validPolicies[0].Allow {
		allowSet[allowed] = true
	}

	// Intersect with remaining policies
	for i := 1; i < len(validPolicies); i++ {
		policyAllowSet := make(map[string]bool)
		for _, allowed := range validPolicies[i].Allow {
			policyAllowSet[allowed] = true
		}

		// Keep only items that exist in both sets
		newAllowSet := make(map[string]bool)
		for allowed := range allowSet {
			if allowed == "*" {
				for other := range policyAllowSet {
					newAllowSet[other] = true
				}
				continue
			}
			if policyAllowSet[allowed] || policyAllowSet["*"] {
				newAllowSet[allowed] = true
			}
		}
		allowSet = newAllowSet
	}

	for allowed := range allowSet {
		merged.Allow = append(merged.Allow, allowed)
	}
	sort.Strings(merged.Allow)

	return merged
}

// FilterToolsByPolicy filters a list of tools based on a policy
func (pe *PolicyEngine) FilterToolsByPolicy(tools []string, policy *ToolPolicy) []string {
	if policy == nil {
		return tools
	}

	filtered := []string{}
	for _, tool := range tools {
		if policy.IsToolAllowed(tool) {
			filtered = append(filtered, tool)
		}
	}

	return filtered
}
