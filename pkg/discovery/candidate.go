package discovery

import (
	"errors"
	"strings"

	"github.com/harun/sdkbridge/pkg/reflection"
)

// ErrDiscovery marks a root that could not be loaded or enumerated
var ErrDiscovery = errors.New("discovery failed")

// Candidate is one discovered operation
type Candidate struct {
	Name          string             `json:"name"`
	CanonicalPath string             `json:"canonical_path"`
	OwnerPath     string             `json:"owner_path,omitempty"`
	OwnerID       string             `json:"owner_id,omitempty"`
	ModulePath    string             `json:"module_path"`
	Params        []reflection.Param `json:"params"`
	Returns       string             `json:"returns,omitempty"`
	Doc           string             `json:"doc,omitempty"`
	Async         bool               `json:"async,omitempty"`
	Static        bool               `json:"static,omitempty"`
	Score         float64            `json:"score"`
	Order         int                `json:"order"`
}

// IsFunction reports whether the candidate has no owner
func (c Candidate) IsFunction() bool {
	return c.OwnerPath == ""
}

// OwnerName returns the last segment of the owner path
func (c Candidate) OwnerName() string {
	return lastSegment(c.OwnerPath)
}

// signature renders the ordered parameter names and types
func (c Candidate) signature() string {
	var b strings.Builder
	for i, p := range c.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(p.Type)
	}
	return b.String()
}

// AliasIndex maps an owner identity to every path it was reached through,
// in discovery order
type AliasIndex map[string][]string

func (a AliasIndex) add(id, path string) {
	for _, p := range a[id] {
		if p == path {
			return
		}
	}
	a[id] = append(a[id], path)
}

// Preferred returns the first public path for id, or the first path seen
func (a AliasIndex) Preferred(id string) (string, bool) {
	paths := a[id]
	if len(paths) == 0 {
		return "", false
	}
	for _, p := range paths {
		if !HasLowVisibilitySegment(p) {
			return p, true
		}
	}
	return paths[0], true
}

// PublicAlias returns a path for id with no low-visibility segment
func (a AliasIndex) PublicAlias(id string) (string, bool) {
	for _, p := range a[id] {
		if !HasLowVisibilitySegment(p) {
			return p, true
		}
	}
	return "", false
}

// IsLowVisibilitySegment reports whether a path segment is private by convention
func IsLowVisibilitySegment(seg string) bool {
	return strings.HasPrefix(seg, "_") || seg == "internal"
}

// HasLowVisibilitySegment reports whether any segment of a dotted path is private
func HasLowVisibilitySegment(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if IsLowVisibilitySegment(seg) {
			return true
		}
	}
	return false
}

// IsLowVisibilityName reports a single-underscore private name
func IsLowVisibilityName(name string) bool {
	return strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__")
}

// IsDunder reports a double-underscore special name
func IsDunder(name string) bool {
	return strings.HasPrefix(name, "__")
}

// PublicPath drops low-visibility segments from a dotted path
func PublicPath(path string) string {
	if path == "" {
		return ""
	}
	segs := strings.Split(path, ".")
	kept := segs[:0]
	for _, s := range segs {
		if !IsLowVisibilitySegment(s) {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ".")
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

func parentPath(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i]
	}
	return ""
}
