package reflection

import (
	"context"
	"errors"
	"reflect"
)

// Kind classifies a member reachable through a Provider
type Kind int

const (
	KindNamespace Kind = iota
	KindType
	KindFunc
	KindMethod
	KindInstance
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindType:
		return "type"
	case KindFunc:
		return "func"
	case KindMethod:
		return "method"
	case KindInstance:
		return "instance"
	default:
		return "value"
	}
}

// IsCallable reports whether members of this kind can be invoked
func (k Kind) IsCallable() bool {
	return k == KindFunc || k == KindMethod
}

// ParamKind distinguishes ordinary parameters from collectors
type ParamKind int

const (
	Positional ParamKind = iota
	VariadicPositional
	VariadicKeyword
)

// Kwargs is the Go shape of a keyword collector. A callable whose final
// parameter has this type accepts arbitrary extra named arguments.
type Kwargs map[string]any

// Param describes one declared parameter of a callable
type Param struct {
	Name       string    `json:"name"`
	Type       string    `json:"type,omitempty"`
	Default    any       `json:"default,omitempty"`
	HasDefault bool      `json:"has_default,omitempty"`
	Kind       ParamKind `json:"kind"`

	goType reflect.Type
}

// Required reports whether a caller must supply the parameter
func (p Param) Required() bool {
	return !p.HasDefault && p.Kind == Positional
}

// GoType returns the Go type backing the parameter, if known
func (p Param) GoType() reflect.Type {
	return p.goType
}

// Signature describes the parameters and result of a callable
type Signature struct {
	Params  []Param `json:"params"`
	Returns string  `json:"returns,omitempty"`
	Async   bool    `json:"async,omitempty"`
}

// Member is one entry enumerated from a namespace, type or instance
type Member struct {
	Name      string
	Path      string
	Kind      Kind
	Origin    string
	ID        string
	OwnerPath string
	OwnerID   string
	Signature *Signature
	Doc       string
	Static    bool
	// Methods is the number of public methods exposed by a type or instance
	Methods int
}

// Args carries bound call arguments
type Args struct {
	Named map[string]any
	Rest  []any
	Extra map[string]any
}

// Callable is a resolved reference ready for invocation
type Callable struct {
	Ref           string
	Name          string
	OwnerPath     string
	OwnerID       string
	Signature     *Signature
	NeedsInstance bool
	Static        bool

	// Handle is provider specific state
	Handle any
}

var (
	ErrNotFound       = errors.New("member not found")
	ErrNotCallable    = errors.New("member is not callable")
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrNotConstructed = errors.New("owner could not be constructed")
)

// Provider abstracts runtime introspection of a loaded library
type Provider interface {
	// Load returns the root namespace of a library
	Load(ctx context.Context, root string) (Member, error)

	// Members enumerates the direct members of a namespace, type or instance
	Members(ctx context.Context, path string) ([]Member, error)

	// Resolve turns a dotted reference into a callable
	Resolve(ctx context.Context, ref string) (*Callable, error)

	// Invoke calls a resolved callable. recv is required when the
	// callable needs an owner instance.
	Invoke(ctx context.Context, c *Callable, recv any, args Args) ([]any, error)

	// Constructor describes how an owner type is constructed
	Constructor(ctx context.Context, ownerPath string) (*Signature, error)

	// Construct builds an owner instance from positional arguments
	Construct(ctx context.Context, ownerPath string, args []any) (any, error)
}
