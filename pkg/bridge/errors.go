package bridge

import (
	"errors"
	"fmt"

	"github.com/harun/sdkbridge/pkg/discovery"
)

// Failure kinds
var (
	ErrDiscovery    = discovery.ErrDiscovery
	ErrResolution   = errors.New("resolution failed")
	ErrConstruction = errors.New("construction failed")
	ErrCoercion     = errors.New("coercion failed")
	ErrInvocation   = errors.New("invocation failed")
)

// Error is a call-time failure
type Error struct {
	Op   string // resolve, construct, coerce, invoke
	Kind error
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Ref, e.Kind, e.Err)
}

// Is matches the failure kind
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindName labels the failure kind for metrics
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrConstruction):
		return "construction"
	case errors.Is(err, ErrCoercion):
		return "coercion"
	case errors.Is(err, ErrInvocation):
		return "invocation"
	case errors.Is(err, ErrDiscovery):
		return "discovery"
	}
	return "unknown"
}
