package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/internal/tracing"
	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of a bridged call
type Result struct {
	Status   string
	Tool     string
	Result   any
	Error    string
	CallID   string
	Duration time.Duration
}

// OK reports a successful call
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// MarshalJSON renders {status, tool, result} or {status, tool, error}
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(struct {
			Status string `json:"status"`
			Tool   string `json:"tool"`
			Error  string `json:"error"`
		}{r.Status, r.Tool, r.Error})
	}
	return json.Marshal(struct {
		Status string `json:"status"`
		Tool   string `json:"tool"`
		Result any    `json:"result"`
	}{r.Status, r.Tool, r.Result})
}

// Text renders the result as JSON text
func (r Result) Text() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Result{Status: StatusError, Tool: r.Tool, Error: err.Error()})
	}
	return string(data)
}

// Config tunes a Bridge
type Config struct {
	// Timeout bounds each call; zero leaves the deadline to the caller's context
	Timeout time.Duration
	// Getenv reads credential variables; os.Getenv when nil
	Getenv func(string) string
}

// Bridge executes tools against a reflection provider
type Bridge struct {
	provider reflection.Provider
	rules    atomic.Pointer[rules.RuleSet]
	cache    *instanceCache
	timeout  time.Duration
	getenv   func(string) string
	logger   zerolog.Logger
}

// New creates a bridge for one system
func New(provider reflection.Provider, rs *rules.RuleSet, cfg Config, logger zerolog.Logger) *Bridge {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if rs == nil {
		rs = rules.Defaults()
	}

	b := &Bridge{
		provider: provider,
		cache:    newInstanceCache(),
		timeout:  cfg.Timeout,
		getenv:   cfg.Getenv,
		logger:   logger.With().Str("component", "bridge").Str("system", rs.System).Logger(),
	}
	b.rules.Store(rs)
	observability.EnsureRegistered()
	return b
}

// SetRules swaps the rule set used for later constructions
func (b *Bridge) SetRules(rs *rules.RuleSet) {
	if rs != nil {
		b.rules.Store(rs)
	}
}

// Rules returns the current rule set
func (b *Bridge) Rules() *rules.RuleSet {
	return b.rules.Load()
}

// CachedInstances returns the number of owner instances held
func (b *Bridge) CachedInstances() int {
	return b.cache.len()
}

// Reset drops every cached owner instance
func (b *Bridge) Reset() {
	b.cache.reset()
}

// Execute resolves ref, builds or reuses its owner, calls it with args and
// serializes the outcome. Every failure is returned as an error Result.
func (b *Bridge) Execute(ctx context.Context, toolName, ref string, args map[string]any) Result {
	start := time.Now()
	ctx = tracing.NewCallContext(ctx, toolName)
	ctx, span := tracing.StartSpan(ctx, "bridge.execute",
		attribute.String("sdkbridge.tool", toolName),
		attribute.String("sdkbridge.reference", ref),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, b.logger)
	callID := tracing.GetCallID(ctx)

	value, err := b.call(ctx, ref, args, logger)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordBridgeCall(toolName, duration, false)
		observability.RecordBridgeError(toolName, KindName(err))
		observability.RecordCallAudit(ctx, toolName, callID, StatusError, map[string]interface{}{
			"reference": ref,
			"error":     err.Error(),
		})

		logger.Warn().
			Err(err).
			Str("reference", ref).
			Dur("duration", duration).
			Msg("Tool call failed")

		return Result{Status: StatusError, Tool: toolName, Error: err.Error(), CallID: callID, Duration: duration}
	}

	result := Serialize(ctx, value)
	observability.RecordBridgeCall(toolName, duration, true)
	observability.RecordCallAudit(ctx, toolName, callID, StatusSuccess, map[string]interface{}{
		"reference":   ref,
		"duration_ms": duration.Milliseconds(),
	})

	logger.Debug().
		Str("reference", ref).
		Dur("duration", duration).
		Msg("Tool call completed")

	return Result{Status: StatusSuccess, Tool: toolName, Result: result, CallID: callID, Duration: duration}
}

func (b *Bridge) call(ctx context.Context, ref string, raw map[string]any, logger zerolog.Logger) (any, error) {
	c, err := b.provider.Resolve(ctx, ref)
	if err != nil {
		return nil, &Error{Op: "resolve", Kind: ErrResolution, Ref: ref, Err: err}
	}

	var recv any
	if c.NeedsInstance && !c.Static {
		recv, err = b.instance(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	args, unmatched, coerceErrs := Coerce(c.Signature, raw)
	for _, cerr := range coerceErrs {
		logger.Warn().Err(cerr).Str("reference", ref).Msg("Argument passed through uncoerced")
	}
	if len(unmatched) > 0 {
		logger.Debug().Strs("ignored", unmatched).Str("reference", ref).Msg("Arguments match no parameter")
	}

	return b.invoke(ctx, c, recv, args)
}

// instance returns the cached owner of c, constructing it on first use
func (b *Bridge) instance(ctx context.Context, c *reflection.Callable) (any, error) {
	key := c.OwnerID
	if key == "" {
		key = c.OwnerPath
	}
	rs := b.Rules()
	detached := tracing.Detach(ctx)

	inst, err := b.cache.get(ctx, key, func() (any, error) {
		return b.construct(detached, c.OwnerPath, rs)
	})
	if err == nil {
		return inst, nil
	}
	var berr *Error
	if errors.As(err, &berr) {
		return nil, err
	}
	return nil, &Error{Op: "construct", Kind: ErrConstruction, Ref: c.OwnerPath, Err: err}
}

type outcome struct {
	out []any
	err error
}

// invoke runs a synchronous callable on its own goroutine so the caller
// can stop waiting on ctx. Async callables return a channel that is
// received from in place.
func (b *Bridge) invoke(ctx context.Context, c *reflection.Callable, recv any, args reflection.Args) (any, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if c.Signature != nil && c.Signature.Async {
		out, err := b.provider.Invoke(ctx, c, recv, args)
		if err != nil {
			return nil, &Error{Op: "invoke", Kind: ErrInvocation, Ref: c.Ref, Err: err}
		}
		v, err := await(ctx, collapse(out))
		if err != nil {
			return nil, &Error{Op: "invoke", Kind: ErrInvocation, Ref: c.Ref, Err: err}
		}
		return v, nil
	}

	done := make(chan outcome, 1)
	go func() {
		out, err := b.provider.Invoke(ctx, c, recv, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, &Error{Op: "invoke", Kind: ErrInvocation, Ref: c.Ref, Err: o.err}
		}
		return collapse(o.out), nil
	case <-ctx.Done():
		return nil, &Error{Op: "invoke", Kind: ErrInvocation, Ref: c.Ref, Err: fmt.Errorf("call abandoned: %w", ctx.Err())}
	}
}

func collapse(out []any) any {
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// await receives one value from a channel result. A received error fails
// the call; a closed channel yields nil.
func await(ctx context.Context, v any) (any, error) {
	ch := reflect.ValueOf(v)
	if !ch.IsValid() || ch.Kind() != reflect.Chan || ch.IsNil() || ch.Type().ChanDir()&reflect.RecvDir == 0 {
		return v, nil
	}

	chosen, got, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: ch},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	})
	if chosen == 1 {
		return nil, fmt.Errorf("await abandoned: %w", ctx.Err())
	}
	if !ok {
		return nil, nil
	}
	if got.Kind() == reflect.Interface && got.IsNil() {
		return nil, nil
	}
	if err, isErr := got.Interface().(error); isErr && err != nil {
		return nil, err
	}
	return got.Interface(), nil
}
