package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	kwargsType  = reflect.TypeOf(Kwargs(nil))
)

// callMeta records the hidden parts of a Go signature
type callMeta struct {
	hasCtx bool
	hasErr bool
}

// buildSignature describes a func type. skip drops leading inputs such as
// the receiver of a method expression.
func buildSignature(ft reflect.Type, skip int, spec callSpec) (*Signature, callMeta) {
	var meta callMeta
	first := skip
	if ft.NumIn() > first && ft.In(first) == contextType {
		meta.hasCtx = true
		first++
	}

	sig := &Signature{Async: spec.async}
	for i := first; i < ft.NumIn(); i++ {
		idx := i - first
		pt := ft.In(i)
		p := Param{
			Name:   fmt.Sprintf("arg%d", idx),
			Kind:   Positional,
			goType: pt,
		}
		if idx < len(spec.names) {
			p.Name = spec.names[idx]
		}

		last := i == ft.NumIn()-1
		switch {
		case last && ft.IsVariadic():
			p.Kind = VariadicPositional
			p.goType = pt.Elem()
		case last && pt == kwargsType:
			p.Kind = VariadicKeyword
		}
		p.Type = TypeDescriptor(p.goType)

		if def, ok := spec.defaults[p.Name]; ok && p.Kind == Positional {
			p.Default = def
			p.HasDefault = true
		}
		sig.Params = append(sig.Params, p)
	}

	outs := make([]string, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		ot := ft.Out(i)
		if i == ft.NumOut()-1 && ot == errorType {
			meta.hasErr = true
			continue
		}
		if i == 0 && ot.Kind() == reflect.Chan && ot.ChanDir()&reflect.RecvDir != 0 {
			sig.Async = true
		}
		outs = append(outs, TypeDescriptor(ot))
	}
	sig.Returns = strings.Join(outs, ", ")
	if spec.returns != "" {
		sig.Returns = spec.returns
	}
	return sig, meta
}

// TypeDescriptor renders a Go type the way parameter descriptors spell it
func TypeDescriptor(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t == kwargsType {
		return "map[string]any"
	}
	return strings.ReplaceAll(t.String(), "interface {}", "any")
}

// bindArgs lays out call inputs in declaration order, filling defaults and
// zero values for parameters the caller left out
func bindArgs(ctx context.Context, sig *Signature, meta callMeta, args Args) ([]reflect.Value, error) {
	var in []reflect.Value
	if meta.hasCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	for _, p := range sig.Params {
		switch p.Kind {
		case VariadicPositional:
			for i, raw := range args.Rest {
				v, err := convert(raw, p.goType)
				if err != nil {
					return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidArgs, p.Name, i, err)
				}
				in = append(in, v)
			}
		case VariadicKeyword:
			extra := Kwargs{}
			for k, v := range args.Extra {
				extra[k] = v
			}
			in = append(in, reflect.ValueOf(extra))
		default:
			raw, ok := args.Named[p.Name]
			if !ok && p.HasDefault {
				raw, ok = p.Default, true
			}
			if !ok {
				in = append(in, reflect.Zero(p.goType))
				continue
			}
			v, err := convert(raw, p.goType)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, p.Name, err)
			}
			in = append(in, v)
		}
	}
	return in, nil
}

// call invokes fn, recovering panics and splitting a trailing error
func call(fn reflect.Value, in []reflect.Value, meta callMeta) (results []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out := fn.Call(in)
	if meta.hasErr && len(out) > 0 {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}

	results = make([]any, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}
	return results, nil
}

// convert adapts a decoded argument to a declared Go type
func convert(raw any, t reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(raw)
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}

	switch {
	case isNumber(v.Kind()) && isNumber(t.Kind()):
		return v.Convert(t), nil
	case v.Kind() == reflect.String && t.Kind() == reflect.String:
		return v.Convert(t), nil
	case v.Kind() == reflect.String && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return v.Convert(t), nil
	case v.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return v.Convert(t), nil
	case v.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := convert(v.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case t.Kind() == reflect.Pointer && v.Kind() != reflect.Map:
		elem, err := convert(raw, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	// Fall back to a JSON round trip for maps into structs and similar shapes
	data, err := json.Marshal(raw)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", raw, t)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", raw, t, err)
	}
	return ptr.Elem(), nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
