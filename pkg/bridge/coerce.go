package bridge

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/harun/sdkbridge/pkg/reflection"
)

// target is the coarse shape an argument is coerced towards
type target int

const (
	targetNone target = iota
	targetBytes
	targetBool
	targetInt
	targetFloat
)

// Coerce maps JSON-decoded tool arguments onto a callable's parameters.
// Keys matching no parameter are absorbed by a keyword collector when the
// callable has one and returned as unmatched otherwise. Values that cannot
// be coerced are passed through unchanged and reported in errs.
func Coerce(sig *reflection.Signature, raw map[string]any) (args reflection.Args, unmatched []string, errs []error) {
	args = reflection.Args{Named: make(map[string]any), Extra: make(map[string]any)}
	if sig == nil {
		for k := range raw {
			unmatched = append(unmatched, k)
		}
		return args, unmatched, nil
	}

	known := make(map[string]bool, len(sig.Params))
	var keyword *reflection.Param
	for i := range sig.Params {
		p := &sig.Params[i]
		known[p.Name] = true

		v, ok := raw[p.Name]
		switch p.Kind {
		case reflection.VariadicKeyword:
			keyword = p
			if !ok || v == nil {
				continue
			}
			if m, isMap := v.(map[string]any); isMap {
				for k, val := range m {
					args.Extra[k] = val
				}
				continue
			}
			args.Extra[p.Name] = v
		case reflection.VariadicPositional:
			if !ok || v == nil {
				continue
			}
			items, isList := v.([]any)
			if !isList {
				items = []any{v}
			}
			for _, item := range items {
				c, err := coerceValue(item, *p)
				if err != nil {
					errs = append(errs, err)
				}
				args.Rest = append(args.Rest, c)
			}
		default:
			if !ok {
				continue
			}
			c, err := coerceValue(v, *p)
			if err != nil {
				errs = append(errs, err)
			}
			args.Named[p.Name] = c
		}
	}

	for k, v := range raw {
		if known[k] {
			continue
		}
		if keyword != nil {
			args.Extra[k] = v
			continue
		}
		unmatched = append(unmatched, k)
	}
	return args, unmatched, errs
}

func coerceValue(v any, p reflection.Param) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch targetOf(p) {
	case targetBytes:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	case targetBool:
		return toBool(v, p.Name)
	case targetInt:
		return toInt(v, p.Name)
	case targetFloat:
		return toFloat(v, p.Name)
	}
	return v, nil
}

func targetOf(p reflection.Param) target {
	if t := p.GoType(); t != nil {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Bool:
			return targetBool
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return targetInt
		case reflect.Float32, reflect.Float64:
			return targetFloat
		case reflect.Slice:
			if t.Elem().Kind() == reflect.Uint8 {
				return targetBytes
			}
		}
		return targetNone
	}

	desc := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p.Type), "*"))
	switch desc {
	case "bytes", "bytearray", "[]byte", "[]uint8":
		return targetBytes
	case "bool", "boolean":
		return targetBool
	case "int", "integer", "int64", "int32":
		return targetInt
	case "float", "float64", "float32", "number":
		return targetFloat
	}
	return targetNone
}

func coercionError(name string, v any, want string) error {
	return &Error{Op: "coerce", Kind: ErrCoercion, Ref: name, Err: fmt.Errorf("cannot read %T %v as %s", v, v, want)}
}

func toBool(v any, name string) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		}
	case float64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case int:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	}
	return v, coercionError(name, v, "bool")
}

func toInt(v any, name string) (any, error) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return n, nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), nil
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && f == math.Trunc(f) {
			return int64(f), nil
		}
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return v, coercionError(name, v, "integer")
}

func toFloat(v any, name string) (any, error) {
	switch n := v.(type) {
	case float64, float32, int, int64:
		return n, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, nil
		}
	}
	return v, coercionError(name, v, "number")
}
