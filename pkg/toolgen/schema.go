package toolgen

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
)

// JSON schema primitive types
const (
	typeString  = "string"
	typeInteger = "integer"
	typeNumber  = "number"
	typeBoolean = "boolean"
	typeArray   = "array"
	typeObject  = "object"
)

var (
	uriHints    = map[string]bool{"url": true, "uri": true, "endpoint": true}
	objectHints = map[string]bool{"headers": true, "params": true, "data": true, "json": true}
)

// InputSchema builds the object schema for a parameter list
func InputSchema(params []reflection.Param, rs *rules.RuleSet) map[string]any {
	props := make(map[string]any, len(params))
	var required []string

	for _, p := range params {
		prop, req := ParamSchema(p, rs)
		props[p.Name] = prop
		if req {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       typeObject,
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	if len(props) == 0 {
		schema["additionalProperties"] = true
	}
	return schema
}

// openSchema accepts any object
func openSchema() map[string]any {
	return map[string]any{
		"type":                 typeObject,
		"properties":           map[string]any{},
		"additionalProperties": true,
	}
}

// ParamSchema maps one parameter to a property schema and reports whether
// it is required
func ParamSchema(p reflection.Param, rs *rules.RuleSet) (map[string]any, bool) {
	switch p.Kind {
	case reflection.VariadicKeyword:
		return map[string]any{
			"type":                 typeObject,
			"additionalProperties": true,
			"description":          "Additional keyword arguments",
		}, false
	case reflection.VariadicPositional:
		return map[string]any{
			"type":        typeArray,
			"items":       map[string]any{"type": typeString},
			"description": "Additional positional arguments",
		}, false
	}

	hasDefault := p.HasDefault
	if hasDefault && (p.Default == nil || rs.IsSentinel(fmt.Sprint(p.Default))) {
		hasDefault = false
	}

	prop := make(map[string]any)
	typ := declaredType(p)
	hinted := false
	if typ == "" {
		lower := strings.ToLower(p.Name)
		switch {
		case objectHints[lower]:
			typ = typeObject
			prop["additionalProperties"] = map[string]any{"type": typeString}
			hinted = true
		case hasDefault:
			typ = inferFromDefault(p.Default)
		}
		if typ == "" {
			typ = typeString
		}
		if typ == typeString && uriHints[lower] {
			prop["format"] = "uri"
		}
	}
	prop["type"] = typ

	if typ == typeArray {
		prop["items"] = map[string]any{"type": itemType(p)}
	}

	if hasDefault && !hinted {
		if v, ok := renderDefault(p.Default, typ); ok {
			prop["default"] = v
		}
	}

	return prop, !p.HasDefault && p.Kind == reflection.Positional
}

// declaredType returns the schema type of a declared parameter type, or ""
// when the declaration says nothing useful
func declaredType(p reflection.Param) string {
	if t := p.GoType(); t != nil {
		if typ := kindType(t); typ != "" {
			return typ
		}
	}
	return descriptorType(p.Type)
}

func kindType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return typeString
	case reflect.Bool:
		return typeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return typeInteger
	case reflect.Float32, reflect.Float64:
		return typeNumber
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return typeString
		}
		return typeArray
	case reflect.Map, reflect.Struct:
		return typeObject
	}
	return ""
}

// descriptorType maps a textual type descriptor. Optional[...], Union[...]
// and pointers are unwrapped to their first inner type.
func descriptorType(desc string) string {
	t := unwrap(strings.TrimSpace(desc))
	lower := strings.ToLower(t)

	switch {
	case lower == "":
		return ""
	case lower == "[]byte" || lower == "[]uint8" || lower == "bytes" || lower == "bytearray":
		return typeString
	case strings.HasPrefix(lower, "[]") || strings.HasPrefix(lower, "list") ||
		strings.HasPrefix(lower, "tuple") || strings.HasPrefix(lower, "set") ||
		strings.HasPrefix(lower, "sequence") || strings.HasPrefix(lower, "iterable"):
		return typeArray
	case strings.HasPrefix(lower, "map[") || strings.HasPrefix(lower, "dict") ||
		strings.HasPrefix(lower, "mapping"):
		return typeObject
	}

	switch lower {
	case "str", "string":
		return typeString
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16",
		"uint32", "uint64", "integer", "time.duration":
		return typeInteger
	case "float", "float32", "float64", "number", "decimal":
		return typeNumber
	case "bool", "boolean":
		return typeBoolean
	case "object":
		return typeObject
	}
	return ""
}

func unwrap(t string) string {
	for {
		switch {
		case strings.HasPrefix(t, "*"):
			t = t[1:]
		case strings.HasPrefix(t, "Optional[") && strings.HasSuffix(t, "]"):
			t = firstInner(t[len("Optional[") : len(t)-1])
		case strings.HasPrefix(t, "Union[") && strings.HasSuffix(t, "]"):
			t = firstInner(t[len("Union[") : len(t)-1])
		default:
			return t
		}
	}
}

// firstInner returns the first top-level comma separated element
func firstInner(s string) string {
	depth := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i])
			}
		}
	}
	return strings.TrimSpace(s)
}

func itemType(p reflection.Param) string {
	if t := p.GoType(); t != nil {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
			if typ := kindType(t.Elem()); typ != "" {
				return typ
			}
		}
	}
	return typeString
}

func inferFromDefault(v any) string {
	switch d := v.(type) {
	case bool:
		return typeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return typeInteger
	case float32, float64:
		return typeNumber
	case string:
		return inferFromText(d)
	}
	return ""
}

func inferFromText(s string) string {
	switch strings.ToLower(s) {
	case "true", "false":
		return typeBoolean
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return typeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		return typeNumber
	}
	return typeString
}

// renderDefault converts a default to a JSON literal of the given type.
// Defaults that are not bool, number or string are not representable.
func renderDefault(v any, typ string) (any, bool) {
	switch d := v.(type) {
	case bool:
		return d, true
	case int:
		return d, true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(d).Convert(reflect.TypeOf(int64(0))).Interface(), true
	case float32:
		return finite(float64(d))
	case float64:
		return finite(d)
	case string:
		return textDefault(d, typ), true
	}
	return nil, false
}

func finite(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func textDefault(s, typ string) any {
	switch typ {
	case typeBoolean:
		if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
			return b
		}
	case typeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case typeNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
