package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxItems caps materialized iterables
const MaxItems = 100

// TruncationNote is appended after MaxItems elements
const TruncationNote = "Results truncated to 100 items"

// maxDepth bounds nesting before falling back to text
const maxDepth = 32

var (
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	timeType      = reflect.TypeOf(time.Time{})
)

// mapMethods are conversion methods tried in order
var mapMethods = []string{"ToMap", "AsMap", "ToDict"}

// Serialize turns any value into something encoding/json can marshal.
// It never fails: values it cannot represent become text, and a panic
// raised by a method of v yields its fmt rendering.
func Serialize(ctx context.Context, v any) (out any) {
	rv := reflect.ValueOf(v)
	defer func() {
		if recover() != nil {
			out = fallback(rv)
		}
	}()
	s := &serializer{ctx: ctx, seen: make(map[uintptr]bool)}
	return s.value(rv, 0)
}

type serializer struct {
	ctx  context.Context
	seen map[uintptr]bool
}

func truncationMarker() map[string]any {
	return map[string]any{"note": TruncationNote}
}

func fallback(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.CanInterface() {
		return fmt.Sprintf("%v", v.Interface())
	}
	return v.String()
}

func (s *serializer) value(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return fallback(v)
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return s.value(v.Elem(), depth)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if out, ok := s.special(v, depth); ok {
			return out
		}
		addr := v.Pointer()
		if s.seen[addr] {
			return fmt.Sprintf("<cycle %s>", v.Type())
		}
		s.seen[addr] = true
		defer delete(s.seen, addr)
		return s.value(v.Elem(), depth+1)
	}

	if out, ok := s.special(v, depth); ok {
		return out
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fallback(v)
		}
		return f
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return bytesValue(v.Bytes())
		}
		return s.sequence(v, depth)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return bytesValue(b)
		}
		return s.sequence(v, depth)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if isSet(v.Type()) {
			return s.set(v, depth)
		}
		return s.mapping(v, depth)
	case reflect.Chan:
		if v.IsNil() {
			return nil
		}
		return s.channel(v, depth)
	case reflect.Func:
		if v.IsNil() {
			return nil
		}
		if out, ok := s.seq(v, depth); ok {
			return out
		}
		return fallback(v)
	case reflect.Struct:
		return s.structure(v, depth)
	}
	return fallback(v)
}

// special handles types with their own representation: time, errors,
// map conversion methods, iterators and JSON marshalers
func (s *serializer) special(v reflect.Value, depth int) (any, bool) {
	t := v.Type()
	if !v.CanInterface() {
		return nil, false
	}

	if t == timeType {
		return v.Interface().(time.Time).Format(time.RFC3339Nano), true
	}
	if t.Implements(errorType) {
		text, ok := safeError(v.Interface().(error))
		if !ok {
			return fallback(v), true
		}
		return text, true
	}

	for _, name := range mapMethods {
		m := v.MethodByName(name)
		if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
			continue
		}
		if m.Type().Out(0).Kind() != reflect.Map {
			continue
		}
		out, ok := safeCall(m)
		if !ok {
			return fallback(v), true
		}
		return s.value(out, depth+1), true
	}

	if out, ok := s.iterator(v, depth); ok {
		return out, true
	}

	if t.Implements(marshalerType) {
		data, err := safeMarshal(v.Interface().(json.Marshaler))
		if err != nil {
			return fallback(v), true
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fallback(v), true
		}
		return decoded, true
	}
	return nil, false
}

func safeCall(m reflect.Value, in ...reflect.Value) (out reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	res := m.Call(in)
	return res[0], true
}

func safeError(err error) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return err.Error(), true
}

func safeMarshal(m json.Marshaler) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("MarshalJSON panicked: %v", r)
		}
	}()
	return m.MarshalJSON()
}

func bytesValue(b []byte) any {
	if utf8.Valid(b) {
		return string(b)
	}
	return map[string]any{"base64": base64.StdEncoding.EncodeToString(b)}
}

// isSafe reports whether a value needs no conversion beyond copying
func isSafe(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8 && isSafe(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && !isSet(t) && isSafe(t.Elem())
	}
	return false
}

// allSafe inspects the dynamic elements of an interface-typed container
func allSafe(v reflect.Value) bool {
	if v.Type().Elem().Kind() != reflect.Interface {
		return false
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !safeValue(v.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return false
		}
		iter := v.MapRange()
		for iter.Next() {
			if !safeValue(iter.Value()) {
				return false
			}
		}
		return true
	}
	return false
}

func safeValue(v reflect.Value) bool {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	if isSafe(v.Type()) {
		return true
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return allSafe(v)
	}
	return false
}

// isSet reports map types used as sets
func isSet(t reflect.Type) bool {
	elem := t.Elem()
	return (elem.Kind() == reflect.Struct && elem.NumField() == 0) || elem.Kind() == reflect.Bool
}

// sequence renders arrays and slices. Slices of safe elements pass through
// whole; anything else is materialized like an iterable.
func (s *serializer) sequence(v reflect.Value, depth int) any {
	n := v.Len()
	if v.Kind() == reflect.Array || isSafe(v.Type().Elem()) || allSafe(v) {
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = s.value(v.Index(i), depth+1)
		}
		return out
	}

	limit := n
	if limit > MaxItems {
		limit = MaxItems
	}
	out := make([]any, 0, limit+1)
	for i := 0; i < limit; i++ {
		out = append(out, s.value(v.Index(i), depth+1))
	}
	if n > MaxItems {
		out = append(out, truncationMarker())
	}
	return out
}

func (s *serializer) set(v reflect.Value, depth int) any {
	keys := v.MapKeys()
	out := make([]any, 0, len(keys))
	boolSet := v.Type().Elem().Kind() == reflect.Bool
	for _, k := range keys {
		if boolSet && !v.MapIndex(k).Bool() {
			continue
		}
		out = append(out, s.value(k, depth+1))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

func (s *serializer) mapping(v reflect.Value, depth int) any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[keyString(iter.Key())] = s.value(iter.Value(), depth+1)
	}
	return out
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

func (s *serializer) structure(v reflect.Value, depth int) any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = s.value(v.Field(i), depth+1)
	}
	return out
}

// channel drains up to MaxItems elements, stopping early when the channel
// closes or the context ends
func (s *serializer) channel(v reflect.Value, depth int) any {
	if v.Type().ChanDir()&reflect.RecvDir == 0 {
		return fallback(v)
	}

	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: v},
	}
	if s.ctx != nil && s.ctx.Done() != nil {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.ctx.Done())})
	}

	out := make([]any, 0)
	for {
		chosen, elem, ok := reflect.Select(cases)
		if chosen != 0 || !ok {
			return out
		}
		if len(out) == MaxItems {
			return append(out, truncationMarker())
		}
		out = append(out, s.value(elem, depth+1))
	}
}

// seq materializes iter.Seq and iter.Seq2 shaped functions
func (s *serializer) seq(v reflect.Value, depth int) (any, bool) {
	t := v.Type()
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return nil, false
	}
	yield := t.In(0)
	if yield.Kind() != reflect.Func || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	if yield.NumIn() != 1 && yield.NumIn() != 2 {
		return nil, false
	}

	out := make([]any, 0)
	truncated := false
	fn := reflect.MakeFunc(yield, func(args []reflect.Value) []reflect.Value {
		if len(out) == MaxItems {
			truncated = true
			return []reflect.Value{reflect.ValueOf(false)}
		}
		if len(args) == 2 {
			out = append(out, []any{s.value(args[0], depth+1), s.value(args[1], depth+1)})
		} else {
			out = append(out, s.value(args[0], depth+1))
		}
		return []reflect.Value{reflect.ValueOf(s.ctx == nil || s.ctx.Err() == nil)}
	})

	if !safeInvoke(v, fn) {
		return fallback(v), true
	}
	if truncated {
		out = append(out, truncationMarker())
	}
	return out, true
}

func safeInvoke(fn reflect.Value, args ...reflect.Value) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn.Call(args)
	return true
}

// iterator materializes values with Next() bool and Value() methods
func (s *serializer) iterator(v reflect.Value, depth int) (any, bool) {
	next := v.MethodByName("Next")
	value := v.MethodByName("Value")
	if !next.IsValid() || !value.IsValid() {
		return nil, false
	}
	nt, vt := next.Type(), value.Type()
	if nt.NumIn() != 0 || nt.NumOut() != 1 || nt.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	if vt.NumIn() != 0 || vt.NumOut() != 1 {
		return nil, false
	}

	out := make([]any, 0)
	for {
		if s.ctx != nil && s.ctx.Err() != nil {
			return out, true
		}
		more, ok := safeCall(next)
		if !ok || !more.Bool() {
			return out, true
		}
		if len(out) == MaxItems {
			return append(out, truncationMarker()), true
		}
		item, ok := safeCall(value)
		if !ok {
			return out, true
		}
		out = append(out, s.value(item, depth+1))
	}
}
