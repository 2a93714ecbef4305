package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sdkbridge/pkg/reflection"
)

func TestCoerce_Descriptors(t *testing.T) {
	sig := &reflection.Signature{Params: []reflection.Param{
		{Name: "verbose", Type: "bool"},
		{Name: "limit", Type: "int"},
		{Name: "ratio", Type: "float"},
		{Name: "payload", Type: "bytes"},
		{Name: "name", Type: "str"},
		{Name: "region", Type: "str", Default: "eu", HasDefault: true},
	}}

	args, unmatched, errs := Coerce(sig, map[string]any{
		"verbose": "no",
		"limit":   float64(10),
		"ratio":   "0.25",
		"payload": "raw",
		"name":    "n",
	})
	require.Empty(t, errs)
	assert.Empty(t, unmatched)

	assert.Equal(t, false, args.Named["verbose"])
	assert.Equal(t, int64(10), args.Named["limit"])
	assert.Equal(t, 0.25, args.Named["ratio"])
	assert.Equal(t, []byte("raw"), args.Named["payload"])
	assert.Equal(t, "n", args.Named["name"])
	assert.NotContains(t, args.Named, "region")
}

func TestCoerce_Irrecoverable(t *testing.T) {
	sig := &reflection.Signature{Params: []reflection.Param{{Name: "limit", Type: "int"}}}

	args, _, errs := Coerce(sig, map[string]any{"limit": "lots"})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCoercion)
	assert.Equal(t, "lots", args.Named["limit"])
}

func TestCoerce_Collectors(t *testing.T) {
	sig := &reflection.Signature{Params: []reflection.Param{
		{Name: "name", Type: "str"},
		{Name: "tags", Kind: reflection.VariadicPositional},
		{Name: "opts", Kind: reflection.VariadicKeyword},
	}}

	args, unmatched, errs := Coerce(sig, map[string]any{
		"name":  "a",
		"tags":  []any{"x", "y"},
		"opts":  map[string]any{"color": "red"},
		"other": 1,
	})
	assert.Empty(t, errs)
	assert.Empty(t, unmatched)
	assert.Equal(t, []any{"x", "y"}, args.Rest)
	assert.Equal(t, map[string]any{"color": "red", "other": 1}, args.Extra)
}

func TestCoerce_KeywordCollectorScalar(t *testing.T) {
	sig := &reflection.Signature{Params: []reflection.Param{
		{Name: "opts", Kind: reflection.VariadicKeyword},
	}}

	args, unmatched, errs := Coerce(sig, map[string]any{"opts": "verbose"})
	assert.Empty(t, errs)
	assert.Empty(t, unmatched)
	assert.Equal(t, map[string]any{"opts": "verbose"}, args.Extra)
}

func TestCoerce_Unmatched(t *testing.T) {
	sig := &reflection.Signature{Params: []reflection.Param{{Name: "name", Type: "str"}}}

	_, unmatched, _ := Coerce(sig, map[string]any{"name": "a", "bogus": true})
	assert.Equal(t, []string{"bogus"}, unmatched)
}

func TestCoerce_Bool(t *testing.T) {
	p := reflection.Param{Name: "flag", Type: "bool"}
	for in, want := range map[any]bool{"true": true, "1": true, "yes": true, "false": false, "0": false, float64(1): true} {
		got, err := coerceValue(in, p)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
