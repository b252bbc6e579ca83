package etl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jsonjoin/internal/etl"
)

func rec(data map[string]any) etl.Record { return etl.Record{Data: data} }

func TestBuildTransformers_Chain(t *testing.T) {
	ts := etl.BuildTransformers([]etl.TransformConfig{
		{Type: "filter", Config: map[string]any{"field": "n", "op": "neq", "value": "skip"}},
		{Type: "rename", Config: map[string]any{"mapping": map[string]any{"n": "name"}}},
		{Type: "type_cast", Config: map[string]any{"field": "id", "castType": "int"}},
		{Type: "select", Config: map[string]any{"fields": []any{"id", "name"}}},
		{Type: "limit", Config: map[string]any{"count": float64(2)}},
		{Type: "unknown", Config: map[string]any{}},
	})
	assert.Len(t, ts, 5)

	inputs := []etl.Record{
		rec(map[string]any{"id": "1", "n": "a", "junk": true}),
		rec(map[string]any{"id": 2.0, "n": "skip"}),
		rec(map[string]any{"id": int64(3), "n": "c"}),
		rec(map[string]any{"id": "4", "n": "d"}),
	}

	var kept []map[string]any
	for _, r := range inputs {
		if out, keep := etl.ApplyTransformers(r, ts); keep {
			kept = append(kept, out.Data)
		}
	}
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "a"},
		{"id": int64(3), "name": "c"},
	}, kept)
}

func TestTypeCast_IntLeavesFractionalValues(t *testing.T) {
	tc := &etl.TypeCastTransform{Field: "k", CastType: "int"}

	out, _ := tc.Transform(rec(map[string]any{"k": 2.5}))
	assert.Equal(t, 2.5, out.Data["k"])

	out, _ = tc.Transform(rec(map[string]any{"k": 7.0}))
	assert.Equal(t, int64(7), out.Data["k"])

	out, _ = tc.Transform(rec(map[string]any{"k": "x"}))
	assert.Equal(t, "x", out.Data["k"])
}

func TestFilter_Ops(t *testing.T) {
	r := rec(map[string]any{"price": int64(10), "name": "Barry"})
	cases := []struct {
		op    string
		field string
		value any
		keep  bool
	}{
		{"eq", "name", "Barry", true},
		{"neq", "name", "Barry", false},
		{"gt", "price", 5, true},
		{"lt", "price", 5, false},
		{"contains", "name", "arr", true},
		{"eq", "missing", "x", false},
	}
	for _, tc := range cases {
		_, keep := (&etl.FilterTransform{Field: tc.field, Op: tc.op, Value: tc.value}).Transform(r)
		assert.Equal(t, tc.keep, keep, "%s %s %v", tc.field, tc.op, tc.value)
	}
}
