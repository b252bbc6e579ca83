package join_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonjoin/internal/join"
)

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   any
		kind join.Kind
		out  any
	}{
		{"nil", nil, join.KindNull, nil},
		{"int", 7, join.KindInt, int64(7)},
		{"int32", int32(-3), join.KindInt, int64(-3)},
		{"uint64", uint64(42), join.KindInt, int64(42)},
		{"float", 2.5, join.KindFloat, 2.5},
		{"json integer", json.Number("12"), join.KindInt, int64(12)},
		{"json fraction", json.Number("12.0"), join.KindFloat, 12.0},
		{"string", "x", join.KindString, "x"},
		{"bytes", []byte("raw"), join.KindString, "raw"},
		{"bool", true, join.KindBool, true},
		{"time", ts, join.KindString, "2024-03-01T12:00:00Z"},
		{"slice", []int{1, 2}, join.KindString, "[1 2]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := join.FromAny(tc.in)
			assert.Equal(t, tc.kind, v.Kind())
			assert.Equal(t, tc.out, v.Any())
		})
	}
}

func TestValue_AsIntOnlyForInts(t *testing.T) {
	_, ok := join.Float(3).AsInt()
	assert.False(t, ok)

	i, ok := join.Int(3).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)

	f, ok := join.Int(3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)
}

func TestValue_StringAndJSON(t *testing.T) {
	assert.Equal(t, "15", join.Int(15).String())
	assert.Equal(t, "15.5", join.Float(15.5).String())
	assert.Equal(t, "null", join.Null().String())

	b, err := json.Marshal(join.Record{"a": join.Int(1), "b": join.String("x"), "c": join.Null()})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"x","c":null}`, string(b))

	var back join.Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, join.KindInt, back["a"].Kind())
	assert.True(t, back["a"].Equal(join.Int(1)))
	assert.True(t, back["b"].Equal(join.String("x")))
	assert.True(t, back["c"].IsNull())

	var f join.Value
	require.NoError(t, json.Unmarshal([]byte(`15.5`), &f))
	assert.True(t, f.Equal(join.Float(15.5)))

	var bad join.Value
	assert.Error(t, json.Unmarshal([]byte(`{`), &bad))
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, join.Int(1).Equal(join.Int(1)))
	assert.False(t, join.Int(1).Equal(join.Float(1)))
	assert.True(t, join.String("a").Equal(join.String("a")))
	assert.True(t, join.Null().Equal(join.Null()))
}

func TestMerge_RightWins(t *testing.T) {
	a := join.Record{"id": join.Int(1), "x": join.Int(1)}
	b := join.Record{"x": join.Int(2), "y": join.Int(3)}

	m := join.Merge(a, b)
	assert.Equal(t, map[string]any{"id": int64(1), "x": int64(2), "y": int64(3)}, m.Map())
	assert.Equal(t, int64(1), a["x"].Any())
}
