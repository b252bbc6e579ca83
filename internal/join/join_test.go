package join_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonjoin/internal/join"
)

// rec builds a record from alternating name/value pairs.
func rec(kv ...any) join.Record {
	r := make(join.Record, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = join.FromAny(kv[i+1])
	}
	return r
}

func customers() []join.Record {
	return []join.Record{
		rec("cid", 1, "name", "Barry"),
		rec("cid", 2, "name", "Steve"),
	}
}

func orders() []join.Record {
	return []join.Record{
		rec("customer_id", 1, "price", 10),
		rec("customer_id", 1, "price", 5),
		rec("customer_id", 2, "price", 20),
	}
}

func totalFor(rows []join.Record, name string) int64 {
	var sum int64
	for _, r := range rows {
		if r["name"].String() != name {
			continue
		}
		p, _ := r["price"].AsInt()
		sum += p
	}
	return sum
}

// ─────────────────────────────────────────────────────────────
// Core behaviour
// ─────────────────────────────────────────────────────────────

func TestJoin_CustomersOrders(t *testing.T) {
	out, err := join.Join(customers(), orders(), "cid", "customer_id")
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, int64(15), totalFor(out, "Barry"))
	assert.Equal(t, int64(20), totalFor(out, "Steve"))
}

func TestJoin_DuplicateFanOut(t *testing.T) {
	a := []join.Record{
		rec("id", 5, "a", "first"),
		rec("id", 5, "a", "second"),
	}
	b := []join.Record{
		rec("id", 5, "b", "x"),
		rec("id", 5, "b", "y"),
		rec("id", 5, "b", "z"),
	}

	out, err := join.Join(a, b, "id", "id")
	require.NoError(t, err)
	require.Len(t, out, 6)

	var got []string
	for _, r := range out {
		got = append(got, r["a"].String()+"/"+r["b"].String())
	}
	assert.Equal(t, []string{
		"first/x", "first/y", "first/z",
		"second/x", "second/y", "second/z",
	}, got)
}

func TestJoin_DuplicateLeftKeysAllMatch(t *testing.T) {
	// A second left record with the same key must still see the whole right run.
	a := []join.Record{rec("k", 1, "n", 1), rec("k", 1, "n", 2), rec("k", 2, "n", 3)}
	b := []join.Record{rec("k", 1, "m", 1), rec("k", 2, "m", 2)}

	out, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestJoin_FieldOverlay(t *testing.T) {
	a := []join.Record{rec("id", 5, "x", 1)}
	b := []join.Record{rec("id", 5, "x", 2, "y", 9)}

	out, err := join.Join(a, b, "id", "id")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]any{"id": int64(5), "x": int64(2), "y": int64(9)}, out[0].Map())
}

func TestJoin_DisjointKeys(t *testing.T) {
	a := []join.Record{rec("k", 1), rec("k", 3)}
	b := []join.Record{rec("k", 2), rec("k", 4)}

	out, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestJoin_EmptyInputs(t *testing.T) {
	cases := []struct {
		name string
		a, b []join.Record
	}{
		{"both empty", nil, nil},
		{"left empty", nil, orders()},
		{"right empty", customers(), []join.Record{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := join.Join(tc.a, tc.b, "cid", "customer_id")
			require.NoError(t, err)
			assert.NotNil(t, out)
			assert.Empty(t, out)
		})
	}
}

func TestJoin_AscendingKeyOrder(t *testing.T) {
	a := []join.Record{rec("k", 3, "s", "a3"), rec("k", 1, "s", "a1"), rec("k", 2, "s", "a2")}
	b := []join.Record{rec("k", 2), rec("k", 3), rec("k", 1), rec("k", -7)}

	out, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, want := range []int64{1, 2, 3} {
		k, ok := out[i]["k"].AsInt()
		require.True(t, ok)
		assert.Equal(t, want, k)
	}
}

func TestJoin_StableWithinGroup(t *testing.T) {
	a := []join.Record{
		rec("k", 2, "tag", "a0"),
		rec("k", 1, "tag", "a1"),
		rec("k", 2, "tag", "a2"),
	}
	b := []join.Record{
		rec("k", 2, "rtag", "b0"),
		rec("k", 1, "rtag", "b1"),
		rec("k", 2, "rtag", "b2"),
	}

	first, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)

	var got []string
	for _, r := range first {
		got = append(got, r["tag"].String()+r["rtag"].String())
	}
	assert.Equal(t, []string{"a1b1", "a0b0", "a0b2", "a2b0", "a2b2"}, got)

	for i := 0; i < 5; i++ {
		again, err := join.Join(a, b, "k", "k")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestJoin_InputsNotMutated(t *testing.T) {
	a := []join.Record{rec("k", 2, "x", 1), rec("k", 1, "x", 2)}
	b := []join.Record{rec("k", 1, "x", 3), rec("k", 2, "y", 4)}
	aBefore := []join.Record{a[0].Clone(), a[1].Clone()}
	bBefore := []join.Record{b[0].Clone(), b[1].Clone()}

	out, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)
	require.Len(t, out, 2)

	out[0]["x"] = join.String("changed")

	assert.Equal(t, aBefore, a)
	assert.Equal(t, bBefore, b)
}

func TestJoin_SwappedSidesSameCombinations(t *testing.T) {
	a := []join.Record{rec("k", 1, "l", "p"), rec("k", 1, "l", "q"), rec("k", 2, "l", "r")}
	b := []join.Record{rec("k", 1, "r", "u"), rec("k", 2, "r", "v"), rec("k", 2, "r", "w")}

	ab, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)
	ba, err := join.Join(b, a, "k", "k")
	require.NoError(t, err)

	// No colliding non-key fields, so both directions hold the same rows.
	combos := func(rows []join.Record) map[string]int {
		m := map[string]int{}
		for _, r := range rows {
			m[r["l"].String()+r["r"].String()]++
		}
		return m
	}
	assert.Equal(t, combos(ab), combos(ba))
}

// ─────────────────────────────────────────────────────────────
// Cardinality
// ─────────────────────────────────────────────────────────────

func TestJoin_Cardinality(t *testing.T) {
	keysA := []int64{1, 1, 1, 2, 3, 3, 5, 8, 8, 8, 8}
	keysB := []int64{0, 1, 1, 3, 3, 3, 4, 5, 8, 8, 9}

	var a, b []join.Record
	countA := map[int64]int{}
	countB := map[int64]int{}
	for i, k := range keysA {
		a = append(a, rec("ka", k, "ia", i))
		countA[k]++
	}
	for i, k := range keysB {
		b = append(b, rec("kb", k, "ib", i))
		countB[k]++
	}

	want := 0
	for k, n := range countA {
		want += n * countB[k]
	}

	out, err := join.Join(a, b, "ka", "kb")
	require.NoError(t, err)
	assert.Len(t, out, want)
}

func TestJoin_LargeInputsGroupedAndStable(t *testing.T) {
	const n = 5000
	var a, b []join.Record
	for i := 0; i < n; i++ {
		a = append(a, rec("k", (i*7919)%997, "ia", i))
		b = append(b, rec("k", (i*104729)%991, "ib", i))
	}

	out, err := join.Join(a, b, "k", "k")
	require.NoError(t, err)

	small, err := join.Join(a[:100], b[:100], "k", "k")
	require.NoError(t, err)

	// Concurrent and sequential sort paths both group by ascending key
	// with stable order inside groups.
	for _, rows := range [][]join.Record{out, small} {
		prev := int64(-1)
		prevA := int64(-1)
		for _, r := range rows {
			k, _ := r["k"].AsInt()
			ia, _ := r["ia"].AsInt()
			require.GreaterOrEqual(t, k, prev)
			if k == prev {
				require.GreaterOrEqual(t, ia, prevA)
			}
			prev, prevA = k, ia
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Key errors
// ─────────────────────────────────────────────────────────────

func TestJoin_KeyFieldMissing(t *testing.T) {
	a := []join.Record{rec("cid", 1, "name", "Barry"), rec("name", "NoKey")}

	out, err := join.Join(a, orders(), "cid", "customer_id")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, join.ErrKeyFieldMissing))

	var ke *join.KeyError
	require.True(t, errors.As(err, &ke))
	assert.Equal(t, join.Left, ke.Side)
	assert.Equal(t, 1, ke.Index)
	assert.Equal(t, "cid", ke.Field)
}

func TestJoin_KeyFieldMissingRight(t *testing.T) {
	b := append(orders(), rec("price", 3))

	_, err := join.Join(customers(), b, "cid", "customer_id")
	var ke *join.KeyError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, join.Right, ke.Side)
	assert.Equal(t, 3, ke.Index)
	assert.ErrorIs(t, err, join.ErrKeyFieldMissing)
}

func TestJoin_KeyTypeMismatch(t *testing.T) {
	cases := []struct {
		name string
		key  join.Value
		kind join.Kind
	}{
		{"float", join.Float(1.5), join.KindFloat},
		{"integral float", join.Float(1), join.KindFloat},
		{"string", join.String("1"), join.KindString},
		{"null", join.Null(), join.KindNull},
		{"bool", join.Bool(true), join.KindBool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := []join.Record{{"cid": tc.key}}
			out, err := join.Join(a, orders(), "cid", "customer_id")
			assert.Nil(t, out)
			assert.ErrorIs(t, err, join.ErrKeyTypeMismatch)

			var ke *join.KeyError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, tc.kind, ke.Kind)
			assert.Contains(t, ke.Error(), fmt.Sprintf("got %s", tc.kind))
		})
	}
}

func TestJoin_KeyErrorEvenWhenOtherSideEmpty(t *testing.T) {
	_, err := join.Join([]join.Record{rec("x", 1)}, nil, "cid", "customer_id")
	assert.ErrorIs(t, err, join.ErrKeyFieldMissing)
}
