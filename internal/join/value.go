package join

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ── Value ──────────────────────────────────────────────────
// A tagged scalar. Records are maps of field name → Value so that
// arbitrary-schema inputs keep their types through the join.

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is an immutable scalar. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Null() Value           { return Value{} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// Kind returns the scalar kind held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer held by v. Only KindInt values qualify;
// floats are never silently truncated.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns v as a float64 for numeric kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Any unwraps v into a plain Go value (int64, float64, string, bool or nil).
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.i != 0
	default:
		return nil
	}
}

// String renders v the way it would appear in a report line.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	default:
		return "null"
	}
}

// Equal reports whether v and o hold the same kind and scalar.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	default:
		return v.i == o.i
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON scalar into v. Integers stay KindInt.
func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// FromAny converts a decoded Go value into a Value. Integers of every
// width become KindInt; json.Number keeps its integer-ness. Anything
// that is not a scalar is rendered as a string.
func FromAny(x any) Value {
	switch n := x.(type) {
	case nil:
		return Null()
	case Value:
		return n
	case int:
		return Int(int64(n))
	case int8:
		return Int(int64(n))
	case int16:
		return Int(int64(n))
	case int32:
		return Int(int64(n))
	case int64:
		return Int(n)
	case uint8:
		return Int(int64(n))
	case uint16:
		return Int(int64(n))
	case uint32:
		return Int(int64(n))
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return Int(int64(n))
		}
		return Float(float64(n))
	case uint64:
		if n <= math.MaxInt64 {
			return Int(int64(n))
		}
		return Float(float64(n))
	case float32:
		return Float(float64(n))
	case float64:
		return Float(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
		if f, err := n.Float64(); err == nil {
			return Float(f)
		}
		return String(n.String())
	case string:
		return String(n)
	case []byte:
		return String(string(n))
	case bool:
		return Bool(n)
	case time.Time:
		return String(n.Format(time.RFC3339))
	default:
		return String(fmt.Sprint(n))
	}
}

// ── Record ─────────────────────────────────────────────────

// Record is a flat mapping from field name to scalar.
type Record map[string]Value

// Clone returns a shallow copy of r. Values are immutable, so the copy
// shares no mutable state with r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge builds a new record holding a's fields overlaid with b's.
// On a name collision b wins.
func Merge(a, b Record) Record {
	out := make(Record, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// RecordFromMap converts a decoded map into a Record.
func RecordFromMap(m map[string]any) Record {
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// Map unwraps r into plain Go values.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v.Any()
	}
	return m
}
