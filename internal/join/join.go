package join

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ── Errors ─────────────────────────────────────────────────

var (
	// ErrKeyFieldMissing is returned when a record lacks its side's key field.
	ErrKeyFieldMissing = errors.New("key field missing")
	// ErrKeyTypeMismatch is returned when a key field holds a non-integer.
	ErrKeyTypeMismatch = errors.New("key field is not an integer")
)

// Side names which input a failing record came from.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// KeyError locates a key precondition failure. It unwraps to
// ErrKeyFieldMissing or ErrKeyTypeMismatch.
type KeyError struct {
	Side  Side
	Index int
	Field string
	Kind  Kind // kind found in the field; KindNull when missing
	Err   error
}

func (e *KeyError) Error() string {
	if errors.Is(e.Err, ErrKeyTypeMismatch) {
		return fmt.Sprintf("%s record %d: %s: %v (got %s)", e.Side, e.Index, e.Field, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s record %d: %s: %v", e.Side, e.Index, e.Field, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// ── Sort-merge join ────────────────────────────────────────

// parallelSortThreshold is the per-side size above which both sides are
// sorted concurrently. Sorting is stable either way.
const parallelSortThreshold = 4096

type keyed struct {
	key int64
	rec Record
}

// Join computes the inner equi-join of a and b where a[keyA] == b[keyB].
//
// Every key must be present and hold an integer; otherwise a *KeyError is
// returned and no records are. Output is grouped by ascending key. Within
// a group each a record (in stable sorted order) is paired with every
// matching b record (in stable sorted order). Merged records hold a's
// fields overlaid with b's. Inputs are never mutated.
func Join(a, b []Record, keyA, keyB string) ([]Record, error) {
	sa, err := extractKeys(a, keyA, Left)
	if err != nil {
		return nil, err
	}
	sb, err := extractKeys(b, keyB, Right)
	if err != nil {
		return nil, err
	}

	sortBoth(sa, sb)

	out := make([]Record, 0)
	i, j := 0, 0
	for i < len(sa) && j < len(sb) {
		ka, kb := sa[i].key, sb[j].key
		switch {
		case ka < kb:
			i++
		case ka > kb:
			j++
		default:
			iEnd := runEnd(sa, i)
			jEnd := runEnd(sb, j)
			for _, ra := range sa[i:iEnd] {
				for _, rb := range sb[j:jEnd] {
					out = append(out, Merge(ra.rec, rb.rec))
				}
			}
			i, j = iEnd, jEnd
		}
	}
	return out, nil
}

// extractKeys validates every record's key before any sorting so that a
// failure never leaves work half done.
func extractKeys(records []Record, field string, side Side) ([]keyed, error) {
	out := make([]keyed, len(records))
	for idx, r := range records {
		v, ok := r[field]
		if !ok {
			return nil, &KeyError{Side: side, Index: idx, Field: field, Err: ErrKeyFieldMissing}
		}
		k, ok := v.AsInt()
		if !ok {
			return nil, &KeyError{Side: side, Index: idx, Field: field, Kind: v.Kind(), Err: ErrKeyTypeMismatch}
		}
		out[idx] = keyed{key: k, rec: r}
	}
	return out, nil
}

func sortBoth(sa, sb []keyed) {
	if len(sa) < parallelSortThreshold || len(sb) < parallelSortThreshold {
		sortKeyed(sa)
		sortKeyed(sb)
		return
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sortKeyed(sb)
	}()
	sortKeyed(sa)
	wg.Wait()
}

func sortKeyed(s []keyed) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].key < s[j].key })
}

// runEnd returns the index just past the run of equal keys starting at i.
func runEnd(s []keyed, i int) int {
	k := s[i].key
	for i < len(s) && s[i].key == k {
		i++
	}
	return i
}
