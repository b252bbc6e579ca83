package etl

import (
	"fmt"
	"strings"

	"jsonjoin/internal/join"
)

// ── Report ─────────────────────────────────────────────────
// Per-name running totals over joined rows, e.g. how much each named
// customer spent across their orders.

// Report configures the totals computed after a join.
type Report struct {
	GroupField string   `json:"groupField"` // e.g. "name"
	SumField   string   `json:"sumField"`   // e.g. "price"
	Names      []string `json:"names"`      // e.g. ["Barry", "Steve"]
}

// Enabled reports whether the report has enough configuration to run.
func (r *Report) Enabled() bool {
	return r != nil && r.GroupField != "" && r.SumField != "" && len(r.Names) > 0
}

// Total is the summed value for one name. Total stays an integer until a
// float is added.
type Total struct {
	Name  string     `json:"name"`
	Value join.Value `json:"value"`
	Rows  int        `json:"rows"`
}

// ComputeTotals sums SumField over rows whose GroupField equals each name.
// Rows with a missing or non-numeric SumField are skipped.
func ComputeTotals(rows []Record, rep Report) []Total {
	totals := make([]Total, len(rep.Names))
	index := make(map[string]int, len(rep.Names))
	for i, n := range rep.Names {
		totals[i] = Total{Name: n, Value: join.Int(0)}
		index[n] = i
	}

	for _, r := range rows {
		group, ok := r.Data[rep.GroupField]
		if !ok {
			continue
		}
		i, ok := index[fmt.Sprint(group)]
		if !ok {
			continue
		}
		add := join.FromAny(r.Data[rep.SumField])
		sum, ok := addNumeric(totals[i].Value, add)
		if !ok {
			continue
		}
		totals[i].Value = sum
		totals[i].Rows++
	}
	return totals
}

func addNumeric(a, b join.Value) (join.Value, bool) {
	if ai, ok := a.AsInt(); ok {
		if bi, ok := b.AsInt(); ok {
			return join.Int(ai + bi), true
		}
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		return a, false
	}
	return join.Float(af + bf), true
}

// Summary renders the one-line run summary:
//
//	length is 3, total for Barry is $15, total for Steve is $20
func Summary(rows int, totals []Total) string {
	var b strings.Builder
	fmt.Fprintf(&b, "length is %d", rows)
	for _, t := range totals {
		fmt.Fprintf(&b, ", total for %s is $%s", t.Name, t.Value)
	}
	return b.String()
}
