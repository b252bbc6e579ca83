package etl

import "jsonjoin/internal/join"

// ── Record ─────────────────────────────────────────────────
// Pipeline format between sources, transforms and destinations.
// Sources emit loosely typed Records; the engine converts them to
// join.Record right before the join and back right after it.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean"
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema declares a field with the given name.
func (s *Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Record is a single row flowing through the pipeline.
// Values are int64, float64, string, bool or nil once normalized.
type Record struct {
	Data map[string]any `json:"data"`
}

// toJoinRecords converts pipeline records into join records.
func toJoinRecords(records []Record) []join.Record {
	out := make([]join.Record, len(records))
	for i, r := range records {
		out[i] = join.RecordFromMap(r.Data)
	}
	return out
}

// fromJoinRecords converts joined records back into pipeline records.
func fromJoinRecords(records []join.Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{Data: r.Map()}
	}
	return out
}
