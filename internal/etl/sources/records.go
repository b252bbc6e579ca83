package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jsonjoin/internal/etl"
)

// ── Shared helpers ─────────────────────────────────────────

// decodeJSON parses data keeping numbers as json.Number so integer keys
// stay integers instead of collapsing into float64.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// navigatePath walks a dot-separated path into nested objects.
func navigatePath(obj any, path string) (any, error) {
	if path == "" {
		return obj, nil
	}
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q is not an object", part)
		}
		next, ok := m[part]
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
		current = next
	}
	return current, nil
}

// toRecords converts a decoded JSON value into records. An array yields one
// record per object element; a single object yields one record.
func toRecords(raw any) ([]etl.Record, error) {
	switch v := raw.(type) {
	case []any:
		records := make([]etl.Record, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
			records = append(records, etl.Record{Data: flattenMap(m)})
		}
		return records, nil
	case map[string]any:
		return []etl.Record{{Data: flattenMap(v)}}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected an array of objects, got %T", raw)
	}
}

// flattenMap keeps scalar values, normalizing numbers to int64 or float64.
// Nested objects and arrays are serialized as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		flat[k] = normalizeValue(v)
	}
	return flat
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case string, float64, int64, bool, nil:
		return v
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	case []byte:
		return string(n)
	case time.Time:
		return n.Format(time.RFC3339)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// inferSchema infers a schema from records, fields sorted by name.
func inferSchema(records []etl.Record) *etl.Schema {
	return etl.SchemaFromRecords(records)
}

// emitAll streams records into out until done or ctx is cancelled.
func emitAll(ctx context.Context, out chan<- etl.Record, records []etl.Record) {
	for _, rec := range records {
		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
}

// readAll wraps a one-shot loader as a streaming Read.
func readAll(ctx context.Context, load func() ([]etl.Record, error)) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := load()
		if err != nil {
			errCh <- err
			return
		}
		emitAll(ctx, out, records)
	}()

	return out, errCh
}
