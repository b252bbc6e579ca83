package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"jsonjoin/internal/etl"
)

// ── Inline Source ──────────────────────────────────────────
// Records embedded directly in the job configuration, either as a JSON
// array string or as an already-decoded array.

type inlineSource struct{}

func init() { etl.RegisterSource(&inlineSource{}) }

func (s *inlineSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "inline",
		Label: "Inline Records",
		ConfigFields: []etl.ConfigField{
			{Key: "records", Label: "Records", Type: "textarea", Required: true, Help: "JSON array of objects"},
		},
	}
}

func (s *inlineSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	records, err := inlineRecords(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *inlineSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readAll(ctx, func() ([]etl.Record, error) { return inlineRecords(cfg) })
}

func inlineRecords(cfg etl.SourceConfig) ([]etl.Record, error) {
	var data []byte
	switch v := cfg["records"].(type) {
	case nil:
		return nil, fmt.Errorf("records is required")
	case string:
		data = []byte(v)
	default:
		// Re-encode so numbers pass through the same json.Number path.
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode records: %w", err)
		}
		data = b
	}

	records, err := ParseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return records, nil
}

// ParseRecords decodes a JSON array of objects into normalized records.
func ParseRecords(data []byte) ([]etl.Record, error) {
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	return toRecords(raw)
}
