package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ── Destination ────────────────────────────────────────────
// A Destination receives the joined rows of a run.

// SyncMode determines how rows are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // drop previous rows, write fresh
	SyncAppend  SyncMode = "append"  // keep previous rows
)

// Destination types understood by JoinJob.TargetType.
const (
	TargetTable    = "table"
	TargetJSONFile = "json_file"
	TargetAMQP     = "amqp"
)

// Destination writes joined rows to a target system.
// target is destination-specific: a job ID, a file path or a routing key.
type Destination interface {
	Write(ctx context.Context, target string, schema *Schema, records []Record, mode SyncMode) (int, error)
}

// ── Table Destination ──────────────────────────────────────
// Stores joined rows in the local SQLite database, keyed by job ID.

// RowStore persists joined rows as JSON documents.
type RowStore interface {
	ReplaceRows(ctx context.Context, jobID string, rows []map[string]any) (int, error)
	AppendRows(ctx context.Context, jobID string, rows []map[string]any) (int, error)
}

// TableWriter implements Destination on top of a RowStore.
type TableWriter struct {
	Store RowStore
}

func (w *TableWriter) Write(ctx context.Context, target string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if target == "" {
		return 0, fmt.Errorf("table target is required")
	}
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = r.Data
	}
	if mode == SyncAppend {
		return w.Store.AppendRows(ctx, target, rows)
	}
	return w.Store.ReplaceRows(ctx, target, rows)
}

// ── JSON File Destination ──────────────────────────────────

// JSONFileWriter writes joined rows as an indented JSON array.
// Replace overwrites the file; append extends the existing array.
type JSONFileWriter struct{}

func (w *JSONFileWriter) Write(ctx context.Context, target string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if target == "" {
		return 0, fmt.Errorf("file path is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rows []map[string]any
	if mode == SyncAppend {
		data, err := os.ReadFile(target)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return 0, fmt.Errorf("read existing file: %w", err)
		case len(data) > 0:
			if err := json.Unmarshal(data, &rows); err != nil {
				return 0, fmt.Errorf("parse existing file: %w", err)
			}
		}
	}
	if rows == nil {
		rows = make([]map[string]any, 0, len(records))
	}
	for _, r := range records {
		rows = append(rows, r.Data)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal rows: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	if err := writeAtomically(target, data); err != nil {
		return 0, err
	}
	return len(records), nil
}

// writeAtomically writes data to a temp file next to targetPath and renames
// it into place so readers never observe a half-written file.
func writeAtomically(targetPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(targetPath), ".jsonjoin-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", targetPath, err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file %s: %w", tmpName, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file %s: %w", tmpName, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, targetPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s to %s: %w", tmpName, targetPath, err)
	}
	return nil
}
