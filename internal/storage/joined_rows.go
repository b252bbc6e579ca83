package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JoinedRowStore keeps the output of table-target joins, one JSON
// document per row, grouped by target name. It implements etl.RowStore.
type JoinedRowStore struct {
	db *DB
}

func NewJoinedRowStore(db *DB) *JoinedRowStore {
	return &JoinedRowStore{db: db}
}

// ReplaceRows drops the rows stored under target and writes rows in one
// transaction.
func (s *JoinedRowStore) ReplaceRows(ctx context.Context, target string, rows []map[string]any) (int, error) {
	return s.write(ctx, target, rows, true)
}

// AppendRows adds rows after the ones already stored under target.
func (s *JoinedRowStore) AppendRows(ctx context.Context, target string, rows []map[string]any) (int, error) {
	return s.write(ctx, target, rows, false)
}

func (s *JoinedRowStore) write(ctx context.Context, target string, rows []map[string]any, replace bool) (int, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM joined_rows WHERE target = ?`, target); err != nil {
			return 0, fmt.Errorf("clear rows: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO joined_rows (target, data_json) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, target, string(data)); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// ListRows returns rows in insertion order. Integers come back as int64.
func (s *JoinedRowStore) ListRows(ctx context.Context, target string, offset, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT data_json FROM joined_rows WHERE target = ? ORDER BY id LIMIT ? OFFSET ?`,
		target, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *JoinedRowStore) CountRows(ctx context.Context, target string) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM joined_rows WHERE target = ?`, target).Scan(&n)
	return n, err
}

// DeleteRows removes everything stored under target.
func (s *JoinedRowStore) DeleteRows(ctx context.Context, target string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM joined_rows WHERE target = ?`, target)
	return err
}

func decodeRow(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	for k, v := range row {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			row[k] = i
		} else if f, err := n.Float64(); err == nil {
			row[k] = f
		}
	}
	return row, nil
}
