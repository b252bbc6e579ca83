package sources

import (
	"context"
	"fmt"

	"jsonjoin/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads one side of a join from a stored database connection.
// Connector access goes through DBProvider, injected at startup.

// fetchSize is the number of rows pulled per cursor page.
const fetchSize = 500

// QueryPage mirrors dbclient.QueryPage to avoid circular imports.
type QueryPage struct {
	Columns []string
	Rows    [][]any
	HasMore bool
}

// SourceCursor continues a query opened by DBProvider. Each Read gets its
// own cursor, so both sides of a join may read the same connection.
type SourceCursor interface {
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)
	Close() error
}

// DBProvider abstracts how the source reaches a live connector.
type DBProvider interface {
	ExecuteSourceQuery(ctx context.Context, connID, query string, fetchSize int) (*QueryPage, SourceCursor, error)
}

var dbProvider DBProvider

// SetDBProvider is called at startup.
func SetDBProvider(p DBProvider) { dbProvider = p }

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "connectionId", Label: "Connection", Type: "string", Required: true, Help: "ID of a stored database connection"},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SQL SELECT, or a MongoDB JSON query {collection, filter, projection, sort, pipeline}"},
		},
	}
}

func resolveDBConfig(cfg etl.SourceConfig) (string, string, error) {
	if dbProvider == nil {
		return "", "", fmt.Errorf("database provider not initialized")
	}
	connID, query := cfg.String("connectionId"), cfg.String("query")
	if connID == "" || query == "" {
		return "", "", fmt.Errorf("connectionId and query are required")
	}
	return connID, query, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	connID, query, err := resolveDBConfig(cfg)
	if err != nil {
		return nil, err
	}

	page, cur, err := dbProvider.ExecuteSourceQuery(ctx, connID, query, 1)
	if err != nil {
		return nil, err
	}
	cur.Close()

	schema := &etl.Schema{Fields: make([]etl.Field, len(page.Columns))}
	for i, col := range page.Columns {
		typ := "text"
		if len(page.Rows) > 0 && i < len(page.Rows[0]) {
			switch page.Rows[0][i].(type) {
			case int64, float64:
				typ = "number"
			case bool:
				typ = "boolean"
			}
		}
		schema.Fields[i] = etl.Field{Name: col, Type: typ}
	}
	return schema, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		connID, query, err := resolveDBConfig(cfg)
		if err != nil {
			errCh <- err
			return
		}

		page, cur, err := dbProvider.ExecuteSourceQuery(ctx, connID, query, fetchSize)
		if err != nil {
			errCh <- fmt.Errorf("execute: %w", err)
			return
		}
		defer cur.Close()
		if !emitPage(ctx, out, page) {
			return
		}

		for page.HasMore {
			page, err = cur.FetchMore(ctx, fetchSize)
			if err != nil {
				errCh <- fmt.Errorf("fetch more: %w", err)
				return
			}
			if !emitPage(ctx, out, page) {
				return
			}
		}
	}()

	return out, errCh
}

func emitPage(ctx context.Context, out chan<- etl.Record, page *QueryPage) bool {
	for _, row := range page.Rows {
		data := make(map[string]any, len(page.Columns))
		for i, col := range page.Columns {
			if i < len(row) {
				data[col] = normalizeValue(row[i])
			}
		}
		select {
		case out <- etl.Record{Data: data}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
