package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonjoin/internal/etl"
)

func drain(t *testing.T, src etl.Source, cfg etl.SourceConfig) ([]etl.Record, error) {
	t.Helper()
	recCh, errCh := src.Read(context.Background(), cfg)
	var out []etl.Record
	for r := range recCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func tempFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

// ─────────────────────────────────────────────────────────────
// Number normalization
// ─────────────────────────────────────────────────────────────

func TestParseRecords_KeepsIntegers(t *testing.T) {
	recs, err := ParseRecords([]byte(`[{"id": 1, "price": 2.5, "whole": 3.0, "big": 9007199254740993, "ok": true, "n": null, "tags": ["a"]}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	d := recs[0].Data
	assert.Equal(t, int64(1), d["id"])
	assert.Equal(t, 2.5, d["price"])
	assert.Equal(t, 3.0, d["whole"])
	assert.Equal(t, int64(9007199254740993), d["big"])
	assert.Equal(t, true, d["ok"])
	assert.Nil(t, d["n"])
	assert.Equal(t, `["a"]`, d["tags"])
}

func TestParseRecords_Shapes(t *testing.T) {
	recs, err := ParseRecords([]byte(`{"id": 7}`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(7), recs[0].Data["id"])

	recs, err = ParseRecords([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = ParseRecords([]byte(`[1, 2]`))
	assert.ErrorContains(t, err, "element 0 is not an object")

	_, err = ParseRecords([]byte(`"nope"`))
	assert.Error(t, err)
}

func TestNavigatePath(t *testing.T) {
	raw, err := decodeJSON([]byte(`{"data": {"items": [{"id": 1}]}}`))
	require.NoError(t, err)

	got, err := navigatePath(raw, "data.items")
	require.NoError(t, err)
	recs, err := toRecords(got)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = navigatePath(raw, "data.missing")
	assert.ErrorContains(t, err, "not found")
}

// ─────────────────────────────────────────────────────────────
// Sources
// ─────────────────────────────────────────────────────────────

func TestJSONFileSource_Read(t *testing.T) {
	path := tempFile(t, "c.json", `{"result": [{"cid": 1, "name": "Barry"}, {"cid": 2, "name": "Steve"}]}`)
	src, err := etl.GetSource("json_file")
	require.NoError(t, err)

	recs, err := drain(t, src, etl.SourceConfig{"filePath": path, "dataPath": "result"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[1].Data["cid"])
}

func TestJSONFileSource_MissingFile(t *testing.T) {
	src, _ := etl.GetSource("json_file")
	_, err := drain(t, src, etl.SourceConfig{"filePath": filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestCSVFileSource_InfersTypes(t *testing.T) {
	path := tempFile(t, "o.csv", "customer_id,price,paid,note\n1,10,yes,\n2,2.5,false,late\n")
	src, err := etl.GetSource("csv_file")
	require.NoError(t, err)

	recs, err := drain(t, src, etl.SourceConfig{"filePath": path})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"customer_id": int64(1), "price": int64(10), "paid": true, "note": nil}, recs[0].Data)
	assert.Equal(t, 2.5, recs[1].Data["price"])
	assert.Equal(t, "late", recs[1].Data["note"])

	schema, err := src.Discover(context.Background(), etl.SourceConfig{"filePath": path})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "price", "paid", "note"}, schema.FieldNames())
	assert.Equal(t, "number", schema.Fields[0].Type)
	assert.Equal(t, "boolean", schema.Fields[2].Type)
}

func TestCSVFileSource_NoHeaderAndDelimiter(t *testing.T) {
	path := tempFile(t, "o.csv", "1;a\n2;b\n")
	src, _ := etl.GetSource("csv_file")

	recs, err := drain(t, src, etl.SourceConfig{"filePath": path, "delimiter": ";", "hasHeader": "false"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[1].Data["col_1"])
	assert.Equal(t, "b", recs[1].Data["col_2"])
}

func TestHTTPSource_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders": [{"customer_id": 1, "price": 10}]}`))
	}))
	defer srv.Close()

	src, err := etl.GetSource("http")
	require.NoError(t, err)

	recs, err := drain(t, src, etl.SourceConfig{
		"url":      srv.URL,
		"headers":  `{"X-Token": "secret"}`,
		"dataPath": "orders",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].Data["customer_id"])

	_, err = drain(t, src, etl.SourceConfig{"url": srv.URL})
	assert.ErrorContains(t, err, "http 403")
}

func TestInlineSource_StringAndArray(t *testing.T) {
	src, err := etl.GetSource("inline")
	require.NoError(t, err)

	recs, err := drain(t, src, etl.SourceConfig{"records": `[{"k": 1}, {"k": 2}]`})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// Already-decoded arrays, as they arrive from MCP arguments.
	recs, err = drain(t, src, etl.SourceConfig{"records": []any{map[string]any{"k": float64(3)}}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].Data["k"])

	_, err = drain(t, src, etl.SourceConfig{})
	assert.ErrorContains(t, err, "records is required")
}

// ─────────────────────────────────────────────────────────────
// Database source
// ─────────────────────────────────────────────────────────────

type fakeProvider struct {
	pages  []*QueryPage
	calls  int
	closed bool
	err    error
}

func (f *fakeProvider) ExecuteSourceQuery(ctx context.Context, connID, query string, size int) (*QueryPage, SourceCursor, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.calls = 1
	return f.pages[0], f, nil
}

func (f *fakeProvider) FetchMore(ctx context.Context, size int) (*QueryPage, error) {
	p := f.pages[f.calls]
	f.calls++
	return p, nil
}

func (f *fakeProvider) Close() error { f.closed = true; return nil }

func TestDatabaseSource_Pages(t *testing.T) {
	prev := dbProvider
	defer SetDBProvider(prev)

	fake := &fakeProvider{pages: []*QueryPage{
		{Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), []byte("Barry")}}, HasMore: true},
		{Columns: []string{"id", "name"}, Rows: [][]any{{int32(2), "Steve"}}},
	}}
	SetDBProvider(fake)

	src, err := etl.GetSource("database")
	require.NoError(t, err)
	recs, err := drain(t, src, etl.SourceConfig{"connectionId": "c1", "query": "SELECT id, name FROM customers"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Barry", recs[0].Data["name"])
	assert.Equal(t, int64(2), recs[1].Data["id"])
	assert.True(t, fake.closed)
}

func TestDatabaseSource_Errors(t *testing.T) {
	prev := dbProvider
	defer SetDBProvider(prev)
	src, _ := etl.GetSource("database")

	SetDBProvider(nil)
	_, err := drain(t, src, etl.SourceConfig{"connectionId": "c1", "query": "q"})
	assert.ErrorContains(t, err, "not initialized")

	SetDBProvider(&fakeProvider{err: errors.New("boom")})
	_, err = drain(t, src, etl.SourceConfig{"connectionId": "c1", "query": "q"})
	assert.ErrorContains(t, err, "boom")

	_, err = drain(t, src, etl.SourceConfig{"query": "q"})
	assert.ErrorContains(t, err, "required")
}

func TestListSources_RegisteredTypes(t *testing.T) {
	var types []string
	for _, s := range etl.ListSources() {
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{"csv_file", "database", "http", "inline", "json_file"}, types)
}
