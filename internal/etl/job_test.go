package etl_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonjoin/internal/etl"
	_ "jsonjoin/internal/etl/sources"
	"jsonjoin/internal/join"
)

const customersJSON = `[
	{"cid": 1, "name": "Barry"},
	{"cid": 2, "name": "Steve"},
	{"cid": 3, "name": "Nobody"}
]`

const ordersJSON = `[
	{"customer_id": 1, "price": 10},
	{"customer_id": 1, "price": 5},
	{"customer_id": 2, "price": 20},
	{"customer_id": 9, "price": 99}
]`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func customersOrdersJob(t *testing.T) *etl.JoinJob {
	dir := t.TempDir()
	return &etl.JoinJob{
		ID:   "job-1",
		Name: "customers x orders",
		Left: etl.JoinSide{
			SourceType: "json_file",
			SourceCfg:  etl.SourceConfig{"filePath": writeFile(t, dir, "customers.json", customersJSON)},
			KeyField:   "cid",
		},
		Right: etl.JoinSide{
			SourceType: "json_file",
			SourceCfg:  etl.SourceConfig{"filePath": writeFile(t, dir, "orders.json", ordersJSON)},
			KeyField:   "customer_id",
		},
		Report: &etl.Report{GroupField: "name", SumField: "price", Names: []string{"Barry", "Steve"}},
	}
}

// ─────────────────────────────────────────────────────────────
// Engine.RunJoin
// ─────────────────────────────────────────────────────────────

func TestRunJoin_CustomersOrders(t *testing.T) {
	job := customersOrdersJob(t)
	engine := &etl.Engine{}

	res, err := engine.RunJoin(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 3, res.LeftRows)
	assert.Equal(t, 4, res.RightRows)
	assert.Equal(t, 3, res.RowsJoined)
	assert.Equal(t, 0, res.RowsWritten)
	assert.Equal(t, "length is 3, total for Barry is $15, total for Steve is $20", res.Summary)

	require.Len(t, res.Records, 3)
	assert.Equal(t, int64(1), res.Records[0].Data["cid"])
	assert.Equal(t, int64(2), res.Records[2].Data["customer_id"])
}

func TestRunJoin_WritesJSONFile(t *testing.T) {
	job := customersOrdersJob(t)
	out := filepath.Join(t.TempDir(), "out", "joined.json")
	job.TargetType = etl.TargetJSONFile
	job.Target = out
	job.SyncMode = etl.SyncReplace

	engine := &etl.Engine{Destinations: map[string]etl.Destination{
		etl.TargetJSONFile: &etl.JSONFileWriter{},
	}}

	res, err := engine.RunJoin(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsWritten)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 3)

	// Append adds to the existing array.
	job.SyncMode = etl.SyncAppend
	_, err = engine.RunJoin(context.Background(), job)
	require.NoError(t, err)
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 6)
}

func TestRunJoin_SideAndOutputTransforms(t *testing.T) {
	job := customersOrdersJob(t)
	job.Right.Transforms = []etl.TransformConfig{
		{Type: "filter", Config: map[string]any{"field": "price", "op": "gt", "value": 6}},
	}
	job.OutputTransforms = []etl.TransformConfig{
		{Type: "select", Config: map[string]any{"fields": []any{"name", "price"}}},
	}

	res, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RightRows)
	require.Equal(t, 2, res.RowsJoined)
	assert.Equal(t, map[string]any{"name": "Barry", "price": int64(10)}, res.Records[0].Data)
	assert.Equal(t, "length is 2, total for Barry is $10, total for Steve is $20", res.Summary)
}

func TestRunJoin_KeyErrorFailsRun(t *testing.T) {
	job := customersOrdersJob(t)
	job.Left.KeyField = "missing"

	res, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, join.ErrKeyFieldMissing)
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, res.Error, "join:")
	assert.Empty(t, res.Records)
}

func TestRunJoin_FloatKeyIsMismatch(t *testing.T) {
	job := customersOrdersJob(t)
	dir := t.TempDir()
	job.Right.SourceCfg = etl.SourceConfig{
		"filePath": writeFile(t, dir, "orders.json", `[{"customer_id": 1.0, "price": 1}]`),
	}

	_, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	assert.ErrorIs(t, err, join.ErrKeyTypeMismatch)
}

func TestRunJoin_TypeCastMakesKeyJoinable(t *testing.T) {
	job := customersOrdersJob(t)
	dir := t.TempDir()
	job.Right.SourceCfg = etl.SourceConfig{
		"filePath": writeFile(t, dir, "orders.json", `[{"customer_id": "2", "price": 7}]`),
	}
	job.Right.Transforms = []etl.TransformConfig{
		{Type: "type_cast", Config: map[string]any{"field": "customer_id", "castType": "int"}},
	}

	res, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsJoined)
}

func TestRunJoin_ReadErrorFailsRun(t *testing.T) {
	job := customersOrdersJob(t)
	job.Left.SourceCfg = etl.SourceConfig{"filePath": filepath.Join(t.TempDir(), "nope.json")}

	res, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, err.Error(), "left")
}

func TestRunJoin_UnconfiguredDestination(t *testing.T) {
	job := customersOrdersJob(t)
	job.TargetType = etl.TargetAMQP

	_, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRunJoin_EmptySide(t *testing.T) {
	job := customersOrdersJob(t)
	job.Right.SourceCfg = etl.SourceConfig{"filePath": writeFile(t, t.TempDir(), "orders.json", `[]`)}

	res, err := (&etl.Engine{}).RunJoin(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowsJoined)
	assert.Equal(t, "length is 0, total for Barry is $0, total for Steve is $0", res.Summary)
}

// ─────────────────────────────────────────────────────────────
// Validation / Preview
// ─────────────────────────────────────────────────────────────

func TestJoinJob_Validate(t *testing.T) {
	job := customersOrdersJob(t)
	require.NoError(t, job.Validate())

	bad := *job
	bad.Left.SourceType = "ftp"
	assert.ErrorContains(t, bad.Validate(), "left side")

	bad = *job
	bad.Right.KeyField = ""
	assert.ErrorContains(t, bad.Validate(), "right side")

	bad = *job
	bad.TargetType = "s3"
	assert.ErrorContains(t, bad.Validate(), "unknown target type")
}

func TestEngine_Preview(t *testing.T) {
	job := customersOrdersJob(t)

	records, schema, err := (&etl.Engine{}).Preview(context.Background(), "json_file", job.Right.SourceCfg, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"customer_id", "price"}, schema.FieldNames())
	assert.True(t, schema.Has("price"))
}

func TestJoinJob_OutputTarget(t *testing.T) {
	job := &etl.JoinJob{ID: "job-1", TargetType: etl.TargetTable}
	assert.Equal(t, "job-1", job.OutputTarget())

	job.Target = "custom"
	assert.Equal(t, "custom", job.OutputTarget())

	job = &etl.JoinJob{ID: "job-1", TargetType: etl.TargetAMQP}
	assert.Empty(t, job.OutputTarget())
}

func TestSchemaFromRecords_Types(t *testing.T) {
	schema := etl.SchemaFromRecords([]etl.Record{
		{Data: map[string]any{"id": int64(1), "price": json.Number("2.5"), "vip": true, "note": nil}},
		{Data: map[string]any{"name": "Barry", "note": nil}},
	})

	types := map[string]string{}
	for _, f := range schema.Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, map[string]string{
		"id":    "number",
		"price": "number",
		"vip":   "boolean",
		"name":  "text",
		"note":  "text",
	}, types)
}
