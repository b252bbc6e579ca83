package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"jsonjoin/internal/join"
)

// ── JoinJob ────────────────────────────────────────────────
// Orchestrates: left.Read ∥ right.Read → join → output transforms →
// report → destination.Write.

// JoinSide configures one input of a join.
type JoinSide struct {
	SourceType string            `json:"sourceType"`
	SourceCfg  SourceConfig      `json:"sourceConfig"`
	KeyField   string            `json:"keyField"`
	Transforms []TransformConfig `json:"transforms,omitempty"`
}

// JoinJob holds the configuration for a stored, runnable join.
type JoinJob struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Left             JoinSide          `json:"left"`
	Right            JoinSide          `json:"right"`
	OutputTransforms []TransformConfig `json:"outputTransforms,omitempty"`
	Report           *Report           `json:"report,omitempty"`
	TargetType       string            `json:"targetType"` // "" | "table" | "json_file" | "amqp"
	Target           string            `json:"target"`
	SyncMode         SyncMode          `json:"syncMode"`
	TriggerType      string            `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig    string            `json:"triggerConfig"` // cron expression or watch paths
	Enabled          bool              `json:"enabled"`
	LastRunAt        time.Time         `json:"lastRunAt"`
	LastStatus       string            `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError        string            `json:"lastError"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Validate checks that both sides name a registered source and a key field.
func (j *JoinJob) Validate() error {
	for _, side := range []struct {
		name string
		s    JoinSide
	}{{"left", j.Left}, {"right", j.Right}} {
		if _, err := GetSource(side.s.SourceType); err != nil {
			return fmt.Errorf("%s side: %w", side.name, err)
		}
		if side.s.KeyField == "" {
			return fmt.Errorf("%s side: key field is required", side.name)
		}
	}
	switch j.TargetType {
	case "", TargetTable, TargetJSONFile, TargetAMQP:
	default:
		return fmt.Errorf("unknown target type: %q", j.TargetType)
	}
	return nil
}

// OutputTarget is the target handed to the destination. Table jobs
// without an explicit target store their rows under the job ID.
func (j *JoinJob) OutputTarget() string {
	if j.Target == "" && j.TargetType == TargetTable {
		return j.ID
	}
	return j.Target
}

// JoinResult is the outcome of running a join job.
type JoinResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	LeftRows    int           `json:"leftRows"`
	RightRows   int           `json:"rightRows"`
	RowsJoined  int           `json:"rowsJoined"`
	RowsWritten int           `json:"rowsWritten"`
	Totals      []Total       `json:"totals,omitempty"`
	Summary     string        `json:"summary,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Records     []Record      `json:"-"`
}

// JoinRunLog is a historical record of a join run.
type JoinRunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	LeftRows    int       `json:"leftRows"`
	RightRows   int       `json:"rightRows"`
	RowsJoined  int       `json:"rowsJoined"`
	RowsWritten int       `json:"rowsWritten"`
	Summary     string    `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs join jobs using the registered sources.
// Destinations maps a JoinJob.TargetType to its writer.
type Engine struct {
	Destinations map[string]Destination
}

// RunJoin executes a join job end-to-end. The returned result is never nil.
func (e *Engine) RunJoin(ctx context.Context, job *JoinJob) (*JoinResult, error) {
	start := time.Now()
	result := &JoinResult{JobID: job.ID}
	fail := func(stage string, err error) (*JoinResult, error) {
		result.Status = "error"
		result.Error = fmt.Sprintf("%s: %s", stage, err)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%s: %w", stage, err)
	}

	// 1. Resolve the destination up front so a bad target fails before any reads.
	var dest Destination
	if job.TargetType != "" {
		d, ok := e.Destinations[job.TargetType]
		if !ok || d == nil {
			return fail("write", fmt.Errorf("destination %q not configured", job.TargetType))
		}
		dest = d
	}

	// 2. Read both sides concurrently.
	var left, right []Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, n, err := readSide(gctx, job.Left)
		result.LeftRows = n
		left = recs
		if err != nil {
			return fmt.Errorf("left: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		recs, n, err := readSide(gctx, job.Right)
		result.RightRows = n
		right = recs
		if err != nil {
			return fmt.Errorf("right: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail("read", err)
	}

	// 3. Join.
	rows, err := Join(left, right, job.Left.KeyField, job.Right.KeyField)
	if err != nil {
		return fail("join", err)
	}

	// 4. Output transforms.
	if ts := BuildTransformers(job.OutputTransforms); len(ts) > 0 {
		kept := rows[:0]
		for _, r := range rows {
			if out, keep := ApplyTransformers(r, ts); keep {
				kept = append(kept, out)
			}
		}
		rows = kept
	}
	result.RowsJoined = len(rows)
	result.Records = rows

	// 5. Report.
	if job.Report.Enabled() {
		result.Totals = ComputeTotals(rows, *job.Report)
		result.Summary = Summary(len(rows), result.Totals)
	}

	// 6. Write.
	if dest != nil {
		written, err := dest.Write(ctx, job.OutputTarget(), SchemaFromRecords(rows), rows, job.SyncMode)
		result.RowsWritten = written
		if err != nil {
			return fail("write", err)
		}
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	return result, nil
}

// Join runs the sort-merge join over pipeline records.
func Join(left, right []Record, leftKey, rightKey string) ([]Record, error) {
	joined, err := join.Join(toJoinRecords(left), toJoinRecords(right), leftKey, rightKey)
	if err != nil {
		return nil, err
	}
	return fromJoinRecords(joined), nil
}

func readSide(ctx context.Context, side JoinSide) ([]Record, int, error) {
	src, err := GetSource(side.SourceType)
	if err != nil {
		return nil, 0, err
	}
	return collect(ctx, src, side.SourceCfg, BuildTransformers(side.Transforms))
}

// Preview executes only the source read phase and returns up to maxRows records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(readCtx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			cancel()
			break
		}
	}

	// Drain remaining and check for errors.
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return records, schema, err
	}
	return records, schema, nil
}

// SchemaFromRecords builds a schema from the fields present in records,
// sorted by name. A field's type comes from its first non-nil value.
func SchemaFromRecords(records []Record) *Schema {
	types := make(map[string]string)
	for _, r := range records {
		for k, v := range r.Data {
			if t, ok := types[k]; !ok || (t == "" && v != nil) {
				types[k] = inferType(v)
			}
		}
	}

	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)

	fields := make([]Field, len(names))
	for i, n := range names {
		t := types[n]
		if t == "" {
			t = "text"
		}
		fields[i] = Field{Name: n, Type: t}
	}
	return &Schema{Fields: fields}
}

// inferType maps a normalized value to a schema type; nil yields "".
func inferType(v any) string {
	val := join.FromAny(v)
	if val.IsNull() {
		return ""
	}
	switch val.Kind() {
	case join.KindInt, join.KindFloat:
		return "number"
	case join.KindBool:
		return "boolean"
	default:
		return "text"
	}
}
