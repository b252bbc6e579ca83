package mcpserver

import (
	"context"
	"fmt"

	"jsonjoin/internal/config"
	"jsonjoin/internal/etl"
	"jsonjoin/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

const sideDescription = `JSON object describing one join input: {sourceType, sourceConfig, keyField, transforms}.
sourceType is one of json_file, csv_file, http, database, inline (use list_join_sources for their config fields).
Example: {"sourceType":"json_file","sourceConfig":{"filePath":"customers.json"},"keyField":"cid"}`

const transformsDescription = `Optional JSON array of transforms applied to every joined row. Each transform has {type, config}:
- filter: {field, op (eq|neq|gt|lt|contains), value}
- rename: {mapping: {oldName: newName}}
- select: {fields: ["col1","col2"]}
- type_cast: {field, castType (number|int|string|bool)}
- limit: {count}`

func (s *Server) registerJoinTools() {
	s.mcp.AddTool(mcp.NewTool("join_records",
		mcp.WithDescription("Inner-join two JSON arrays of objects on integer key fields and return the joined rows. Nothing is stored."),
		mcp.WithString("leftJSON", mcp.Description("Left records as a JSON array of objects"), mcp.Required()),
		mcp.WithString("rightJSON", mcp.Description("Right records as a JSON array of objects"), mcp.Required()),
		mcp.WithString("leftKey", mcp.Description("Integer key field on the left records"), mcp.Required()),
		mcp.WithString("rightKey", mcp.Description("Integer key field on the right records"), mcp.Required()),
		mcp.WithString("reportNames", mcp.Description("Comma-separated names to total (optional), e.g. Barry,Steve")),
		mcp.WithString("groupField", mcp.Description("Field matched against reportNames (default name)")),
		mcp.WithString("sumField", mcp.Description("Numeric field summed per name (default price)")),
		mcp.WithString("outputTransformsJSON", mcp.Description(transformsDescription)),
	), s.handleJoinRecords)

	s.mcp.AddTool(mcp.NewTool("list_join_sources",
		mcp.WithDescription("List available join source types with their configuration schemas"),
	), s.handleListJoinSources)

	s.mcp.AddTool(mcp.NewTool("preview_join_source",
		mcp.WithDescription("Preview records and schema from a join source without persisting anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Number of records to sample (default 10)")),
	), s.handlePreviewJoinSource)

	s.mcp.AddTool(mcp.NewTool("create_join_job",
		mcp.WithDescription("Store a join job: two inputs joined on integer keys, an optional totals report, and a destination."),
		mcp.WithString("name", mcp.Description("Job name"), mcp.Required()),
		mcp.WithString("leftJSON", mcp.Description(sideDescription), mcp.Required()),
		mcp.WithString("rightJSON", mcp.Description(sideDescription), mcp.Required()),
		mcp.WithString("outputTransformsJSON", mcp.Description(transformsDescription)),
		mcp.WithString("reportJSON", mcp.Description(`Optional totals report: {"groupField":"name","sumField":"price","names":["Barry","Steve"]}`)),
		mcp.WithString("targetType", mcp.Description("Destination: table, json_file or amqp (empty keeps no output)")),
		mcp.WithString("target", mcp.Description("Destination target: table name (defaults to the job ID), file path, or routing key")),
		mcp.WithString("syncMode", mcp.Description("replace (default) or append")),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule; comma-separated paths for file_watch (defaults to the input files)")),
	), s.handleCreateJoinJob)

	s.mcp.AddTool(mcp.NewTool("list_join_jobs",
		mcp.WithDescription("List stored join jobs with their last run status"),
	), s.handleListJoinJobs)

	s.mcp.AddTool(mcp.NewTool("run_join_job",
		mcp.WithDescription("Run a stored join job now. Replace-mode jobs overwrite their previous output."),
		mcp.WithString("jobId", mcp.Description("Join job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJoinJob)

	s.mcp.AddTool(mcp.NewTool("delete_join_job",
		mcp.WithDescription("Delete a join job, its run history and the rows it stored"),
		mcp.WithString("jobId", mcp.Description("Join job ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteJoinJob)

	s.mcp.AddTool(mcp.NewTool("list_join_runs",
		mcp.WithDescription("List recent runs of a join job, newest first"),
		mcp.WithString("jobId", mcp.Description("Join job ID"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
	), s.handleListJoinRuns)
}

// joinRecordsResult is the join_records response.
type joinRecordsResult struct {
	RowsJoined int              `json:"rowsJoined"`
	Summary    string           `json:"summary,omitempty"`
	Totals     []etl.Total      `json:"totals,omitempty"`
	Rows       []map[string]any `json:"rows"`
}

func (s *Server) handleJoinRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	leftJSON, err := jsonArg(args, "leftJSON")
	if err != nil {
		return nil, fmt.Errorf("leftJSON: %w", err)
	}
	rightJSON, err := jsonArg(args, "rightJSON")
	if err != nil {
		return nil, fmt.Errorf("rightJSON: %w", err)
	}
	leftKey := req.GetString("leftKey", "")
	rightKey := req.GetString("rightKey", "")
	if leftJSON == "" || rightJSON == "" || leftKey == "" || rightKey == "" {
		return nil, fmt.Errorf("leftJSON, rightJSON, leftKey and rightKey are required")
	}

	transforms, err := parseTransforms(args)
	if err != nil {
		return nil, err
	}

	input := service.InlineJoinInput{
		Left:             leftJSON,
		Right:            rightJSON,
		LeftKey:          leftKey,
		RightKey:         rightKey,
		OutputTransforms: transforms,
	}
	if names := config.SplitList(req.GetString("reportNames", "")); len(names) > 0 {
		input.Report = &etl.Report{
			GroupField: req.GetString("groupField", "name"),
			SumField:   req.GetString("sumField", "price"),
			Names:      names,
		}
	}

	res, err := s.joins.JoinInline(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("join records: %w", err)
	}

	rows := make([]map[string]any, len(res.Records))
	for i, r := range res.Records {
		rows[i] = r.Data
	}
	return jsonResult(joinRecordsResult{
		RowsJoined: res.RowsJoined,
		Summary:    res.Summary,
		Totals:     res.Totals,
		Rows:       rows,
	})
}

func (s *Server) handleListJoinSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.joins.ListSources())
}

func (s *Server) handlePreviewJoinSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sourceType := req.GetString("sourceType", "")
	cfgJSON, err := jsonArg(args, "sourceConfigJSON")
	if err != nil {
		return nil, fmt.Errorf("sourceConfigJSON: %w", err)
	}
	if sourceType == "" || cfgJSON == "" {
		return nil, fmt.Errorf("sourceType and sourceConfigJSON are required")
	}

	preview, err := s.joins.PreviewSource(ctx, sourceType, cfgJSON, int(getFloat(args, "maxRows", 10)))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleCreateJoinJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	input := service.CreateJoinJobInput{
		Name:          req.GetString("name", ""),
		TargetType:    req.GetString("targetType", ""),
		Target:        req.GetString("target", ""),
		SyncMode:      req.GetString("syncMode", ""),
		TriggerType:   req.GetString("triggerType", ""),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       true,
	}
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	for _, side := range []struct {
		key    string
		target *etl.JoinSide
	}{{"leftJSON", &input.Left}, {"rightJSON", &input.Right}} {
		raw, err := jsonArg(args, side.key)
		if err != nil || raw == "" {
			return nil, fmt.Errorf("%s is required", side.key)
		}
		if err := parseJSON(raw, side.target); err != nil {
			return nil, fmt.Errorf("parse %s: %w", side.key, err)
		}
	}

	transforms, err := parseTransforms(args)
	if err != nil {
		return nil, err
	}
	input.OutputTransforms = transforms

	reportStr, err := jsonArg(args, "reportJSON")
	if err != nil {
		return nil, fmt.Errorf("reportJSON: %w", err)
	}
	if reportStr != "" {
		input.Report = &etl.Report{}
		if err := parseJSON(reportStr, input.Report); err != nil {
			return nil, fmt.Errorf("parse reportJSON: %w", err)
		}
	}

	job, err := s.joins.CreateJob(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create join job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListJoinJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.joins.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list join jobs: %w", err)
	}
	return jsonResult(jobs)
}

func (s *Server) handleRunJoinJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	result, err := s.joins.RunJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("run join job: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleDeleteJoinJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	if err := s.joins.DeleteJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("delete join job: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted join job %s", jobID)), nil
}

func (s *Server) handleListJoinRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	jobID := req.GetString("jobId", "")
	if jobID == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	logs, err := s.joins.ListRunLogs(jobID, int(getFloat(args, "limit", 20)))
	if err != nil {
		return nil, fmt.Errorf("list join runs: %w", err)
	}
	return jsonResult(logs)
}

func parseTransforms(args map[string]any) ([]etl.TransformConfig, error) {
	raw, err := jsonArg(args, "outputTransformsJSON")
	if err != nil {
		return nil, fmt.Errorf("outputTransformsJSON: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var transforms []etl.TransformConfig
	if err := parseJSON(raw, &transforms); err != nil {
		return nil, fmt.Errorf("parse outputTransformsJSON: %w", err)
	}
	return transforms, nil
}
