package app

import (
	"context"

	"jsonjoin/internal/config"
	"jsonjoin/internal/etl"
)

// RunOptions is a one-shot join of two JSON files.
type RunOptions struct {
	Join   config.JoinConfig
	Report config.ReportConfig
	Out    string // optional JSON file for the joined rows
}

// RunOptionsFrom seeds RunOptions from the loaded configuration.
func RunOptionsFrom(cfg *config.Config) RunOptions {
	return RunOptions{Join: cfg.Join, Report: cfg.Report}
}

// Job builds the unsaved join job for opts.
func (o RunOptions) Job() *etl.JoinJob {
	side := func(path, dataPath, key string) etl.JoinSide {
		cfg := etl.SourceConfig{"filePath": path}
		if dataPath != "" {
			cfg["dataPath"] = dataPath
		}
		return etl.JoinSide{SourceType: "json_file", SourceCfg: cfg, KeyField: key}
	}
	job := &etl.JoinJob{
		Name:  "run",
		Left:  side(o.Join.LeftFile, o.Join.LeftDataPath, o.Join.LeftKey),
		Right: side(o.Join.RightFile, o.Join.RightDataPath, o.Join.RightKey),
		Report: &etl.Report{
			GroupField: o.Report.GroupField,
			SumField:   o.Report.SumField,
			Names:      o.Report.Names,
		},
		SyncMode: etl.SyncReplace,
	}
	if o.Out != "" {
		job.TargetType = etl.TargetJSONFile
		job.Target = o.Out
	}
	return job
}

// RunFiles joins the two files without touching storage. The result's
// Summary is the line printed by `jsonjoin run`.
func RunFiles(ctx context.Context, opts RunOptions) (*etl.JoinResult, error) {
	job := opts.Job()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	engine := &etl.Engine{Destinations: map[string]etl.Destination{
		etl.TargetJSONFile: &etl.JSONFileWriter{},
	}}
	res, err := engine.RunJoin(ctx, job)
	if err == nil && res.Summary == "" {
		res.Summary = etl.Summary(res.RowsJoined, nil)
	}
	return res, err
}
