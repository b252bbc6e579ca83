package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"jsonjoin/internal/etl"
	"jsonjoin/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Join Service — stored join jobs, runs and triggers
// ─────────────────────────────────────────────────────────────

// ErrJobRunning is returned when a run is requested for a job in flight.
var ErrJobRunning = errors.New("job is already running")

const (
	runTimeout     = 5 * time.Minute
	previewTimeout = 30 * time.Second
	watchDebounce  = 500 * time.Millisecond
)

// JoinService manages join jobs, their runs, cron schedules and file
// watchers.
type JoinService struct {
	store       *storage.JobStore
	rows        *storage.JoinedRowStore
	engine      *etl.Engine
	emitter     EventEmitter
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewJoinService creates a JoinService with the table and json_file
// destinations. Others are added with SetDestination.
func NewJoinService(store *storage.JobStore, rows *storage.JoinedRowStore, emitter EventEmitter) *JoinService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &JoinService{
		store: store,
		rows:  rows,
		engine: &etl.Engine{Destinations: map[string]etl.Destination{
			etl.TargetTable:    &etl.TableWriter{Store: rows},
			etl.TargetJSONFile: &etl.JSONFileWriter{},
		}},
		emitter: emitter,
	}
}

// SetDestination registers the writer for a target type. Call before
// the first run.
func (s *JoinService) SetDestination(targetType string, d etl.Destination) {
	s.engine.Destinations[targetType] = d
}

// ── Job CRUD ───────────────────────────────────────────────

type CreateJoinJobInput struct {
	Name             string                `json:"name"`
	Left             etl.JoinSide          `json:"left"`
	Right            etl.JoinSide          `json:"right"`
	OutputTransforms []etl.TransformConfig `json:"outputTransforms"`
	Report           *etl.Report           `json:"report"`
	TargetType       string                `json:"targetType"`
	Target           string                `json:"target"`
	SyncMode         string                `json:"syncMode"`
	TriggerType      string                `json:"triggerType"`
	TriggerConfig    string                `json:"triggerConfig"`
	Enabled          bool                  `json:"enabled"`
}

func (in CreateJoinJobInput) apply(job *etl.JoinJob) {
	job.Name = in.Name
	job.Left = in.Left
	job.Right = in.Right
	job.OutputTransforms = in.OutputTransforms
	job.Report = in.Report
	job.TargetType = in.TargetType
	job.Target = in.Target
	job.SyncMode = etl.SyncMode(in.SyncMode)
	job.TriggerType = in.TriggerType
	job.TriggerConfig = in.TriggerConfig
	job.Enabled = in.Enabled
	if job.SyncMode == "" {
		job.SyncMode = etl.SyncReplace
	}
	if job.TriggerType == "" {
		job.TriggerType = "manual"
	}
}

func validateJob(job *etl.JoinJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	switch job.SyncMode {
	case etl.SyncReplace, etl.SyncAppend:
	default:
		return fmt.Errorf("unknown sync mode: %q", job.SyncMode)
	}
	switch job.TriggerType {
	case "manual":
	case "schedule":
		if _, err := cron.ParseStandard(job.TriggerConfig); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", job.TriggerConfig, err)
		}
	case "file_watch":
		if len(watchPaths(job)) == 0 {
			return fmt.Errorf("file_watch trigger needs paths or a file source")
		}
	default:
		return fmt.Errorf("unknown trigger type: %q", job.TriggerType)
	}
	return nil
}

func (s *JoinService) CreateJob(ctx context.Context, input CreateJoinJobInput) (*etl.JoinJob, error) {
	job := &etl.JoinJob{}
	input.apply(job)
	if err := validateJob(job); err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create join job: %w", err)
	}
	s.RestartWatchers(ctx)
	return job, nil
}

func (s *JoinService) GetJob(id string) (*etl.JoinJob, error) {
	return s.store.GetJob(id)
}

func (s *JoinService) ListJobs() ([]etl.JoinJob, error) {
	return s.store.ListJobs()
}

func (s *JoinService) UpdateJob(ctx context.Context, id string, input CreateJoinJobInput) (*etl.JoinJob, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	input.apply(job)
	if err := validateJob(job); err != nil {
		return nil, err
	}
	if err := s.store.UpdateJob(job); err != nil {
		return nil, err
	}
	s.RestartWatchers(ctx)
	return job, nil
}

// DeleteJob removes the job, its run logs and any rows it stored.
func (s *JoinService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.store.GetJob(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJob(id); err != nil {
		return err
	}
	if job.TargetType == etl.TargetTable && job.Target == "" {
		if err := s.rows.DeleteRows(ctx, job.OutputTarget()); err != nil {
			log.Printf("join service: delete rows for job %s: %v", id, err)
		}
	}
	s.RestartWatchers(ctx)
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a stored join synchronously, records a run log and
// emits join:completed or join:failed.
func (s *JoinService) RunJob(ctx context.Context, id string) (*etl.JoinResult, error) {
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobRunning)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateJobStatus(id, "running", ""); err != nil {
		log.Printf("join service: mark job %s running: %v", id, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine.RunJoin(runCtx, job)

	runLog := &etl.JoinRunLog{
		JobID:       id,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		LeftRows:    result.LeftRows,
		RightRows:   result.RightRows,
		RowsJoined:  result.RowsJoined,
		RowsWritten: result.RowsWritten,
		Summary:     result.Summary,
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		runLog.Error = errMsg
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		log.Printf("join service: run log for job %s: %v", id, err)
	}
	if err := s.store.UpdateJobStatus(id, result.Status, errMsg); err != nil {
		log.Printf("join service: update status for job %s: %v", id, err)
	}

	if runErr != nil {
		s.emitter.Emit(ctx, "join:failed", map[string]any{
			"jobId": id,
			"error": errMsg,
		})
		return result, runErr
	}
	s.emitter.Emit(ctx, "join:completed", map[string]any{
		"jobId":       id,
		"rowsJoined":  result.RowsJoined,
		"rowsWritten": result.RowsWritten,
		"summary":     result.Summary,
	})
	return result, nil
}

// ListRunLogs returns the most recent run logs for a job, newest first.
func (s *JoinService) ListRunLogs(jobID string, limit int) ([]etl.JoinRunLog, error) {
	return s.store.ListRunLogs(jobID, limit)
}

// ListRows pages through the rows a table job stored.
func (s *JoinService) ListRows(ctx context.Context, jobID string, offset, limit int) ([]map[string]any, int, error) {
	job, err := s.store.GetJob(jobID)
	if err != nil {
		return nil, 0, err
	}
	if job.TargetType != etl.TargetTable {
		return nil, 0, fmt.Errorf("job %s does not store rows (target type %q)", jobID, job.TargetType)
	}
	target := job.OutputTarget()
	total, err := s.rows.CountRows(ctx, target)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.rows.ListRows(ctx, target, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ── Inline join ────────────────────────────────────────────

// InlineJoinInput joins two record sets supplied directly. Left and Right
// are JSON array strings or already-decoded arrays.
type InlineJoinInput struct {
	Left             any                   `json:"left"`
	Right            any                   `json:"right"`
	LeftKey          string                `json:"leftKey"`
	RightKey         string                `json:"rightKey"`
	OutputTransforms []etl.TransformConfig `json:"outputTransforms"`
	Report           *etl.Report           `json:"report"`
}

// JoinInline runs an unsaved join over inline records. Nothing is stored.
func (s *JoinService) JoinInline(ctx context.Context, in InlineJoinInput) (*etl.JoinResult, error) {
	job := &etl.JoinJob{
		Name:             "inline",
		Left:             etl.JoinSide{SourceType: "inline", SourceCfg: etl.SourceConfig{"records": in.Left}, KeyField: in.LeftKey},
		Right:            etl.JoinSide{SourceType: "inline", SourceCfg: etl.SourceConfig{"records": in.Right}, KeyField: in.RightKey},
		OutputTransforms: in.OutputTransforms,
		Report:           in.Report,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	return s.engine.RunJoin(runCtx, job)
}

// ── Sources ────────────────────────────────────────────────

// ListSources returns the available source descriptors.
func (s *JoinService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

// PreviewSource samples up to maxRows records from a source config given
// as a JSON object.
func (s *JoinService) PreviewSource(ctx context.Context, sourceType, cfgJSON string, maxRows int) (*PreviewResult, error) {
	var cfg etl.SourceConfig
	if cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return nil, fmt.Errorf("parse source config: %w", err)
		}
	}
	if maxRows <= 0 {
		maxRows = 10
	}

	previewCtx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	records, schema, err := s.engine.Preview(previewCtx, sourceType, cfg, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// watchPaths returns the files a file_watch job reacts to: the
// comma-separated TriggerConfig, or else the files its sides read.
func watchPaths(job *etl.JoinJob) []string {
	var paths []string
	if job.TriggerConfig != "" {
		for _, p := range strings.Split(job.TriggerConfig, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return paths
	}
	for _, side := range []etl.JoinSide{job.Left, job.Right} {
		switch side.SourceType {
		case "json_file", "csv_file":
			if p := side.SourceCfg.String("filePath"); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// RestartWatchers tears down the current watcher/cron and rebuilds them
// from the enabled jobs. Triggered runs outlive ctx's cancellation.
func (s *JoinService) RestartWatchers(ctx context.Context) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()

	jobs, err := s.store.ListTriggeredJobs()
	if err != nil {
		log.Printf("join watcher: failed to list jobs: %v", err)
		return
	}
	runCtx := context.WithoutCancel(ctx)

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.TriggerType != "schedule" || j.TriggerConfig == "" {
			continue
		}
		jid := j.ID
		_, err := c.AddFunc(j.TriggerConfig, func() {
			log.Printf("join cron: running job %s", jid)
			if _, err := s.RunJob(runCtx, jid); err != nil {
				log.Printf("join cron: job %s failed: %v", jid, err)
			}
		})
		if err != nil {
			log.Printf("join cron: invalid expression %q for job %s: %v", j.TriggerConfig, jid, err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		log.Printf("join cron: scheduled %d job(s)", scheduled)
	}

	// ── File watchers ──
	pathToJobs := make(map[string][]string)
	for i := range jobs {
		j := &jobs[i]
		if j.TriggerType != "file_watch" {
			continue
		}
		for _, p := range watchPaths(j) {
			absPath, err := filepath.Abs(p)
			if err != nil {
				log.Printf("join watcher: bad path %q: %v", p, err)
				continue
			}
			pathToJobs[absPath] = append(pathToJobs[absPath], j.ID)
		}
	}
	if len(pathToJobs) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("join watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	// Watch parent directories: editors often replace files on save.
	watchedDirs := make(map[string]bool)
	for absPath := range pathToJobs {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("join watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				for _, jobID := range pathToJobs[absPath] {
					if t, exists := timers[jobID]; exists {
						t.Stop()
					}
					jid, changed := jobID, absPath
					timers[jobID] = time.AfterFunc(watchDebounce, func() {
						log.Printf("join watcher: file changed %q, running job %s", changed, jid)
						if _, err := s.RunJob(runCtx, jid); err != nil {
							log.Printf("join watcher: run failed for job %s: %v", jid, err)
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("join watcher: error: %v", err)
			}
		}
	}()

	log.Printf("join watcher: watching %d file(s)", len(pathToJobs))
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *JoinService) WaitRunning(ctx context.Context) {
	if ids := s.runningJobs.Running(); len(ids) > 0 {
		log.Printf("join service: waiting for %d running job(s): %s", len(ids), strings.Join(ids, ", "))
	}
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *JoinService) Stop() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()
}

func (s *JoinService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
