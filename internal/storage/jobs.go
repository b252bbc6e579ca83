package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"jsonjoin/internal/etl"

	"github.com/google/uuid"
)

// JobStore persists join jobs and their run logs.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// ── JoinJob CRUD ───────────────────────────────────────────

const jobColumns = `id, name, left_json, right_json, output_transforms, report_json,
	target_type, target, sync_mode, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

// jobJSON holds the JSON-encoded columns of a job row.
type jobJSON struct {
	left, right, transforms, report string
}

func encodeJob(job *etl.JoinJob) (jobJSON, error) {
	var enc jobJSON
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&enc.left, job.Left},
		{&enc.right, job.Right},
		{&enc.transforms, job.OutputTransforms},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return enc, fmt.Errorf("encode job: %w", err)
		}
		*f.dst = string(b)
	}
	if job.Report != nil {
		b, err := json.Marshal(job.Report)
		if err != nil {
			return enc, fmt.Errorf("encode report: %w", err)
		}
		enc.report = string(b)
	}
	return enc, nil
}

func scanJob(row rowScanner) (*etl.JoinJob, error) {
	var (
		job     etl.JoinJob
		enc     jobJSON
		lastRun sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.Name, &enc.left, &enc.right, &enc.transforms, &enc.report,
		&job.TargetType, &job.Target, &job.SyncMode, &job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&lastRun, &job.LastStatus, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		job.LastRunAt = lastRun.Time
	}

	if err := decodeSide(enc.left, &job.Left); err != nil {
		return nil, fmt.Errorf("job %s left: %w", job.ID, err)
	}
	if err := decodeSide(enc.right, &job.Right); err != nil {
		return nil, fmt.Errorf("job %s right: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(enc.transforms), &job.OutputTransforms); err != nil {
		return nil, fmt.Errorf("job %s transforms: %w", job.ID, err)
	}
	if enc.report != "" {
		job.Report = &etl.Report{}
		if err := json.Unmarshal([]byte(enc.report), job.Report); err != nil {
			return nil, fmt.Errorf("job %s report: %w", job.ID, err)
		}
	}
	return &job, nil
}

// decodeSide keeps integer config values (fetch sizes, inline record keys)
// as json.Number so they survive a round trip.
func decodeSide(s string, side *etl.JoinSide) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec.Decode(side)
}

func (s *JobStore) CreateJob(job *etl.JoinJob) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	enc, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO join_jobs (id, name, left_json, right_json, output_transforms, report_json,
		 target_type, target, sync_mode, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, enc.left, enc.right, enc.transforms, enc.report,
		job.TargetType, job.Target, job.SyncMode, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *JobStore) GetJob(id string) (*etl.JoinJob, error) {
	job, err := scanJob(s.db.conn.QueryRow(`SELECT `+jobColumns+` FROM join_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("join job %s: %w", id, ErrNotFound)
	}
	return job, err
}

func (s *JobStore) UpdateJob(job *etl.JoinJob) error {
	job.UpdatedAt = time.Now()
	enc, err := encodeJob(job)
	if err != nil {
		return err
	}
	res, err := s.db.conn.Exec(
		`UPDATE join_jobs SET name=?, left_json=?, right_json=?, output_transforms=?, report_json=?,
		 target_type=?, target=?, sync_mode=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=?
		 WHERE id=?`,
		job.Name, enc.left, enc.right, enc.transforms, enc.report,
		job.TargetType, job.Target, job.SyncMode, job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "join job", job.ID)
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	now := time.Now()
	_, err := s.db.conn.Exec(
		`UPDATE join_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

// DeleteJob removes a job together with its run logs.
func (s *JobStore) DeleteJob(id string) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM join_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM join_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, "join job", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *JobStore) ListJobs() ([]etl.JoinJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM join_jobs ORDER BY created_at ASC`)
}

// ListTriggeredJobs returns enabled jobs with a schedule or file_watch trigger.
func (s *JobStore) ListTriggeredJobs() ([]etl.JoinJob, error) {
	return s.queryJobs(`SELECT ` + jobColumns + ` FROM join_jobs
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

func (s *JobStore) queryJobs(query string) ([]etl.JoinJob, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []etl.JoinJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ── Run Logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(l *etl.JoinRunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO join_run_logs (id, job_id, started_at, finished_at, status,
		 left_rows, right_rows, rows_joined, rows_written, summary, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.JobID, l.StartedAt, l.FinishedAt, l.Status,
		l.LeftRows, l.RightRows, l.RowsJoined, l.RowsWritten, l.Summary, l.Error,
	)
	return err
}

// ListRunLogs returns the most recent runs of a job, newest first.
func (s *JobStore) ListRunLogs(jobID string, limit int) ([]etl.JoinRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status,
		 left_rows, right_rows, rows_joined, rows_written, summary, error
		 FROM join_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.JoinRunLog
	for rows.Next() {
		var l etl.JoinRunLog
		if err := rows.Scan(
			&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.LeftRows, &l.RightRows, &l.RowsJoined, &l.RowsWritten, &l.Summary, &l.Error,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
