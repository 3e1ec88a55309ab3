package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/pkg/types"
)

// ProgressStore keeps job records in the crawl_progress table so they survive restarts.
type ProgressStore struct {
	s *Store
}

// Progress returns the job store view of s.
func (s *Store) Progress() *ProgressStore {
	return &ProgressStore{s: s}
}

type progressRow struct {
	JobID                  string         `db:"job_id"`
	Status                 string         `db:"status"`
	TotalPages             int            `db:"total_pages"`
	ProcessedPages         int            `db:"processed_pages"`
	CurrentPage            string         `db:"current_page"`
	Errors                 sql.NullString `db:"errors"`
	EstimatedTimeRemaining int            `db:"estimated_time_remaining"`
	GeneratedContent       sql.NullString `db:"generated_content"`
	Timestamp              int64          `db:"timestamp"`
}

const progressColumns = `job_id, status, total_pages, processed_pages, current_page, errors,
	estimated_time_remaining, generated_content, timestamp`

func encodeProgress(job *jobs.Job) (progressRow, error) {
	row := progressRow{
		JobID:                  job.JobID,
		Status:                 string(job.Status),
		TotalPages:             job.TotalPages,
		ProcessedPages:         job.ProcessedPages,
		CurrentPage:            job.CurrentPage,
		EstimatedTimeRemaining: job.EstimatedTimeRemaining,
		Timestamp:              job.Timestamp.UnixMilli(),
	}
	errs, err := json.Marshal(job.Errors)
	if err != nil {
		return row, fmt.Errorf("encode errors: %w", err)
	}
	row.Errors = sql.NullString{String: string(errs), Valid: true}
	if job.GeneratedContent != nil {
		content, err := json.Marshal(job.GeneratedContent)
		if err != nil {
			return row, fmt.Errorf("encode generated content: %w", err)
		}
		row.GeneratedContent = sql.NullString{String: string(content), Valid: true}
	}
	return row, nil
}

func (r progressRow) decode() (*jobs.Job, error) {
	job := &jobs.Job{
		JobID:                  r.JobID,
		Status:                 jobs.Status(r.Status),
		TotalPages:             r.TotalPages,
		ProcessedPages:         r.ProcessedPages,
		CurrentPage:            r.CurrentPage,
		Errors:                 []types.CrawlError{},
		EstimatedTimeRemaining: r.EstimatedTimeRemaining,
		Timestamp:              time.UnixMilli(r.Timestamp),
	}
	if r.Errors.Valid && r.Errors.String != "" {
		if err := json.Unmarshal([]byte(r.Errors.String), &job.Errors); err != nil {
			return nil, fmt.Errorf("decode errors of job %s: %w", r.JobID, err)
		}
		if job.Errors == nil {
			job.Errors = []types.CrawlError{}
		}
	}
	if r.GeneratedContent.Valid && r.GeneratedContent.String != "" {
		var content types.LlmsTxtContent
		if err := json.Unmarshal([]byte(r.GeneratedContent.String), &content); err != nil {
			return nil, fmt.Errorf("decode generated content of job %s: %w", r.JobID, err)
		}
		job.GeneratedContent = &content
	}
	return job, nil
}

func (p *ProgressStore) Create(ctx context.Context, job *jobs.Job) error {
	if job == nil || job.JobID == "" {
		return errors.New("create job: missing id")
	}
	row, err := encodeProgress(job)
	if err != nil {
		return err
	}
	query := `INSERT INTO crawl_progress (` + progressColumns + `) VALUES (:job_id, :status, :total_pages,
		:processed_pages, :current_page, :errors, :estimated_time_remaining, :generated_content, :timestamp)
		ON CONFLICT (job_id) DO NOTHING`
	var res sql.Result
	err = p.s.withSchemaRetry(ctx, func() error {
		var execErr error
		res, execErr = p.s.db.NamedExecContext(ctx, query, row)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create job %s: %w", job.JobID, jobs.ErrExists)
	}
	return nil
}

func (p *ProgressStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	var row progressRow
	query := p.s.db.Rebind(`SELECT ` + progressColumns + ` FROM crawl_progress WHERE job_id = ?`)
	err := p.s.withSchemaRetry(ctx, func() error {
		return p.s.db.GetContext(ctx, &row, query, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return row.decode()
}

// Update reads and rewrites the row inside one transaction; postgres locks it with FOR UPDATE.
func (p *ProgressStore) Update(ctx context.Context, id string, upd jobs.Update) (*jobs.Job, error) {
	var result *jobs.Job
	err := p.s.withSchemaRetry(ctx, func() error {
		job, err := p.updateTx(ctx, id, upd)
		result = job
		return err
	})
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return result, nil
}

func (p *ProgressStore) updateTx(ctx context.Context, id string, upd jobs.Update) (job *jobs.Job, err error) {
	tx, err := p.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	selectQuery := `SELECT ` + progressColumns + ` FROM crawl_progress WHERE job_id = ?`
	if p.s.db.DriverName() == driverPostgres {
		selectQuery += ` FOR UPDATE`
	}
	var row progressRow
	if err = tx.GetContext(ctx, &row, tx.Rebind(selectQuery), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = jobs.ErrNotFound
		}
		return nil, err
	}
	if job, err = row.decode(); err != nil {
		return nil, err
	}
	if err = upd.Apply(job, p.s.now()); err != nil {
		return nil, err
	}
	if err = writeProgress(ctx, tx, job); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}

func writeProgress(ctx context.Context, tx *sqlx.Tx, job *jobs.Job) error {
	row, err := encodeProgress(job)
	if err != nil {
		return err
	}
	_, err = tx.NamedExecContext(ctx, `UPDATE crawl_progress SET status = :status, total_pages = :total_pages,
		processed_pages = :processed_pages, current_page = :current_page, errors = :errors,
		estimated_time_remaining = :estimated_time_remaining, generated_content = :generated_content,
		timestamp = :timestamp WHERE job_id = :job_id`, row)
	return err
}

func (p *ProgressStore) Delete(ctx context.Context, id string) error {
	query := p.s.db.Rebind(`DELETE FROM crawl_progress WHERE job_id = ?`)
	if _, err := p.s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (p *ProgressStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := p.s.db.Rebind(`DELETE FROM crawl_progress WHERE timestamp < ?`)
	res, err := p.s.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return int(n), nil
}

var _ jobs.Store = (*ProgressStore)(nil)
