package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

const jobColumns = `id, contract_id, owner_user_id, organization_id, analysis_type, priority, status,
       progress, retry_count, max_retries, lease_expires_at, created_at, started_at, completed_at,
       error_message, results, summary, confidence_score, tokens_used, cost_cents, custom_parameters`

const insertJobQuery = `
INSERT INTO analysis_jobs (
	id, contract_id, owner_user_id, organization_id, analysis_type, priority, status,
	progress, retry_count, max_retries, created_at, custom_parameters
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Create inserts a new PENDING job. A unique violation from the partial
// index on active (contract_id, analysis_type) pairs is reported as
// ErrDuplicateActive so the service can surface the existing job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	params, err := marshalJSONB(job.CustomParameters)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, insertJobQuery,
		job.ID,
		job.ContractID,
		job.OwnerUserID,
		nullableString(job.OrganizationID),
		job.AnalysisType,
		priorityRank(job.Priority),
		job.Status,
		job.Progress,
		job.RetryCount,
		job.MaxRetries,
		job.CreatedAt,
		params,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateActive
	}
	return err
}

// CreateBatch inserts all jobs in one transaction. Any failure, including a
// duplicate active pair, rolls back the whole batch.
func (r *PGRepo) CreateBatch(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, job := range jobs {
		params, err := marshalJSONB(job.CustomParameters)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertJobQuery,
			job.ID,
			job.ContractID,
			job.OwnerUserID,
			nullableString(job.OrganizationID),
			job.AnalysisType,
			priorityRank(job.Priority),
			job.Status,
			job.Progress,
			job.RetryCount,
			job.MaxRetries,
			job.CreatedAt,
			params,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateActive
			}
			return err
		}
	}
	return tx.Commit()
}

// GetByID returns a job by id.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE id = $1
LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// FindActive returns the PENDING/PROCESSING job for the pair, or ErrNotFound.
func (r *PGRepo) FindActive(ctx context.Context, contractID, analysisType string) (Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE contract_id = $1 AND analysis_type = $2 AND status IN ('PENDING', 'PROCESSING')
LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, contractID, analysisType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// ListByOwner lists jobs visible to the caller, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, userID, orgID string, limit, offset int) ([]Job, error) {
	limit, offset = clampPage(limit, offset)
	const query = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE owner_user_id = $1 OR (organization_id IS NOT NULL AND organization_id = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, nullableString(orgID), limit, offset)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListByContract lists a contract's jobs visible to the caller, newest first.
func (r *PGRepo) ListByContract(ctx context.Context, contractID, userID, orgID string) ([]Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE contract_id = $1
  AND (owner_user_id = $2 OR (organization_id IS NOT NULL AND organization_id = $3))
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, contractID, userID, nullableString(orgID))
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListRecentBatch lists the caller's batch-tagged jobs, newest first.
func (r *PGRepo) ListRecentBatch(ctx context.Context, userID, orgID string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const query = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE custom_parameters->>'batchJob' = 'true'
  AND (owner_user_id = $1 OR (organization_id IS NOT NULL AND organization_id = $2))
ORDER BY created_at DESC
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, nullableString(orgID), limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// CountByStatus returns job counts grouped by status.
func (r *PGRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	const query = `SELECT status, count(*) FROM analysis_jobs GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// OldestPendingAge returns how long the oldest PENDING job has been waiting.
func (r *PGRepo) OldestPendingAge(ctx context.Context) (time.Duration, bool, error) {
	const query = `SELECT min(created_at) FROM analysis_jobs WHERE status = 'PENDING'`
	var oldest sql.NullTime
	if err := r.DB.QueryRowContext(ctx, query).Scan(&oldest); err != nil {
		return 0, false, err
	}
	if !oldest.Valid {
		return 0, false, nil
	}
	return time.Since(oldest.Time), true, nil
}

// DeleteOlderThan removes terminal jobs created before cutoff.
func (r *PGRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
DELETE FROM analysis_jobs
WHERE status IN ('COMPLETED', 'FAILED') AND created_at < $1`
	res, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearStuck force-fails stuck jobs in one statement and returns their ids.
// A job is stuck when it sat unstarted past the threshold, or started but
// never reached a terminal status within the threshold.
func (r *PGRepo) ClearStuck(ctx context.Context, threshold time.Duration, contractID, analysisType string) ([]string, error) {
	const query = `
UPDATE analysis_jobs
SET status = 'FAILED',
    error_message = $1,
    completed_at = now(),
    lease_expires_at = NULL
WHERE status IN ('PENDING', 'PROCESSING')
  AND (
      (started_at IS NULL AND created_at < now() - make_interval(secs => $2))
      OR started_at < now() - make_interval(secs => $2)
  )
  AND ($3::text IS NULL OR contract_id = $3)
  AND ($4::text IS NULL OR analysis_type = $4)
RETURNING id`
	rows, err := r.DB.QueryContext(ctx, query,
		stuckErrorMessage,
		threshold.Seconds(),
		nullableString(contractID),
		nullableString(analysisType),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim leases the highest-priority oldest PENDING job. SKIP LOCKED keeps
// concurrent workers from blocking on (or double-claiming) the same row.
func (r *PGRepo) Claim(ctx context.Context, lease time.Duration) (Job, error) {
	const query = `
UPDATE analysis_jobs
SET status = 'PROCESSING',
    started_at = now(),
    lease_expires_at = now() + make_interval(secs => $1)
WHERE id = (
    SELECT id FROM analysis_jobs
    WHERE status = 'PENDING'
      AND (lease_expires_at IS NULL OR lease_expires_at < now())
    ORDER BY priority DESC, created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, lease.Seconds()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNoJobs
		}
		return Job{}, err
	}
	return job, nil
}

// MarkCompleted records the worker's output and closes the job.
func (r *PGRepo) MarkCompleted(ctx context.Context, jobID string, done Completion) error {
	const query = `
UPDATE analysis_jobs
SET status = 'COMPLETED',
    progress = 100,
    results = $2::jsonb,
    summary = $3,
    confidence_score = $4,
    tokens_used = $5,
    cost_cents = $6,
    completed_at = now(),
    lease_expires_at = NULL
WHERE id = $1 AND status = 'PROCESSING'`
	payload, err := marshalJSONB(done.Results)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, payload, done.Summary, done.ConfidenceScore, done.TokensUsed, done.CostCents)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed terminates the job with an error message.
func (r *PGRepo) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	const query = `
UPDATE analysis_jobs
SET status = 'FAILED',
    error_message = $2,
    completed_at = now(),
    lease_expires_at = NULL
WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`
	res, err := r.DB.ExecContext(ctx, query, jobID, errorMessage)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue returns a failed attempt to PENDING while the retry budget lasts.
func (r *PGRepo) Requeue(ctx context.Context, jobID string) error {
	const query = `
UPDATE analysis_jobs
SET status = 'PENDING',
    retry_count = retry_count + 1,
    progress = 0,
    started_at = NULL,
    lease_expires_at = NULL
WHERE id = $1 AND status = 'PROCESSING' AND retry_count < max_retries`
	res, err := r.DB.ExecContext(ctx, query, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress records worker progress for a PROCESSING job.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	const query = `
UPDATE analysis_jobs
SET progress = $2
WHERE id = $1 AND status = 'PROCESSING'`
	_, err := r.DB.ExecContext(ctx, query, jobID, progress)
	return err
}

// QueueEnabled reads the persisted queue-control flag. A missing row means
// the queue is enabled.
func (r *PGRepo) QueueEnabled(ctx context.Context) (bool, error) {
	const query = `SELECT enabled FROM queue_control LIMIT 1`
	var enabled bool
	err := r.DB.QueryRowContext(ctx, query).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// SetQueueEnabled flips the persisted queue-control flag.
func (r *PGRepo) SetQueueEnabled(ctx context.Context, enabled bool, updatedBy string) error {
	const query = `
UPDATE queue_control
SET enabled = $1,
    updated_at = now(),
    updated_by = $2`
	_, err := r.DB.ExecContext(ctx, query, enabled, updatedBy)
	return err
}

// AppendLog writes one audit line for a job.
func (r *PGRepo) AppendLog(ctx context.Context, jobID, level, message string) error {
	const query = `
INSERT INTO job_logs (job_id, level, message, created_at)
VALUES ($1, $2, $3, now())`
	_, err := r.DB.ExecContext(ctx, query, jobID, level, message)
	return err
}

// RecentLogs returns the newest audit lines across all jobs.
func (r *PGRepo) RecentLogs(ctx context.Context, limit int) ([]JobLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
SELECT id, job_id, level, message, created_at
FROM job_logs
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobLog
	for rows.Next() {
		var l JobLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var orgID sql.NullString
	var rank int
	var leaseExpiresAt sql.NullTime
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var errorMessage sql.NullString
	var results sql.NullString
	var summary sql.NullString
	var confidence sql.NullFloat64
	var tokensUsed sql.NullInt64
	var costCents sql.NullInt64
	var customParams sql.NullString

	err := row.Scan(
		&j.ID,
		&j.ContractID,
		&j.OwnerUserID,
		&orgID,
		&j.AnalysisType,
		&rank,
		&j.Status,
		&j.Progress,
		&j.RetryCount,
		&j.MaxRetries,
		&leaseExpiresAt,
		&j.CreatedAt,
		&startedAt,
		&completedAt,
		&errorMessage,
		&results,
		&summary,
		&confidence,
		&tokensUsed,
		&costCents,
		&customParams,
	)
	if err != nil {
		return Job{}, err
	}

	j.Priority = priorityName(rank)
	if orgID.Valid {
		j.OrganizationID = orgID.String
	}
	if leaseExpiresAt.Valid {
		j.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	if results.Valid {
		j.Results = map[string]any{}
		if err := json.Unmarshal([]byte(results.String), &j.Results); err != nil {
			j.Results = nil
		}
	}
	if summary.Valid {
		j.Summary = summary.String
	}
	if confidence.Valid {
		j.ConfidenceScore = &confidence.Float64
	}
	if tokensUsed.Valid {
		j.TokensUsed = int(tokensUsed.Int64)
	}
	if costCents.Valid {
		j.CostCents = int(costCents.Int64)
	}
	if customParams.Valid {
		j.CustomParameters = map[string]any{}
		if err := json.Unmarshal([]byte(customParams.String), &j.CustomParameters); err != nil {
			j.CustomParameters = nil
		}
	}
	return j, nil
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// clampPage fills in pagination defaults. Callers pass their own window
// sizes (the dashboard reads a few hundred jobs for its histogram), so no
// upper cap is applied here.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func marshalJSONB(value map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
