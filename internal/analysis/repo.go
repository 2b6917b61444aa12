package analysis

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis jobs, their audit log,
// and the queue-control row.
type Repo interface {
	Create(ctx context.Context, job Job) error
	CreateBatch(ctx context.Context, jobs []Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	// FindActive returns the non-terminal job for the pair, or ErrNotFound.
	FindActive(ctx context.Context, contractID, analysisType string) (Job, error)
	ListByOwner(ctx context.Context, userID, orgID string, limit, offset int) ([]Job, error)
	ListByContract(ctx context.Context, contractID, userID, orgID string) ([]Job, error)
	ListRecentBatch(ctx context.Context, userID, orgID string, limit int) ([]Job, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	OldestPendingAge(ctx context.Context) (time.Duration, bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// ClearStuck force-fails PENDING/PROCESSING jobs beyond the threshold
	// and returns the affected ids. Empty filters match everything.
	ClearStuck(ctx context.Context, threshold time.Duration, contractID, analysisType string) ([]string, error)

	// Claim atomically moves the best PENDING job to PROCESSING under a
	// lease. Returns ErrNoJobs when nothing is claimable.
	Claim(ctx context.Context, lease time.Duration) (Job, error)
	MarkCompleted(ctx context.Context, jobID string, done Completion) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
	Requeue(ctx context.Context, jobID string) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error

	QueueEnabled(ctx context.Context) (bool, error)
	SetQueueEnabled(ctx context.Context, enabled bool, updatedBy string) error

	AppendLog(ctx context.Context, jobID, level, message string) error
	RecentLogs(ctx context.Context, limit int) ([]JobLog, error)
}
