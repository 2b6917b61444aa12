package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"contracts-backend/internal/contracts"
	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/telemetry"
	"contracts-backend/internal/usage"
)

// Service is the queue facade: the single entry point for job lifecycle
// operations, isolating HTTP handlers from persistence details.
type Service struct {
	Repo       Repo
	Contracts  contracts.Repo
	Usage      *usage.Service
	Activity   ActivityRecorder
	MaxRetries int
}

// ActivityRecorder appends audit rows for user-visible actions.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, action string, metadata map[string]any) error
}

// AddJob validates and enqueues one analysis job. Returns *ConflictError
// carrying the existing job id when a non-terminal job for the same
// (contract, analysis type) pair exists.
func (s *Service) AddJob(ctx context.Context, contractID, analysisType, userID, orgID, priority string) (Job, error) {
	if contractID == "" {
		return Job{}, &ValidationError{Field: "contractId", Message: "required"}
	}
	if !ValidAnalysisType(analysisType) {
		return Job{}, &ValidationError{Field: "analysisType", Message: "must be one of comprehensive, risk-assessment, clause-extraction, basic"}
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !ValidPriority(priority) {
		return Job{}, &ValidationError{Field: "priority", Message: "must be one of low, normal, high"}
	}

	contract, err := s.Contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return Job{}, ErrForbidden
		}
		return Job{}, err
	}
	if !contractAccessible(contract, userID, orgID) {
		return Job{}, ErrForbidden
	}

	if s.Usage != nil {
		ok, _, err := s.Usage.CanConsume(ctx, userID, 1)
		if err != nil {
			return Job{}, err
		}
		if !ok {
			return Job{}, usage.ErrLimitReached
		}
	}

	if existing, err := s.Repo.FindActive(ctx, contractID, analysisType); err == nil {
		return Job{}, &ConflictError{JobID: existing.ID}
	} else if !errors.Is(err, ErrNotFound) {
		return Job{}, err
	}

	job := Job{
		ID:           uuid.NewString(),
		ContractID:   contractID,
		OwnerUserID:  userID,
		AnalysisType: analysisType,
		Priority:     priority,
		Status:       StatusPending,
		RetryCount:   0,
		MaxRetries:   s.maxRetries(),
		CreatedAt:    time.Now().UTC(),
	}
	if contract.OrganizationID != "" {
		job.OrganizationID = contract.OrganizationID
	}

	if err := s.Repo.Create(ctx, job); err != nil {
		// Two concurrent requests can both pass the pre-check; the partial
		// unique index catches the loser and we surface the winner's id.
		if errors.Is(err, ErrDuplicateActive) {
			if existing, ferr := s.Repo.FindActive(ctx, contractID, analysisType); ferr == nil {
				return Job{}, &ConflictError{JobID: existing.ID}
			}
			return Job{}, &ConflictError{}
		}
		return Job{}, err
	}

	if s.Usage != nil {
		if _, err := s.Usage.Consume(ctx, userID, 1); err != nil {
			telemetry.Error("analysis.usage_consume_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
		}
	}

	_ = s.Repo.AppendLog(ctx, job.ID, "info", "queued")
	metrics.JobsEnqueued.WithLabelValues(analysisType, priority).Inc()

	telemetry.Info("analysis.enqueued", map[string]any{
		"job_id":        job.ID,
		"contract_id":   contractID,
		"analysis_type": analysisType,
		"priority":      priority,
	})
	return job, nil
}

// Get returns a job visible to the caller; results ride along only once
// the job is COMPLETED.
func (s *Service) Get(ctx context.Context, jobID, userID, orgID string) (Job, error) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.OwnerUserID != userID && (orgID == "" || job.OrganizationID != orgID) {
		// 404 rather than 403: do not leak other tenants' job ids.
		return Job{}, ErrNotFound
	}
	if job.Status != StatusCompleted {
		job.Results = nil
	}
	return job, nil
}

// GetQueueStatus returns the aggregate health snapshot.
func (s *Service) GetQueueStatus(ctx context.Context) (QueueStatus, error) {
	counts, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	enabled, err := s.Repo.QueueEnabled(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	status := QueueStatus{Enabled: enabled, Counts: counts}
	if age, ok, err := s.Repo.OldestPendingAge(ctx); err != nil {
		return QueueStatus{}, err
	} else if ok {
		secs := age.Seconds()
		status.OldestPendingAgeSeconds = &secs
	}
	return status, nil
}

// GetUserJobs returns the caller's jobs, newest first.
func (s *Service) GetUserJobs(ctx context.Context, userID, orgID string, limit, offset int) ([]Job, error) {
	return s.Repo.ListByOwner(ctx, userID, orgID, limit, offset)
}

// GetContractJobs returns a contract's jobs visible to the caller.
func (s *Service) GetContractJobs(ctx context.Context, contractID, userID, orgID string) ([]Job, error) {
	return s.Repo.ListByContract(ctx, contractID, userID, orgID)
}

// CleanupOldJobs deletes terminal jobs older than maxAgeDays. Idempotent:
// a second run on a clean store removes nothing.
func (s *Service) CleanupOldJobs(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultCleanupAgeDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	removed, err := s.Repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.JobsCleaned.Add(float64(removed))
		telemetry.Info("analysis.cleanup", map[string]any{
			"removed":      removed,
			"max_age_days": maxAgeDays,
		})
	}
	return removed, nil
}

// Start resumes claiming. The flag is persisted so every worker instance
// observes it, not just the one that handled the request.
func (s *Service) Start(ctx context.Context, by string) error {
	if err := s.Repo.SetQueueEnabled(ctx, true, by); err != nil {
		return err
	}
	telemetry.Info("analysis.queue_started", map[string]any{"by": by})
	return nil
}

// Stop pauses claiming without touching already-enqueued rows.
func (s *Service) Stop(ctx context.Context, by string) error {
	if err := s.Repo.SetQueueEnabled(ctx, false, by); err != nil {
		return err
	}
	telemetry.Info("analysis.queue_stopped", map[string]any{"by": by})
	return nil
}

func (s *Service) maxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return DefaultMaxRetries
}

func contractAccessible(c contracts.Contract, userID, orgID string) bool {
	if c.OwnerUserID == userID {
		return true
	}
	return orgID != "" && c.OrganizationID == orgID
}
