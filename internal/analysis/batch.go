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

const maxBatchSize = 50

// StartBatch fans one request out into N independent jobs, one per contract.
// The ownership pre-check and the inserts are both all-or-nothing: a single
// foreign contract denies the batch, and the inserts run in one transaction.
func (s *Service) StartBatch(ctx context.Context, userID, orgID string, contractIDs []string, analysisType string) ([]JobStub, error) {
	if len(contractIDs) == 0 {
		return nil, &ValidationError{Field: "contractIds", Message: "required"}
	}
	if len(contractIDs) > maxBatchSize {
		return nil, &ValidationError{Field: "contractIds", Message: "too many contracts in one batch"}
	}
	if !ValidAnalysisType(analysisType) {
		return nil, &ValidationError{Field: "analysisType", Message: "must be one of comprehensive, risk-assessment, clause-extraction, basic"}
	}
	if hasDuplicates(contractIDs) {
		return nil, &ValidationError{Field: "contractIds", Message: "duplicate contract ids"}
	}

	loaded := make([]contracts.Contract, 0, len(contractIDs))
	for _, id := range contractIDs {
		contract, err := s.Contracts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		if !contractAccessible(contract, userID, orgID) {
			return nil, ErrForbidden
		}
		loaded = append(loaded, contract)
	}

	if s.Usage != nil {
		ok, _, err := s.Usage.CanConsume(ctx, userID, len(contractIDs))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, usage.ErrLimitReached
		}
	}

	for _, id := range contractIDs {
		if existing, err := s.Repo.FindActive(ctx, id, analysisType); err == nil {
			return nil, &ConflictError{JobID: existing.ID}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	batchStartedAt := now.Format(time.RFC3339)
	jobs := make([]Job, 0, len(loaded))
	for _, contract := range loaded {
		job := Job{
			ID:           uuid.NewString(),
			ContractID:   contract.ID,
			OwnerUserID:  userID,
			AnalysisType: analysisType,
			Priority:     PriorityNormal,
			Status:       StatusPending,
			MaxRetries:   s.maxRetries(),
			CreatedAt:    now,
			CustomParameters: map[string]any{
				"batchJob":       true,
				"batchStartedAt": batchStartedAt,
			},
		}
		if contract.OrganizationID != "" {
			job.OrganizationID = contract.OrganizationID
		}
		jobs = append(jobs, job)
	}

	if err := s.Repo.CreateBatch(ctx, jobs); err != nil {
		if errors.Is(err, ErrDuplicateActive) {
			return nil, s.batchConflict(ctx, contractIDs, analysisType)
		}
		return nil, err
	}

	if s.Usage != nil {
		if _, err := s.Usage.Consume(ctx, userID, len(jobs)); err != nil {
			telemetry.Error("analysis.usage_consume_failed", map[string]any{
				"batch_size": len(jobs),
				"error":      err.Error(),
			})
		}
	}

	if s.Activity != nil {
		_ = s.Activity.Record(ctx, userID, "batch_analysis_started", map[string]any{
			"contractCount":  len(jobs),
			"analysisType":   analysisType,
			"batchStartedAt": batchStartedAt,
		})
	}

	stubs := make([]JobStub, 0, len(jobs))
	for _, job := range jobs {
		_ = s.Repo.AppendLog(ctx, job.ID, "info", "queued (batch)")
		metrics.JobsEnqueued.WithLabelValues(analysisType, job.Priority).Inc()
		stubs = append(stubs, JobStub{
			ID:           job.ID,
			ContractID:   job.ContractID,
			Status:       job.Status,
			AnalysisType: job.AnalysisType,
		})
	}

	telemetry.Info("analysis.batch_enqueued", map[string]any{
		"user_id":       userID,
		"count":         len(stubs),
		"analysis_type": analysisType,
	})
	return stubs, nil
}

// GetBatchStatus returns the caller's recent batch jobs plus a status
// histogram over them.
func (s *Service) GetBatchStatus(ctx context.Context, userID, orgID string) ([]Job, map[string]int, error) {
	jobs, err := s.Repo.ListRecentBatch(ctx, userID, orgID, 50)
	if err != nil {
		return nil, nil, err
	}
	histogram := map[string]int{}
	for _, job := range jobs {
		histogram[job.Status]++
	}
	return jobs, histogram, nil
}

// batchConflict re-finds the active pair that tripped the unique index so
// the 409 can reference the existing job.
func (s *Service) batchConflict(ctx context.Context, contractIDs []string, analysisType string) error {
	for _, id := range contractIDs {
		if existing, err := s.Repo.FindActive(ctx, id, analysisType); err == nil {
			return &ConflictError{JobID: existing.ID}
		}
	}
	return &ConflictError{}
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
