package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"contracts-backend/internal/activity"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/usage"
)

func seedContract(t *testing.T, repo *contracts.MemoryRepo, id, ownerID, orgID string) {
	t.Helper()
	err := repo.Create(context.Background(), contracts.Contract{
		ID:             id,
		OwnerUserID:    ownerID,
		OrganizationID: orgID,
		Title:          "msa " + id,
		FileName:       id + ".pdf",
		Status:         contracts.StatusUploaded,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed contract: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *MemoryRepo, *contracts.MemoryRepo, *activity.MemoryRepo) {
	t.Helper()
	jobs := NewMemoryRepo()
	contractsRepo := contracts.NewMemoryRepo()
	activityRepo := activity.NewMemoryRepo()
	svc := &Service{
		Repo:      jobs,
		Contracts: contractsRepo,
		Activity:  &activity.Service{Repo: activityRepo},
	}
	return svc, jobs, contractsRepo, activityRepo
}

func TestAddJobCreatesPendingJob(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	job, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", job.Status)
	}
	if job.RetryCount != 0 {
		t.Fatalf("expected retryCount 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected maxRetries %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
	if job.Priority != PriorityNormal {
		t.Fatalf("expected default priority normal, got %s", job.Priority)
	}

	got, err := svc.Get(context.Background(), job.ID, "user-1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContractID != "c-1" || got.AnalysisType != TypeBasic {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestAddJobRejectsUnknownEnumValues(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	var vErr *ValidationError
	if _, err := svc.AddJob(context.Background(), "c-1", "sentiment", "user-1", "", ""); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for analysisType, got %v", err)
	}
	if _, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "urgent"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for priority, got %v", err)
	}
}

func TestAddJobForeignContract(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "owner", "")

	if _, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "intruder", "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.AddJob(context.Background(), "missing", TypeBasic, "owner", "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for missing contract, got %v", err)
	}
}

func TestAddJobOrgMemberCanQueue(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "owner", "org-1")

	job, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "teammate", "org-1", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.OrganizationID != "org-1" {
		t.Fatalf("expected org scope carried onto job, got %q", job.OrganizationID)
	}
}

func TestAddJobDuplicateReturnsConflictWithExistingID(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	first, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	_, err = svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if cErr.JobID != first.ID {
		t.Fatalf("expected conflict to reference %s, got %s", first.ID, cErr.JobID)
	}

	// A different analysis type for the same contract is not a conflict.
	if _, err := svc.AddJob(context.Background(), "c-1", TypeRiskAssessment, "user-1", "", ""); err != nil {
		t.Fatalf("AddJob different type: %v", err)
	}
}

func TestAddJobAllowedAfterTerminal(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	first, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := jobs.MarkFailed(context.Background(), first.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if _, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", ""); err != nil {
		t.Fatalf("expected re-queue after terminal to succeed, got %v", err)
	}
}

func TestAddJobEnforcesUsageLimit(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	svc.Usage = usage.NewService()

	limit := usage.PlanLimit(usage.PlanFree)
	for i := 0; i < limit; i++ {
		id := fmt.Sprintf("c-%d", i)
		seedContract(t, contractsRepo, id, "user-1", "")
		if _, err := svc.AddJob(context.Background(), id, TypeBasic, "user-1", "", ""); err != nil {
			t.Fatalf("AddJob %d: %v", i, err)
		}
	}

	seedContract(t, contractsRepo, "c-over", "user-1", "")
	if _, err := svc.AddJob(context.Background(), "c-over", TypeBasic, "user-1", "", ""); !errors.Is(err, usage.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestGetHidesResultsUntilCompleted(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	job, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	claimed, err := jobs.Claim(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ID != job.ID {
		t.Fatalf("claimed wrong job")
	}

	got, err := svc.Get(context.Background(), job.ID, "user-1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Results != nil {
		t.Fatalf("expected no results before completion")
	}

	done := Completion{Results: map[string]any{"riskScore": 0.2}, Summary: "low risk", ConfidenceScore: 0.9}
	if err := jobs.MarkCompleted(context.Background(), job.ID, done); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err = svc.Get(context.Background(), job.ID, "user-1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || got.Results == nil {
		t.Fatalf("expected completed job with results, got %+v", got)
	}
}

func TestGetHidesOtherUsersJobs(t *testing.T) {
	svc, _, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")

	job, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if _, err := svc.Get(context.Background(), job.ID, "user-2", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign job, got %v", err)
	}
}

func TestGetUserJobsPagination(t *testing.T) {
	svc, jobs, _, _ := newTestService(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		err := jobs.Create(context.Background(), Job{
			ID:           fmt.Sprintf("job-%02d", i),
			ContractID:   fmt.Sprintf("c-%02d", i),
			OwnerUserID:  "user-1",
			AnalysisType: TypeBasic,
			Priority:     PriorityNormal,
			Status:       StatusPending,
			MaxRetries:   DefaultMaxRetries,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	first, err := svc.GetUserJobs(context.Background(), "user-1", "", 10, 0)
	if err != nil {
		t.Fatalf("GetUserJobs page 1: %v", err)
	}
	second, err := svc.GetUserJobs(context.Background(), "user-1", "", 10, 10)
	if err != nil {
		t.Fatalf("GetUserJobs page 2: %v", err)
	}
	if len(first) != 10 || len(second) != 5 {
		t.Fatalf("expected 10 and 5 jobs, got %d and %d", len(first), len(second))
	}

	seen := map[string]bool{}
	prev := time.Now().UTC().Add(time.Hour)
	for _, job := range append(first, second...) {
		if seen[job.ID] {
			t.Fatalf("job %s appeared twice across pages", job.ID)
		}
		seen[job.ID] = true
		if job.CreatedAt.After(prev) {
			t.Fatalf("jobs not ordered newest-first")
		}
		prev = job.CreatedAt
	}
}

func TestCleanupOldJobsIsIdempotentAndAgeScoped(t *testing.T) {
	svc, jobs, _, _ := newTestService(t)

	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -5)
	msg := "boom"
	for i, spec := range []struct {
		id        string
		status    string
		createdAt time.Time
	}{
		{"old-done", StatusCompleted, old},
		{"old-failed", StatusFailed, old},
		{"old-pending", StatusPending, old},
		{"new-done", StatusCompleted, recent},
	} {
		job := Job{
			ID:           spec.id,
			ContractID:   fmt.Sprintf("c-%d", i),
			OwnerUserID:  "user-1",
			AnalysisType: TypeBasic,
			Priority:     PriorityNormal,
			Status:       spec.status,
			MaxRetries:   DefaultMaxRetries,
			CreatedAt:    spec.createdAt,
		}
		if spec.status == StatusFailed {
			job.ErrorMessage = &msg
		}
		if err := jobs.Create(context.Background(), job); err != nil {
			t.Fatalf("Create %s: %v", spec.id, err)
		}
	}

	removed, err := svc.CleanupOldJobs(context.Background(), 30)
	if err != nil {
		t.Fatalf("CleanupOldJobs: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	// Terminal-only: the old PENDING job survives.
	if _, err := jobs.GetByID(context.Background(), "old-pending"); err != nil {
		t.Fatalf("old pending job should survive cleanup: %v", err)
	}
	if _, err := jobs.GetByID(context.Background(), "new-done"); err != nil {
		t.Fatalf("recent job should survive cleanup: %v", err)
	}

	removed, err = svc.CleanupOldJobs(context.Background(), 30)
	if err != nil {
		t.Fatalf("CleanupOldJobs second run: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected idempotent second run, got %d removed", removed)
	}
}

func TestQueueStartStopPersists(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if err := svc.Stop(context.Background(), "admin-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	status, err := svc.GetQueueStatus(context.Background())
	if err != nil {
		t.Fatalf("GetQueueStatus: %v", err)
	}
	if status.Enabled {
		t.Fatalf("expected queue disabled after Stop")
	}

	if err := svc.Start(context.Background(), "admin-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err = svc.GetQueueStatus(context.Background())
	if err != nil {
		t.Fatalf("GetQueueStatus: %v", err)
	}
	if !status.Enabled {
		t.Fatalf("expected queue enabled after Start")
	}
}

func TestQueueStatusCountsAndOldestPending(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")
	seedContract(t, contractsRepo, "c-2", "user-1", "")

	if _, err := svc.AddJob(context.Background(), "c-1", TypeBasic, "user-1", "", ""); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	job2, err := svc.AddJob(context.Background(), "c-2", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := jobs.MarkFailed(context.Background(), job2.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	status, err := svc.GetQueueStatus(context.Background())
	if err != nil {
		t.Fatalf("GetQueueStatus: %v", err)
	}
	if status.Counts[StatusPending] != 1 || status.Counts[StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", status.Counts)
	}
	if status.OldestPendingAgeSeconds == nil {
		t.Fatalf("expected oldest pending age with a PENDING job present")
	}
}
