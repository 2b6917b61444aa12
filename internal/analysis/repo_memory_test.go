package analysis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func pendingJob(id, contractID, priority string, createdAt time.Time) Job {
	return Job{
		ID:           id,
		ContractID:   contractID,
		OwnerUserID:  "user-1",
		AnalysisType: TypeBasic,
		Priority:     priority,
		Status:       StatusPending,
		MaxRetries:   DefaultMaxRetries,
		CreatedAt:    createdAt,
	}
}

func TestClaimHonorsPriorityThenFIFO(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Now().UTC().Add(-time.Hour)

	for _, job := range []Job{
		pendingJob("low-old", "c-1", PriorityLow, base),
		pendingJob("normal-old", "c-2", PriorityNormal, base.Add(time.Minute)),
		pendingJob("high-new", "c-3", PriorityHigh, base.Add(30*time.Minute)),
		pendingJob("high-old", "c-4", PriorityHigh, base.Add(10*time.Minute)),
	} {
		if err := repo.Create(context.Background(), job); err != nil {
			t.Fatalf("Create %s: %v", job.ID, err)
		}
	}

	want := []string{"high-old", "high-new", "normal-old", "low-old"}
	for _, expected := range want {
		job, err := repo.Claim(context.Background(), 15*time.Minute)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job.ID != expected {
			t.Fatalf("expected %s claimed, got %s", expected, job.ID)
		}
		if job.Status != StatusProcessing || job.StartedAt == nil || job.LeaseExpiresAt == nil {
			t.Fatalf("claim did not lease the job: %+v", job)
		}
	}

	if _, err := repo.Claim(context.Background(), 15*time.Minute); !errors.Is(err, ErrNoJobs) {
		t.Fatalf("expected ErrNoJobs on drained queue, got %v", err)
	}
}

func TestRequeueStopsAtMaxRetries(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), pendingJob("job-1", "c-1", PriorityNormal, time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for attempt := 0; attempt < DefaultMaxRetries; attempt++ {
		claimed, err := repo.Claim(context.Background(), time.Minute)
		if err != nil {
			t.Fatalf("Claim attempt %d: %v", attempt, err)
		}
		if claimed.RetryCount != attempt {
			t.Fatalf("expected retryCount %d, got %d", attempt, claimed.RetryCount)
		}
		if err := repo.Requeue(context.Background(), "job-1"); err != nil {
			t.Fatalf("Requeue attempt %d: %v", attempt, err)
		}
	}

	claimed, err := repo.Claim(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("final Claim: %v", err)
	}
	if claimed.RetryCount != DefaultMaxRetries {
		t.Fatalf("expected retryCount %d, got %d", DefaultMaxRetries, claimed.RetryCount)
	}

	// Retry budget exhausted: the worker must fail it instead.
	if err := repo.Requeue(context.Background(), "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected Requeue rejection at max retries, got %v", err)
	}
	if err := repo.MarkFailed(context.Background(), "job-1", "retries exhausted"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusFailed || job.ErrorMessage == nil {
		t.Fatalf("expected FAILED with message, got %+v", job)
	}
}

func TestMarkCompletedPopulatesResults(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), pendingJob("job-1", "c-1", PriorityNormal, time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Claim(context.Background(), time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	done := Completion{
		Results:         map[string]any{"clauses": []string{"termination"}},
		Summary:         "one clause",
		ConfidenceScore: 0.8,
		TokensUsed:      1200,
		CostCents:       3,
	}
	if err := repo.MarkCompleted(context.Background(), "job-1", done); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != StatusCompleted || job.Progress != 100 {
		t.Fatalf("unexpected job state: %+v", job)
	}
	if job.Results == nil || job.Summary != "one clause" || job.TokensUsed != 1200 {
		t.Fatalf("completion not recorded: %+v", job)
	}
	if job.CompletedAt == nil || job.LeaseExpiresAt != nil {
		t.Fatalf("expected completedAt set and lease cleared: %+v", job)
	}

	// Completing a non-processing job is rejected.
	if err := repo.MarkCompleted(context.Background(), "job-1", done); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double completion, got %v", err)
	}
}
