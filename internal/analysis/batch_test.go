package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStartBatchCreatesTaggedJobs(t *testing.T) {
	svc, jobs, contractsRepo, activityRepo := newTestService(t)
	ids := []string{"c-1", "c-2", "c-3"}
	for _, id := range ids {
		seedContract(t, contractsRepo, id, "user-1", "")
	}

	stubs, err := svc.StartBatch(context.Background(), "user-1", "", ids, TypeComprehensive)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if len(stubs) != 3 {
		t.Fatalf("expected 3 stubs, got %d", len(stubs))
	}

	var sharedStart string
	for _, stub := range stubs {
		if stub.Status != StatusPending {
			t.Fatalf("expected PENDING stub, got %s", stub.Status)
		}
		job, err := jobs.GetByID(context.Background(), stub.ID)
		if err != nil {
			t.Fatalf("GetByID %s: %v", stub.ID, err)
		}
		tagged, _ := job.CustomParameters["batchJob"].(bool)
		if !tagged {
			t.Fatalf("job %s missing batchJob tag", stub.ID)
		}
		startedAt, _ := job.CustomParameters["batchStartedAt"].(string)
		if startedAt == "" {
			t.Fatalf("job %s missing batchStartedAt", stub.ID)
		}
		if sharedStart == "" {
			sharedStart = startedAt
		} else if startedAt != sharedStart {
			t.Fatalf("batchStartedAt differs across jobs: %s vs %s", startedAt, sharedStart)
		}
	}

	entries := activityRepo.Entries()
	if len(entries) != 1 || entries[0].Action != "batch_analysis_started" {
		t.Fatalf("expected one batch activity entry, got %+v", entries)
	}
}

func TestStartBatchAllOrNothingOnForeignContract(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")
	seedContract(t, contractsRepo, "c-2", "someone-else", "")

	_, err := svc.StartBatch(context.Background(), "user-1", "", []string{"c-1", "c-2"}, TypeBasic)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	counts, err := jobs.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("expected zero jobs created, got %v", counts)
	}
}

func TestStartBatchConflictOnInFlightPair(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	seedContract(t, contractsRepo, "c-1", "user-1", "")
	seedContract(t, contractsRepo, "c-2", "user-1", "")

	existing, err := svc.AddJob(context.Background(), "c-2", TypeBasic, "user-1", "", "")
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	_, err = svc.StartBatch(context.Background(), "user-1", "", []string{"c-1", "c-2"}, TypeBasic)
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if cErr.JobID != existing.ID {
		t.Fatalf("expected conflict to reference %s, got %s", existing.ID, cErr.JobID)
	}

	counts, err := jobs.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusPending] != 1 {
		t.Fatalf("expected only the pre-existing job, got %v", counts)
	}
}

func TestStartBatchValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	var vErr *ValidationError

	if _, err := svc.StartBatch(context.Background(), "user-1", "", nil, TypeBasic); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty batch, got %v", err)
	}
	if _, err := svc.StartBatch(context.Background(), "user-1", "", []string{"c-1", "c-1"}, TypeBasic); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for duplicate ids, got %v", err)
	}
	if _, err := svc.StartBatch(context.Background(), "user-1", "", []string{"c-1"}, "sentiment"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for bad type, got %v", err)
	}

	big := make([]string, maxBatchSize+1)
	for i := range big {
		big[i] = fmt.Sprintf("c-%d", i)
	}
	if _, err := svc.StartBatch(context.Background(), "user-1", "", big, TypeBasic); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for oversized batch, got %v", err)
	}
}

func TestGetBatchStatusHistogram(t *testing.T) {
	svc, jobs, contractsRepo, _ := newTestService(t)
	for _, id := range []string{"c-1", "c-2"} {
		seedContract(t, contractsRepo, id, "user-1", "")
	}

	stubs, err := svc.StartBatch(context.Background(), "user-1", "", []string{"c-1", "c-2"}, TypeBasic)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if err := jobs.MarkFailed(context.Background(), stubs[0].ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	batchJobs, histogram, err := svc.GetBatchStatus(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("GetBatchStatus: %v", err)
	}
	if len(batchJobs) != 2 {
		t.Fatalf("expected 2 batch jobs, got %d", len(batchJobs))
	}
	if histogram[StatusPending] != 1 || histogram[StatusFailed] != 1 {
		t.Fatalf("unexpected histogram: %v", histogram)
	}
}
