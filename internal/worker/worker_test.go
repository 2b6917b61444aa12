package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contracts-backend/internal/analysis"
)

type stubHandler struct {
	analysisType string
	handle       func(ctx context.Context, job analysis.Job) (analysis.Completion, error)
}

func (h stubHandler) Type() string { return h.analysisType }

func (h stubHandler) Handle(ctx context.Context, job analysis.Job) (analysis.Completion, error) {
	return h.handle(ctx, job)
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (n *recordingNotifier) JobCompleted(_ context.Context, job analysis.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job.ID)
	return nil
}

func (n *recordingNotifier) JobFailed(_ context.Context, job analysis.Job, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, job.ID)
	return nil
}

func newTestWorker(t *testing.T, repo analysis.Repo, notifier Notifier) *Worker {
	t.Helper()
	w, err := New(repo, nil, notifier, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func seedPending(t *testing.T, repo analysis.Repo, id, analysisType string) {
	t.Helper()
	err := repo.Create(context.Background(), analysis.Job{
		ID:           id,
		ContractID:   "c-" + id,
		OwnerUserID:  "user-1",
		AnalysisType: analysisType,
		Priority:     analysis.PriorityNormal,
		Status:       analysis.StatusPending,
		MaxRetries:   analysis.DefaultMaxRetries,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create %s: %v", id, err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"concurrency too low", func(c *Config) { c.Concurrency = 0 }, true},
		{"concurrency too high", func(c *Config) { c.Concurrency = 101 }, true},
		{"poll interval too short", func(c *Config) { c.PollInterval = 10 * time.Millisecond }, true},
		{"lease shorter than timeout", func(c *Config) { c.LeaseDuration = c.JobTimeout }, true},
		{"stuck threshold too short", func(c *Config) { c.StuckThreshold = 10 * time.Second }, true},
		{"stuck threshold not above timeout", func(c *Config) { c.StuckThreshold = c.JobTimeout }, true},
		{"long timeout with matching threshold", func(c *Config) {
			c.JobTimeout = 20 * time.Minute
			c.LeaseDuration = 30 * time.Minute
			c.StuckThreshold = 30 * time.Minute
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(NewPermanentError(errors.New("boom"))) {
		t.Error("expected wrapped permanent error to be permanent")
	}
	if IsPermanent(errors.New("boom")) {
		t.Error("expected plain error to be retryable")
	}
}

func TestProcessNextCompletesJob(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeBasic)

	notifier := &recordingNotifier{}
	w := newTestWorker(t, repo, notifier)
	w.Register(stubHandler{
		analysisType: analysis.TypeBasic,
		handle: func(_ context.Context, job analysis.Job) (analysis.Completion, error) {
			return analysis.Completion{
				Results:         map[string]any{"clauses": []string{"termination"}},
				Summary:         "ok",
				ConfidenceScore: 0.9,
				TokensUsed:      400,
				CostCents:       2,
			}, nil
		},
	})

	if err := w.processNext(context.Background()); err != nil {
		t.Fatalf("processNext: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", job.Status)
	}
	if job.Results == nil || job.Summary != "ok" {
		t.Fatalf("completion not recorded: %+v", job)
	}
	if len(notifier.completed) != 1 || notifier.completed[0] != "job-1" {
		t.Fatalf("expected completion notification, got %+v", notifier.completed)
	}
}

func TestProcessNextRequeuesRetryableFailure(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeBasic)

	w := newTestWorker(t, repo, nil)
	w.Register(stubHandler{
		analysisType: analysis.TypeBasic,
		handle: func(_ context.Context, _ analysis.Job) (analysis.Completion, error) {
			return analysis.Completion{}, errors.New("upstream flaked")
		},
	})

	if err := w.processNext(context.Background()); err != nil {
		t.Fatalf("processNext: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusPending {
		t.Fatalf("expected requeued PENDING job, got %s", job.Status)
	}
	if job.RetryCount != 1 {
		t.Fatalf("expected retryCount 1, got %d", job.RetryCount)
	}
}

func TestProcessNextFailsPermanentErrorImmediately(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeBasic)

	notifier := &recordingNotifier{}
	w := newTestWorker(t, repo, notifier)
	w.Register(stubHandler{
		analysisType: analysis.TypeBasic,
		handle: func(_ context.Context, _ analysis.Job) (analysis.Completion, error) {
			return analysis.Completion{}, NewPermanentError(errors.New("document is empty"))
		},
	})

	if err := w.processNext(context.Background()); err != nil {
		t.Fatalf("processNext: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusFailed {
		t.Fatalf("expected FAILED, got %s", job.Status)
	}
	if job.RetryCount != 0 {
		t.Fatalf("expected no retries, got %d", job.RetryCount)
	}
	if len(notifier.failed) != 1 {
		t.Fatalf("expected failure notification, got %+v", notifier.failed)
	}
}

func TestProcessNextFailsAfterRetryBudget(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeBasic)

	w := newTestWorker(t, repo, nil)
	w.Register(stubHandler{
		analysisType: analysis.TypeBasic,
		handle: func(_ context.Context, _ analysis.Job) (analysis.Completion, error) {
			return analysis.Completion{}, errors.New("always fails")
		},
	})

	// One initial attempt plus the full retry budget.
	for attempt := 0; attempt <= analysis.DefaultMaxRetries; attempt++ {
		if err := w.processNext(context.Background()); err != nil {
			t.Fatalf("processNext attempt %d: %v", attempt, err)
		}
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusFailed {
		t.Fatalf("expected FAILED after retry budget, got %s", job.Status)
	}
	if job.RetryCount != analysis.DefaultMaxRetries {
		t.Fatalf("expected retryCount %d, got %d", analysis.DefaultMaxRetries, job.RetryCount)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "always fails" {
		t.Fatalf("expected error message recorded, got %+v", job.ErrorMessage)
	}
}

func TestProcessNextSkipsPausedQueue(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeBasic)
	if err := repo.SetQueueEnabled(context.Background(), false, "admin-1"); err != nil {
		t.Fatalf("SetQueueEnabled: %v", err)
	}

	w := newTestWorker(t, repo, nil)
	if err := w.processNext(context.Background()); !errors.Is(err, analysis.ErrNoJobs) {
		t.Fatalf("expected ErrNoJobs while paused, got %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusPending {
		t.Fatalf("paused queue must not claim jobs, got %s", job.Status)
	}
}

func TestProcessNextFailsUnknownAnalysisType(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	seedPending(t, repo, "job-1", analysis.TypeComprehensive)

	w := newTestWorker(t, repo, nil)
	if err := w.processNext(context.Background()); err != nil {
		t.Fatalf("processNext: %v", err)
	}

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != analysis.StatusFailed {
		t.Fatalf("expected FAILED for unhandled type, got %s", job.Status)
	}
}

func TestStopWaitsForWorkers(t *testing.T) {
	repo := analysis.NewMemoryRepo()
	cfg := DefaultConfig()
	cfg.PollInterval = 100 * time.Millisecond

	w, err := New(repo, nil, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
