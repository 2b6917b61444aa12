package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contracts-backend/internal/analysis"
	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/telemetry"
)

// Worker drives the analysis queue: it claims pending jobs under a lease,
// dispatches them to per-type handlers, and settles the outcome.
type Worker struct {
	repo     analysis.Repo
	sweeper  *analysis.Sweeper
	notifier Notifier
	handlers map[string]Handler
	config   Config

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Worker. The sweeper and notifier are optional; a nil
// sweeper disables the periodic stuck-job sweep.
func New(repo analysis.Repo, sweeper *analysis.Sweeper, notifier Notifier, config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Worker{
		repo:     repo,
		sweeper:  sweeper,
		notifier: notifier,
		handlers: make(map[string]Handler),
		config:   config,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a handler. The handler's Type() must be unique; call this
// before Start.
func (w *Worker) Register(handler Handler) {
	analysisType := handler.Type()
	if _, exists := w.handlers[analysisType]; exists {
		telemetry.Info("worker.handler_overwritten", map[string]any{"analysis_type": analysisType})
	}
	w.handlers[analysisType] = handler
}

// Start launches the configured number of worker goroutines plus the
// periodic stuck-job sweep.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}
	if w.sweeper != nil {
		w.wg.Add(1)
		go w.runSweep(ctx)
	}
	telemetry.Info("worker.started", map[string]any{
		"concurrency":   w.config.Concurrency,
		"poll_interval": w.config.PollInterval.String(),
	})
}

// Stop signals all goroutines to stop and waits up to ShutdownTimeout for
// in-flight jobs to finish.
func (w *Worker) Stop() {
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		telemetry.Info("worker.stopped", nil)
	case <-time.After(w.config.ShutdownTimeout):
		telemetry.Error("worker.shutdown_timeout", map[string]any{
			"timeout": w.config.ShutdownTimeout.String(),
		})
	}
}

// runWorker is the main loop of one worker goroutine.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNext(ctx); err != nil && !errors.Is(err, analysis.ErrNoJobs) {
				telemetry.Error("worker.process_failed", map[string]any{
					"worker_id": workerID,
					"error":     err.Error(),
				})
			}
		}
	}
}

// runSweep periodically force-fails jobs stuck beyond the threshold.
func (w *Worker) runSweep(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.sweeper.ClearStuck(ctx, "", ""); err != nil {
				telemetry.Error("worker.sweep_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// processNext claims and settles a single job. Returns analysis.ErrNoJobs
// when the queue is empty or paused.
func (w *Worker) processNext(ctx context.Context) error {
	enabled, err := w.repo.QueueEnabled(ctx)
	if err != nil {
		return fmt.Errorf("queue enabled check: %w", err)
	}
	if !enabled {
		return analysis.ErrNoJobs
	}

	job, err := w.repo.Claim(ctx, w.config.LeaseDuration)
	if err != nil {
		return err
	}

	start := time.Now()
	done, execErr := w.execute(ctx, job)
	if execErr != nil {
		return w.settleFailure(ctx, job, execErr)
	}

	if err := w.repo.MarkCompleted(ctx, job.ID, done); err != nil {
		return fmt.Errorf("mark completed %s: %w", job.ID, err)
	}
	metrics.JobsCompleted.WithLabelValues(job.AnalysisType).Inc()
	metrics.JobDuration.WithLabelValues(job.AnalysisType).Observe(time.Since(start).Seconds())
	_ = w.repo.AppendLog(ctx, job.ID, "info", "analysis completed")
	telemetry.Info("worker.job_completed", map[string]any{
		"analysis_id":   job.ID,
		"contract_id":   job.ContractID,
		"analysis_type": job.AnalysisType,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	if w.notifier != nil {
		if err := w.notifier.JobCompleted(ctx, job); err != nil {
			telemetry.Error("worker.notify_failed", map[string]any{"analysis_id": job.ID, "error": err.Error()})
		}
	}
	return nil
}

// execute dispatches the job to its handler under the job timeout.
func (w *Worker) execute(ctx context.Context, job analysis.Job) (analysis.Completion, error) {
	handler, ok := w.handlers[job.AnalysisType]
	if !ok {
		return analysis.Completion{}, NewPermanentError(fmt.Errorf("no handler registered for analysis type %s", job.AnalysisType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job)
}

// settleFailure requeues a retryable attempt or terminally fails the job.
// The repo rejects a requeue once the retry budget is spent, so the
// fallback to MarkFailed also covers racing workers.
func (w *Worker) settleFailure(ctx context.Context, job analysis.Job, execErr error) error {
	reason := execErr.Error()

	if !IsPermanent(execErr) {
		err := w.repo.Requeue(ctx, job.ID)
		if err == nil {
			metrics.JobsRequeued.WithLabelValues(job.AnalysisType).Inc()
			_ = w.repo.AppendLog(ctx, job.ID, "warn", "attempt failed, requeued: "+reason)
			telemetry.Info("worker.job_requeued", map[string]any{
				"analysis_id": job.ID,
				"retry_count": job.RetryCount + 1,
				"error":       reason,
			})
			return nil
		}
		if !errors.Is(err, analysis.ErrNotFound) {
			return fmt.Errorf("requeue %s: %w", job.ID, err)
		}
	}

	if err := w.repo.MarkFailed(ctx, job.ID, reason); err != nil {
		return fmt.Errorf("mark failed %s: %w", job.ID, err)
	}
	metrics.JobsFailed.WithLabelValues(job.AnalysisType).Inc()
	_ = w.repo.AppendLog(ctx, job.ID, "error", "analysis failed: "+reason)
	telemetry.Error("worker.job_failed", map[string]any{
		"analysis_id":   job.ID,
		"contract_id":   job.ContractID,
		"analysis_type": job.AnalysisType,
		"error":         reason,
	})
	if w.notifier != nil {
		if err := w.notifier.JobFailed(ctx, job, reason); err != nil {
			telemetry.Error("worker.notify_failed", map[string]any{"analysis_id": job.ID, "error": err.Error()})
		}
	}
	return nil
}
