package analysis

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo implements Repo in memory for tests and local development.
type MemoryRepo struct {
	mu      sync.Mutex
	jobs    map[string]Job
	logs    []JobLog
	nextLog int64
	enabled bool
	// Now is swappable so tests can control the clock.
	Now func() time.Time
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo returns an empty repo with the queue enabled.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		jobs:    map[string]Job{},
		enabled: true,
		Now:     time.Now,
	}
}

func (r *MemoryRepo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasActiveLocked(job.ContractID, job.AnalysisType) {
		return ErrDuplicateActive
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryRepo) CreateBatch(ctx context.Context, jobs []Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if r.hasActiveLocked(job.ContractID, job.AnalysisType) {
			return ErrDuplicateActive
		}
	}
	for _, job := range jobs {
		r.jobs[job.ID] = job
	}
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) FindActive(ctx context.Context, contractID, analysisType string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.ContractID == contractID && job.AnalysisType == analysisType && !job.Terminal() {
			return job, nil
		}
	}
	return Job{}, ErrNotFound
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, userID, orgID string, limit, offset int) ([]Job, error) {
	limit, offset = clampPage(limit, offset)
	r.mu.Lock()
	defer r.mu.Unlock()

	var visible []Job
	for _, job := range r.jobs {
		if r.visibleLocked(job, userID, orgID) {
			visible = append(visible, job)
		}
	}
	sortNewestFirst(visible)
	return page(visible, limit, offset), nil
}

func (r *MemoryRepo) ListByContract(ctx context.Context, contractID, userID, orgID string) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Job
	for _, job := range r.jobs {
		if job.ContractID == contractID && r.visibleLocked(job, userID, orgID) {
			out = append(out, job)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepo) ListRecentBatch(ctx context.Context, userID, orgID string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Job
	for _, job := range r.jobs {
		if !r.visibleLocked(job, userID, orgID) {
			continue
		}
		if tag, ok := job.CustomParameters["batchJob"].(bool); ok && tag {
			out = append(out, job)
		}
	}
	sortNewestFirst(out)
	return page(out, limit, 0), nil
}

func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *MemoryRepo) OldestPendingAge(ctx context.Context) (time.Duration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest time.Time
	found := false
	for _, job := range r.jobs {
		if job.Status != StatusPending {
			continue
		}
		if !found || job.CreatedAt.Before(oldest) {
			oldest = job.CreatedAt
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return r.now().Sub(oldest), true, nil
}

func (r *MemoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, job := range r.jobs {
		if job.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRepo) ClearStuck(ctx context.Context, threshold time.Duration, contractID, analysisType string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	deadline := now.Add(-threshold)
	var ids []string
	for id, job := range r.jobs {
		if job.Terminal() {
			continue
		}
		if contractID != "" && job.ContractID != contractID {
			continue
		}
		if analysisType != "" && job.AnalysisType != analysisType {
			continue
		}
		stuck := (job.StartedAt == nil && job.CreatedAt.Before(deadline)) ||
			(job.StartedAt != nil && job.StartedAt.Before(deadline))
		if !stuck {
			continue
		}
		msg := stuckErrorMessage
		completed := now
		job.Status = StatusFailed
		job.ErrorMessage = &msg
		job.CompletedAt = &completed
		job.LeaseExpiresAt = nil
		r.jobs[id] = job
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryRepo) Claim(ctx context.Context, lease time.Duration) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var best *Job
	for _, job := range r.jobs {
		if job.Status != StatusPending {
			continue
		}
		if job.LeaseExpiresAt != nil && job.LeaseExpiresAt.After(now) {
			continue
		}
		j := job
		if best == nil ||
			priorityRank(j.Priority) > priorityRank(best.Priority) ||
			(priorityRank(j.Priority) == priorityRank(best.Priority) && j.CreatedAt.Before(best.CreatedAt)) {
			best = &j
		}
	}
	if best == nil {
		return Job{}, ErrNoJobs
	}

	started := now
	expires := now.Add(lease)
	best.Status = StatusProcessing
	best.StartedAt = &started
	best.LeaseExpiresAt = &expires
	r.jobs[best.ID] = *best
	return *best, nil
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, jobID string, done Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return ErrNotFound
	}
	now := r.now()
	conf := done.ConfidenceScore
	job.Status = StatusCompleted
	job.Progress = 100
	job.Results = done.Results
	job.Summary = done.Summary
	job.ConfidenceScore = &conf
	job.TokensUsed = done.TokensUsed
	job.CostCents = done.CostCents
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Terminal() {
		return ErrNotFound
	}
	now := r.now()
	job.Status = StatusFailed
	job.ErrorMessage = &errorMessage
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepo) Requeue(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != StatusProcessing || job.RetryCount >= job.MaxRetries {
		return ErrNotFound
	}
	job.Status = StatusPending
	job.RetryCount++
	job.Progress = 0
	job.StartedAt = nil
	job.LeaseExpiresAt = nil
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	job.Progress = progress
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepo) QueueEnabled(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled, nil
}

func (r *MemoryRepo) SetQueueEnabled(ctx context.Context, enabled bool, updatedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	return nil
}

func (r *MemoryRepo) AppendLog(ctx context.Context, jobID, level, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLog++
	r.logs = append(r.logs, JobLog{
		ID:        r.nextLog,
		JobID:     jobID,
		Level:     level,
		Message:   message,
		CreatedAt: r.now(),
	})
	return nil
}

func (r *MemoryRepo) RecentLogs(ctx context.Context, limit int) ([]JobLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobLog, len(r.logs))
	copy(out, r.logs)
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) hasActiveLocked(contractID, analysisType string) bool {
	for _, job := range r.jobs {
		if job.ContractID == contractID && job.AnalysisType == analysisType && !job.Terminal() {
			return true
		}
	}
	return false
}

func (r *MemoryRepo) visibleLocked(job Job, userID, orgID string) bool {
	if job.OwnerUserID == userID {
		return true
	}
	return orgID != "" && job.OrganizationID == orgID
}

func sortNewestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
}

func page(jobs []Job, limit, offset int) []Job {
	if offset >= len(jobs) {
		return nil
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}
