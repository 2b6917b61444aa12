package analysis

import "time"

// Job statuses. FAILED is terminal; retries re-set PENDING before the
// retry budget is exhausted.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Analysis types accepted by the queue.
const (
	TypeComprehensive    = "comprehensive"
	TypeRiskAssessment   = "risk-assessment"
	TypeClauseExtraction = "clause-extraction"
	TypeBasic            = "basic"
)

// Priorities. Claiming orders by priority first, then FIFO within priority.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

const (
	DefaultMaxRetries     = 3
	DefaultStuckThreshold = 10 * time.Minute
	DefaultCleanupAgeDays = 30
)

// stuckErrorMessage is written on every job the sweeper force-fails.
const stuckErrorMessage = "analysis timed out and was cleared as stuck"

// Job is one unit of requested contract analysis.
type Job struct {
	ID               string         `json:"id"`
	ContractID       string         `json:"contractId"`
	OwnerUserID      string         `json:"ownerUserId"`
	OrganizationID   string         `json:"organizationId,omitempty"`
	AnalysisType     string         `json:"analysisType"`
	Priority         string         `json:"priority"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	RetryCount       int            `json:"retryCount"`
	MaxRetries       int            `json:"maxRetries"`
	LeaseExpiresAt   *time.Time     `json:"-"`
	CreatedAt        time.Time      `json:"createdAt"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
	Results          map[string]any `json:"results,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	ConfidenceScore  *float64       `json:"confidenceScore,omitempty"`
	TokensUsed       int            `json:"tokensUsed,omitempty"`
	CostCents        int            `json:"costCents,omitempty"`
	CustomParameters map[string]any `json:"customParameters,omitempty"`
}

// Terminal reports whether the job can no longer change status.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// JobStub is the response shape for batch creation.
type JobStub struct {
	ID           string `json:"id"`
	ContractID   string `json:"contractId"`
	Status       string `json:"status"`
	AnalysisType string `json:"analysisType"`
}

// JobLog is one append-only audit line for a job.
type JobLog struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"jobId"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Completion carries the worker's output for a successful job.
type Completion struct {
	Results         map[string]any
	Summary         string
	ConfidenceScore float64
	TokensUsed      int
	CostCents       int
}

// QueueStatus is the aggregate health snapshot.
type QueueStatus struct {
	Enabled                 bool           `json:"enabled"`
	Counts                  map[string]int `json:"counts"`
	OldestPendingAgeSeconds *float64       `json:"oldestPendingAgeSeconds,omitempty"`
}

// ValidAnalysisType reports whether t is in the accepted enumeration.
func ValidAnalysisType(t string) bool {
	switch t {
	case TypeComprehensive, TypeRiskAssessment, TypeClauseExtraction, TypeBasic:
		return true
	}
	return false
}

// ValidPriority reports whether p is in the accepted enumeration.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

func priorityName(rank int) string {
	switch rank {
	case 2:
		return PriorityHigh
	case 1:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
