package notifications

import "time"

const (
	TypeAnalysisCompleted = "analysis_completed"
	TypeAnalysisFailed    = "analysis_failed"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
