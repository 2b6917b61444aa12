package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contracts-backend/internal/analysis"
)

// Service creates and serves user notifications. It implements the
// worker's Notifier so terminal job outcomes reach the owner.
type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

func (s *Service) JobCompleted(ctx context.Context, job analysis.Job) error {
	return s.Repo.Create(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    job.OwnerUserID,
		Type:      TypeAnalysisCompleted,
		Title:     "Analysis complete",
		Body:      fmt.Sprintf("Your %s analysis finished.", job.AnalysisType),
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) JobFailed(ctx context.Context, job analysis.Job, reason string) error {
	return s.Repo.Create(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    job.OwnerUserID,
		Type:      TypeAnalysisFailed,
		Title:     "Analysis failed",
		Body:      fmt.Sprintf("Your %s analysis failed: %s", job.AnalysisType, reason),
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	return s.Repo.ListByUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	return s.Repo.MarkRead(ctx, notificationID, userID)
}
