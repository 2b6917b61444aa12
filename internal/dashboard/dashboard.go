package dashboard

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/activity"
	"contracts-backend/internal/analysis"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
	"contracts-backend/internal/usage"
)

// recentJobWindow is how many of the caller's newest jobs feed the
// status histogram.
const recentJobWindow = 200

// Summary is the aggregate view backing the dashboard page.
type Summary struct {
	ContractCount  int              `json:"contractCount"`
	JobsByStatus   map[string]int   `json:"jobsByStatus"`
	RecentJobs     []analysis.Job   `json:"recentJobs"`
	RecentActivity []activity.Entry `json:"recentActivity"`
	Usage          *usage.Usage     `json:"usage,omitempty"`
}

type Service struct {
	Contracts contracts.Repo
	Jobs      analysis.Repo
	Activity  *activity.Service
	Usage     *usage.Service
}

func NewService(contractRepo contracts.Repo, jobRepo analysis.Repo, activitySvc *activity.Service, usageSvc *usage.Service) *Service {
	return &Service{Contracts: contractRepo, Jobs: jobRepo, Activity: activitySvc, Usage: usageSvc}
}

func (s *Service) Summary(ctx context.Context, userID, orgID string) (Summary, error) {
	count, err := s.Contracts.CountByOwner(ctx, userID, orgID)
	if err != nil {
		return Summary{}, err
	}

	jobs, err := s.Jobs.ListByOwner(ctx, userID, orgID, recentJobWindow, 0)
	if err != nil {
		return Summary{}, err
	}
	histogram := make(map[string]int)
	for _, job := range jobs {
		histogram[job.Status]++
	}
	recent := jobs
	if len(recent) > 10 {
		recent = recent[:10]
	}

	out := Summary{
		ContractCount: count,
		JobsByStatus:  histogram,
		RecentJobs:    recent,
	}

	if s.Activity != nil {
		entries, err := s.Activity.ListRecent(ctx, userID, 10)
		if err != nil {
			return Summary{}, err
		}
		out.RecentActivity = entries
	}
	if s.Usage != nil {
		u, err := s.Usage.Get(ctx, userID)
		if err != nil {
			return Summary{}, err
		}
		out.Usage = &u
	}
	return out, nil
}

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.summary)
}

func (h *Handler) summary(c *gin.Context) {
	out, err := h.Svc.Summary(c.Request.Context(), middleware.UserIDFromContext(c), middleware.OrgIDFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build dashboard", nil)
		return
	}
	if out.RecentJobs == nil {
		out.RecentJobs = []analysis.Job{}
	}
	if out.RecentActivity == nil {
		out.RecentActivity = []activity.Entry{}
	}
	respond.JSON(c, http.StatusOK, out)
}
