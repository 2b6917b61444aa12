package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/activity"
	"contracts-backend/internal/analysis"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/usage"
)

func newTestSummary(t *testing.T) (*Service, *contracts.MemoryRepo, *analysis.MemoryRepo) {
	t.Helper()
	contractRepo := contracts.NewMemoryRepo()
	jobRepo := analysis.NewMemoryRepo()
	activitySvc := &activity.Service{Repo: activity.NewMemoryRepo()}
	svc := NewService(contractRepo, jobRepo, activitySvc, usage.NewService())
	return svc, contractRepo, jobRepo
}

func seed(t *testing.T, contractRepo *contracts.MemoryRepo, jobRepo *analysis.MemoryRepo, userID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	err := contractRepo.Create(ctx, contracts.Contract{
		ID:          "c-1",
		OwnerUserID: userID,
		Title:       "MSA",
		FileName:    "msa.pdf",
		Status:      contracts.StatusReady,
		CreatedAt:   now,
	})
	if err != nil {
		t.Fatalf("seed contract: %v", err)
	}

	for i, status := range []string{analysis.StatusCompleted, analysis.StatusFailed, analysis.StatusPending} {
		job := analysis.Job{
			ID:           "job-" + status,
			ContractID:   "c-1",
			OwnerUserID:  userID,
			AnalysisType: []string{analysis.TypeBasic, analysis.TypeComprehensive, analysis.TypeRiskAssessment}[i],
			Priority:     analysis.PriorityNormal,
			Status:       status,
			MaxRetries:   analysis.DefaultMaxRetries,
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
		}
		if err := jobRepo.Create(ctx, job); err != nil {
			t.Fatalf("seed job %s: %v", status, err)
		}
	}
}

func TestSummaryAggregates(t *testing.T) {
	svc, contractRepo, jobRepo := newTestSummary(t)
	seed(t, contractRepo, jobRepo, "user-1")

	out, err := svc.Summary(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if out.ContractCount != 1 {
		t.Fatalf("expected 1 contract, got %d", out.ContractCount)
	}
	for _, status := range []string{analysis.StatusCompleted, analysis.StatusFailed, analysis.StatusPending} {
		if out.JobsByStatus[status] != 1 {
			t.Fatalf("expected 1 %s job, got %d", status, out.JobsByStatus[status])
		}
	}
	if len(out.RecentJobs) != 3 {
		t.Fatalf("expected 3 recent jobs, got %d", len(out.RecentJobs))
	}
	if out.Usage == nil || out.Usage.Plan != usage.PlanFree {
		t.Fatalf("expected free-tier usage snapshot, got %+v", out.Usage)
	}
}

func TestSummaryScopedToCaller(t *testing.T) {
	svc, contractRepo, jobRepo := newTestSummary(t)
	seed(t, contractRepo, jobRepo, "user-1")

	out, err := svc.Summary(context.Background(), "user-2", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if out.ContractCount != 0 || len(out.RecentJobs) != 0 {
		t.Fatalf("foreign data leaked: %+v", out)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	svc, contractRepo, jobRepo := newTestSummary(t)
	seed(t, contractRepo, jobRepo, "user-1")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp Summary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ContractCount != 1 || len(resp.RecentJobs) != 3 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
}
