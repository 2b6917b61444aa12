package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/analysis"
)

func TestJobOutcomesCreateNotifications(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	job := analysis.Job{ID: "job-1", OwnerUserID: "user-1", AnalysisType: analysis.TypeBasic}

	if err := svc.JobCompleted(ctx, job); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	if err := svc.JobFailed(ctx, job, "llm call: timeout"); err != nil {
		t.Fatalf("JobFailed: %v", err)
	}

	items, err := svc.List(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
	types := map[string]bool{}
	for _, n := range items {
		types[n.Type] = true
		if n.UserID != "user-1" {
			t.Fatalf("wrong recipient: %+v", n)
		}
	}
	if !types[TypeAnalysisCompleted] || !types[TypeAnalysisFailed] {
		t.Fatalf("missing notification types: %v", types)
	}
}

func TestMarkReadIsSingleShot(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.JobCompleted(ctx, analysis.Job{ID: "job-1", OwnerUserID: "user-1", AnalysisType: analysis.TypeBasic}); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	items, _ := svc.List(ctx, "user-1", 10)
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}
	id := items[0].ID

	if err := svc.MarkRead(ctx, id, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if err := svc.MarkRead(ctx, id, "user-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.MarkRead(ctx, id, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second read, got %v", err)
	}
}

func newNotificationsRouter(svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestListEndpoint(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.JobCompleted(context.Background(), analysis.Job{ID: "job-1", OwnerUserID: "user-1", AnalysisType: analysis.TypeBasic}); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	r := newNotificationsRouter(svc, "user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].Title != "Analysis complete" {
		t.Fatalf("unexpected response: %+v", resp.Notifications)
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	if err := svc.JobCompleted(ctx, analysis.Job{ID: "job-1", OwnerUserID: "user-1", AnalysisType: analysis.TypeBasic}); err != nil {
		t.Fatalf("JobCompleted: %v", err)
	}
	items, _ := svc.List(ctx, "user-1", 10)
	r := newNotificationsRouter(svc, "user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+items[0].ID+"/read", strings.NewReader("")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Second read of the same notification is a 404.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+items[0].ID+"/read", strings.NewReader("")))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
