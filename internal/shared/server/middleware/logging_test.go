package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"contracts-backend/internal/shared/telemetry"
)

func TestLoggingEmitsRequestComplete(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	telemetry.SetLogger(zap.New(core))
	t.Cleanup(func() { telemetry.SetLogger(nil) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logging())
	r.GET("/api/v1/analysis/abc/status", func(c *gin.Context) {
		c.Set("analysisId", "abc")
		c.Set("statusTransition", "PENDING->PROCESSING")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/abc/status", nil)
	r.ServeHTTP(w, req)

	entries := logs.FilterMessage("request.complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request.complete entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["method"] != "GET" {
		t.Fatalf("expected method GET, got %v", fields["method"])
	}
	if fields["path"] != "/api/v1/analysis/abc/status" {
		t.Fatalf("unexpected path: %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Fatalf("expected status 200, got %v", fields["status"])
	}
	if fields["analysis_id"] != "abc" {
		t.Fatalf("expected analysis_id abc, got %v", fields["analysis_id"])
	}
	if fields["status_transition"] != "PENDING->PROCESSING" {
		t.Fatalf("unexpected status_transition: %v", fields["status_transition"])
	}
	if fields["request_id"] == "" {
		t.Fatalf("expected non-empty request_id")
	}
}

func TestLoggingSkipsPreflight(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	telemetry.SetLogger(zap.New(core))
	t.Cleanup(func() { telemetry.SetLogger(nil) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logging())
	r.OPTIONS("/api/v1/contracts", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/contracts", nil)
	r.ServeHTTP(w, req)

	if got := logs.FilterMessage("request.complete").Len(); got != 0 {
		t.Fatalf("expected no log entries for preflight, got %d", got)
	}
}
