package analysis

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
	"contracts-backend/internal/usage"
)

// Handler wires HTTP handlers to the queue facade and sweeper.
type Handler struct {
	Svc     *Service
	Sweeper *Sweeper
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, sweeper *Sweeper) *Handler {
	return &Handler{Svc: svc, Sweeper: sweeper}
}

// RegisterRoutes attaches analysis routes to the router group. requireAdmin
// guards queue control and the admin health snapshot.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	rg.POST("/analysis/start", h.startAnalysis)
	rg.GET("/analysis/:id/status", h.analysisStatus)
	rg.GET("/analysis/queue/status", h.queueStatus)
	rg.POST("/analysis/queue/status", requireAdmin, h.queueControl)
	rg.POST("/analysis/batch/start", h.batchStart)
	rg.GET("/analysis/batch/status", h.batchStatus)
	rg.POST("/analysis/clear-stuck", h.clearStuck)
	rg.GET("/analysis/clear-stuck", h.contractAnalyses)
	rg.GET("/admin/job-queues", requireAdmin, h.adminJobQueues)
}

type startAnalysisRequest struct {
	ContractID   string `json:"contractId"`
	AnalysisType string `json:"analysisType"`
	Priority     string `json:"priority"`
}

func (h *Handler) startAnalysis(c *gin.Context) {
	var req startAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	c.Set("contractId", req.ContractID)

	job, err := h.Svc.AddJob(c.Request.Context(), req.ContractID, req.AnalysisType, userID, orgID, req.Priority)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			// 404 on purpose: foreign contract ids must not leak.
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
			return
		}
		h.writeError(c, err, "failed to start analysis")
		return
	}

	c.Set("analysisId", job.ID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": job.ID,
		"status":     job.Status,
	})
}

func (h *Handler) analysisStatus(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}
	c.Set("analysisId", jobID)

	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	job, err := h.Svc.Get(c.Request.Context(), jobID, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return
		}
		h.writeError(c, err, "failed to fetch analysis")
		return
	}
	respond.JSON(c, http.StatusOK, job)
}

func (h *Handler) queueStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	status, err := h.Svc.GetQueueStatus(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to fetch queue status")
		return
	}
	recent, err := h.Svc.GetUserJobs(c.Request.Context(), userID, orgID, 10, 0)
	if err != nil {
		h.writeError(c, err, "failed to fetch queue status")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"queue":      status,
		"recentJobs": recent,
	})
}

type queueControlRequest struct {
	Action string `json:"action"`
}

func (h *Handler) queueControl(c *gin.Context) {
	var req queueControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)

	switch req.Action {
	case "start":
		if err := h.Svc.Start(c.Request.Context(), userID); err != nil {
			h.writeError(c, err, "failed to start queue")
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"enabled": true})
	case "stop":
		if err := h.Svc.Stop(c.Request.Context(), userID); err != nil {
			h.writeError(c, err, "failed to stop queue")
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"enabled": false})
	case "cleanup":
		removed, err := h.Svc.CleanupOldJobs(c.Request.Context(), 0)
		if err != nil {
			h.writeError(c, err, "failed to clean up old jobs")
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"removed": removed})
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "action must be one of start, stop, cleanup", nil)
	}
}

type batchStartRequest struct {
	ContractIDs  []string `json:"contractIds"`
	AnalysisType string   `json:"analysisType"`
}

func (h *Handler) batchStart(c *gin.Context) {
	var req batchStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	stubs, err := h.Svc.StartBatch(c.Request.Context(), userID, orgID, req.ContractIDs, req.AnalysisType)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			respond.Error(c, http.StatusForbidden, "forbidden", "one or more contracts are not accessible", nil)
			return
		}
		h.writeError(c, err, "failed to start batch analysis")
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"jobs": stubs})
}

func (h *Handler) batchStatus(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	jobs, histogram, err := h.Svc.GetBatchStatus(c.Request.Context(), userID, orgID)
	if err != nil {
		h.writeError(c, err, "failed to fetch batch status")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"jobs":      jobs,
		"histogram": histogram,
	})
}

type clearStuckRequest struct {
	ContractID   string `json:"contractId"`
	AnalysisType string `json:"analysisType"`
}

func (h *Handler) clearStuck(c *gin.Context) {
	var req clearStuckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if req.ContractID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contractId is required", nil)
		return
	}
	c.Set("contractId", req.ContractID)

	ids, err := h.Sweeper.ClearStuck(c.Request.Context(), req.ContractID, req.AnalysisType)
	if err != nil {
		h.writeError(c, err, "failed to clear stuck jobs")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"cleared": len(ids),
		"jobIds":  ids,
	})
}

// contractAnalyses is the diagnostic listing behind GET /analysis/clear-stuck.
func (h *Handler) contractAnalyses(c *gin.Context) {
	contractID := c.Query("contractId")
	if contractID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contractId is required", nil)
		return
	}
	c.Set("contractId", contractID)

	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	jobs, err := h.Svc.GetContractJobs(c.Request.Context(), contractID, userID, orgID)
	if err != nil {
		h.writeError(c, err, "failed to list contract analyses")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) adminJobQueues(c *gin.Context) {
	status, err := h.Svc.GetQueueStatus(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to fetch queue health")
		return
	}
	logs, err := h.Svc.Repo.RecentLogs(c.Request.Context(), logLimit(c))
	if err != nil {
		h.writeError(c, err, "failed to fetch queue health")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"queue":      status,
		"recentLogs": logs,
		"completed":  status.Counts[StatusCompleted],
		"failed":     status.Counts[StatusFailed],
	})
}

// writeError maps service errors to the HTTP taxonomy. Callers handle
// ErrForbidden themselves since the right status differs per endpoint.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var vErr *ValidationError
	var cErr *ConflictError
	switch {
	case errors.As(err, &vErr):
		respond.Error(c, http.StatusBadRequest, "validation_error", vErr.Message, []map[string]string{
			{"field": vErr.Field, "issue": vErr.Message},
		})
	case errors.As(err, &cErr):
		respond.Error(c, http.StatusConflict, "conflict", "analysis already in progress", gin.H{
			"analysisId": cErr.JobID,
		})
	case errors.Is(err, usage.ErrLimitReached):
		respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've reached your analysis limit. Upgrade your plan to continue.", []map[string]string{
			{"field": "usage", "issue": "limit_reached"},
		})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

func logLimit(c *gin.Context) int {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}
