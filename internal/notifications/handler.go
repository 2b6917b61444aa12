package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.list)
	rg.POST("/notifications/:id/read", h.markRead)
}

func (h *Handler) list(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list notifications", nil)
		return
	}
	if items == nil {
		items = []Notification{}
	}
	respond.JSON(c, http.StatusOK, gin.H{"notifications": items})
}

func (h *Handler) markRead(c *gin.Context) {
	err := h.Svc.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "notification not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to mark notification read", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"read": c.Param("id")})
}
