package organizations

import (
	"errors"
	"net/http"

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
	rg.POST("/organizations", h.create)
	rg.GET("/organizations/:id/members", h.listMembers)
	rg.POST("/organizations/:id/members", h.addMember)
	rg.DELETE("/organizations/:id/members/:userId", h.removeMember)
}

func (h *Handler) create(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	org, err := h.Svc.Create(c.Request.Context(), middleware.UserIDFromContext(c), req.Name)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	respond.JSON(c, http.StatusCreated, org)
}

func (h *Handler) listMembers(c *gin.Context) {
	members, err := h.Svc.ListMembers(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"members": members})
}

func (h *Handler) addMember(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "userId is required", nil)
		return
	}

	err := h.Svc.AddMember(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"added": req.UserID})
}

func (h *Handler) removeMember(c *gin.Context) {
	err := h.Svc.RemoveMember(c.Request.Context(), c.Param("id"), middleware.UserIDFromContext(c), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"removed": c.Param("userId")})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "organization membership required", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "organization or member not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "operation failed", nil)
	}
}
