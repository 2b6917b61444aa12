package contracts

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
)

// maxUploadBytes caps multipart contract uploads.
const maxUploadBytes = 25 << 20

// maxPageSize caps the list page size a client can request.
const maxPageSize = 100

// Handler wires HTTP handlers to the contracts service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches contract routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contracts", h.upload)
	rg.GET("/contracts", h.list)
	rg.GET("/contracts/:id", h.get)
	rg.GET("/contracts/:id/download", h.download)
	rg.DELETE("/contracts/:id", h.remove)
	rg.POST("/contracts/presign-upload", h.presignUpload)
	rg.POST("/contracts/register-upload", h.registerUpload)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	defer file.Close()

	title := c.PostForm("title")
	contract, err := h.Svc.Upload(c.Request.Context(), userID, orgID, title, header.Filename, file)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to upload contract", nil)
		return
	}

	c.Set("contractId", contract.ID)
	respond.JSON(c, http.StatusCreated, contract)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	limit := intQuery(c, "limit", 20)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := intQuery(c, "offset", 0)

	contractsList, err := h.Svc.List(c.Request.Context(), userID, orgID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list contracts", nil)
		return
	}
	respond.OK(c, gin.H{"contracts": contractsList})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	contractID := c.Param("id")
	c.Set("contractId", contractID)

	contract, err := h.Svc.Get(c.Request.Context(), contractID, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch contract", nil)
		return
	}
	respond.OK(c, contract)
}

func (h *Handler) download(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	contractID := c.Param("id")
	c.Set("contractId", contractID)

	rc, contract, err := h.Svc.OpenDocument(c.Request.Context(), contractID, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to download contract", nil)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+contract.FileName+`"`)
	c.Header("Content-Type", contract.MimeType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	contractID := c.Param("id")
	c.Set("contractId", contractID)

	if err := h.Svc.Delete(c.Request.Context(), contractID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "contract not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete contract", nil)
		return
	}
	respond.NoContent(c)
}

type presignUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

func (h *Handler) presignUpload(c *gin.Context) {
	var req presignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)

	url, storageKey, err := h.Svc.PresignUpload(c.Request.Context(), userID, req.FileName, req.ContentType)
	if err != nil {
		if errors.Is(err, ErrPresignUnavailable) {
			respond.Error(c, http.StatusNotImplemented, "not_supported", "presigned uploads are not available", nil)
			return
		}
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to presign upload", nil)
		return
	}
	respond.OK(c, gin.H{
		"uploadUrl":  url,
		"storageKey": storageKey,
	})
}

type registerUploadRequest struct {
	Title      string `json:"title"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	SizeBytes  int64  `json:"sizeBytes"`
	StorageKey string `json:"storageKey"`
}

func (h *Handler) registerUpload(c *gin.Context) {
	var req registerUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)

	contract, err := h.Svc.RegisterUploaded(c.Request.Context(), userID, orgID, req.Title, req.FileName, req.MimeType, req.StorageKey, req.SizeBytes)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "fileName and storageKey are required", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register contract", nil)
		return
	}

	c.Set("contractId", contract.ID)
	respond.JSON(c, http.StatusCreated, contract)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
