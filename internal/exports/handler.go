package exports

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
	"contracts-backend/internal/shared/telemetry"
)

const sheetName = "Contracts"

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/exports/contracts.xlsx", h.xlsx)
	rg.GET("/exports/contracts.csv", h.csv)
}

func (h *Handler) xlsx(c *gin.Context) {
	rows, ok := h.load(c)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(f.GetSheetName(0), sheetName)

	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, name)
	}
	for rowIdx, row := range rows {
		for colIdx, value := range row.values() {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="contracts.xlsx"`)
	c.Status(http.StatusOK)
	if _, err := f.WriteTo(c.Writer); err != nil {
		telemetry.Error("exports.write_failed", map[string]any{"format": "xlsx", "error": err.Error()})
		return
	}
	metrics.ExportsGenerated.WithLabelValues("xlsx").Inc()
}

func (h *Handler) csv(c *gin.Context) {
	rows, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="contracts.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(columns)
	for _, row := range rows {
		record := make([]string, 0, len(columns))
		for _, value := range row.values() {
			record = append(record, fmt.Sprint(value))
		}
		_ = w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		telemetry.Error("exports.write_failed", map[string]any{"format": "csv", "error": err.Error()})
		return
	}
	metrics.ExportsGenerated.WithLabelValues("csv").Inc()
}

func (h *Handler) load(c *gin.Context) ([]Row, bool) {
	userID := middleware.UserIDFromContext(c)
	orgID := middleware.OrgIDFromContext(c)
	rows, err := h.Svc.Rows(c.Request.Context(), userID, orgID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build export", nil)
		return nil, false
	}
	return rows, true
}
