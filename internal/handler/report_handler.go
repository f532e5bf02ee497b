package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-api/internal/service"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/response"
)

// ReportHandler exposes admin storage reporting endpoints.
type ReportHandler struct {
	service *service.ExportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ExportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Storage godoc
// @Summary Storage usage report
// @Description Per-category folder, document, version and byte totals. Admin only. The format query selects json (default), csv or pdf output.
// @Tags Reports
// @Produce json
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/storage [get]
func (h *ReportHandler) Storage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "json")
	if format == "json" {
		rows, err := h.service.StorageReport(c.Request.Context(), claims)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, rows, nil)
		return
	}

	payload, contentType, err := h.service.RenderStorageReport(c.Request.Context(), claims, service.ReportFormat(format))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("storage-report-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
