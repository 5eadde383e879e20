package api

import (
	"net/http"
	"time"

	"clinic_backend/middleware"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// ReportHandler отчеты клиники (возможность reports)
type ReportHandler struct {
	patients *services.PatientService
	now      func() time.Time
}

// NewReportHandler создает новый экземпляр ReportHandler
func NewReportHandler(patients *services.PatientService, now func() time.Time) *ReportHandler {
	if now == nil {
		now = time.Now
	}
	return &ReportHandler{patients: patients, now: now}
}

// GetSummary возвращает число пациентов и персонала
// GET /api/reports/summary
func (h *ReportHandler) GetSummary(c *gin.Context) {
	summary, err := h.patients.Summary(c.Request.Context(), middleware.GetClinicID(c), h.now())
	if err != nil {
		InternalError(c, "ошибка построения отчета", err)
		return
	}

	response := gin.H{"summary": summary}
	if plan := middleware.GetCurrentPlan(c); plan != nil {
		response["plan"] = plan.Name
	}
	SuccessResponse(c, http.StatusOK, response)
}
