package api

import (
	"net/http"
	"strconv"
	"time"

	"clinic_backend/middleware"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// AuditHandler журнал аудита клиники (возможность audit_logs)
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler создает новый экземпляр AuditHandler
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GetAuditLogs возвращает записи аудита с фильтрами action, resource, user_id, from, to
// GET /api/audit-logs
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	page, limit, offset := pagination(c)

	filters := services.AuditFilters{
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Некорректный user_id")
			return
		}
		userID := uint(id)
		filters.UserID = &userID
	}
	for param, target := range map[string]*time.Time{"from": &filters.StartDate, "to": &filters.EndDate} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Дата должна быть в формате RFC3339: "+param)
			return
		}
		*target = parsed
	}

	logs, total, err := h.audit.GetAuditLogs(middleware.GetClinicID(c), filters)
	if err != nil {
		InternalError(c, "ошибка получения аудита", err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"items": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
