package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"clinic_backend/entitlement"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// SuperAdminHandler управление подписками всех клиник
type SuperAdminHandler struct {
	catalog *services.PlanCatalog
	subs    *services.SubscriptionService
}

// NewSuperAdminHandler создает новый экземпляр SuperAdminHandler
func NewSuperAdminHandler(catalog *services.PlanCatalog, subs *services.SubscriptionService) *SuperAdminHandler {
	return &SuperAdminHandler{catalog: catalog, subs: subs}
}

type overrideRequest struct {
	PlanID uint                      `json:"planId" binding:"required"`
	Status models.SubscriptionStatus `json:"status"`
}

// GetPlans возвращает каталог тарифов
// GET /api/superadmin/plans
func (h *SuperAdminHandler) GetPlans(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		InternalError(c, "ошибка получения тарифов", err)
		return
	}
	SuccessResponse(c, http.StatusOK, newPlanViews(plans))
}

// GetSubscriptions возвращает все клиники с тарифом, статусом и остатком пробного периода
// GET /api/superadmin/subscriptions
func (h *SuperAdminHandler) GetSubscriptions(c *gin.Context) {
	overview, err := h.subs.ListOverview(c.Request.Context())
	if err != nil {
		InternalError(c, "ошибка получения подписок", err)
		return
	}
	SuccessResponse(c, http.StatusOK, overview)
}

// OverrideSubscription назначает клинике тариф и статус в обход правил смены тарифа
// PATCH /api/superadmin/clinics/:clinicId/subscription
func (h *SuperAdminHandler) OverrideSubscription(c *gin.Context) {
	clinicID, err := parseUintParam(c, "clinicId")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Некорректный ID клиники")
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Требуется planId")
		return
	}

	sub, err := h.subs.AdminOverride(c.Request.Context(), clinicID, req.PlanID, req.Status)
	switch {
	case errors.Is(err, services.ErrInvalidStatus):
		ErrorResponse(c, http.StatusBadRequest, "Недопустимый статус подписки")
		return
	case errors.Is(err, entitlement.ErrPlanNotFound):
		ErrorResponse(c, http.StatusNotFound, "Тарифный план не найден")
		return
	case errors.Is(err, services.ErrClinicNotFound):
		ErrorResponse(c, http.StatusNotFound, "Клиника не найдена")
		return
	case err != nil:
		InternalError(c, "ошибка изменения подписки", err)
		return
	}

	SuccessResponse(c, http.StatusOK, sub)
}

// ExportSubscriptions выгружает сводку подписок в xlsx или pdf
// GET /api/superadmin/subscriptions/export?format=xlsx|pdf
func (h *SuperAdminHandler) ExportSubscriptions(c *gin.Context) {
	format := services.ExportFormat(c.DefaultQuery("format", string(services.ExportXLSX)))
	if format != services.ExportXLSX && format != services.ExportPDF {
		ErrorResponse(c, http.StatusBadRequest, "Формат должен быть xlsx или pdf")
		return
	}

	overview, err := h.subs.ListOverview(c.Request.Context())
	if err != nil {
		InternalError(c, "ошибка получения подписок", err)
		return
	}

	var buf bytes.Buffer
	if err := services.WriteSubscriptionsExport(&buf, format, overview); err != nil {
		InternalError(c, "ошибка формирования выгрузки", err)
		return
	}

	filename := fmt.Sprintf("subscriptions_%s.%s", h.subs.Now().Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
