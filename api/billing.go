package api

import (
	"errors"
	"net/http"

	"clinic_backend/entitlement"
	"clinic_backend/logger"
	"clinic_backend/middleware"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Периоды оплаты
const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

// BillingHandler тарифы и управление подпиской клиники
type BillingHandler struct {
	catalog *services.PlanCatalog
	subs    *services.SubscriptionService
}

// NewBillingHandler создает новый экземпляр BillingHandler
func NewBillingHandler(catalog *services.PlanCatalog, subs *services.SubscriptionService) *BillingHandler {
	return &BillingHandler{catalog: catalog, subs: subs}
}

// PlanView тариф с ценами в минимальных единицах и в виде десятичной строки
type PlanView struct {
	models.Plan
	PriceMonthlyDisplay string `json:"price_monthly_display"`
	PriceYearlyDisplay  string `json:"price_yearly_display"`
}

func newPlanViews(plans []models.Plan) []PlanView {
	views := make([]PlanView, 0, len(plans))
	for _, plan := range plans {
		views = append(views, PlanView{
			Plan:                plan,
			PriceMonthlyDisplay: services.FormatPrice(plan.PriceMonthly),
			PriceYearlyDisplay:  services.FormatPrice(plan.PriceYearly),
		})
	}
	return views
}

type upgradeRequest struct {
	PlanName     string `json:"planName" binding:"required"`
	BillingCycle string `json:"billingCycle" binding:"required,oneof=monthly yearly"`
}

type downgradeRequest struct {
	PlanName string `json:"planName" binding:"required"`
}

// GetPlans возвращает тарифы, упорядоченные по цене
// GET /api/billing/plans
func (h *BillingHandler) GetPlans(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		InternalError(c, "ошибка получения тарифов", err)
		return
	}
	SuccessResponse(c, http.StatusOK, newPlanViews(plans))
}

// GetSubscription возвращает подписку клиники и текущее использование
// GET /api/billing/subscription
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	details, err := h.subs.Details(c.Request.Context(), middleware.GetClinicID(c))
	if errors.Is(err, services.ErrSubscriptionNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Подписка не найдена")
		return
	}
	if err != nil {
		InternalError(c, "ошибка получения подписки", err)
		return
	}
	SuccessResponse(c, http.StatusOK, details)
}

// Upgrade переводит клинику на более дорогой тариф.
// Оплата имитируется и только логируется.
// POST /api/billing/upgrade
func (h *BillingHandler) Upgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Требуются planName и billingCycle (monthly или yearly)")
		return
	}

	ctx := c.Request.Context()
	clinicID := middleware.GetClinicID(c)

	sub, decision, err := h.subs.ChangePlan(ctx, clinicID, req.PlanName, entitlement.DirectionUpgrade)
	if err != nil {
		InternalError(c, "ошибка повышения тарифа", err)
		return
	}
	if !decision.Allowed {
		middleware.RenderDenial(c, decision)
		return
	}

	amount := decision.Target.PriceMonthly
	if req.BillingCycle == BillingCycleYearly {
		amount = decision.Target.PriceYearly
	}
	logger.FromContext(ctx).Info("имитация оплаты тарифа",
		"clinic_id", clinicID,
		"plan", decision.Target.Name,
		"billing_cycle", req.BillingCycle,
		"amount", decimal.New(amount, -2).String(),
	)

	SuccessResponse(c, http.StatusOK, gin.H{
		"subscription": sub,
		"message":      "Тариф повышен до " + decision.Target.Name,
		"payment": gin.H{
			"amount":        services.FormatPrice(amount),
			"billing_cycle": req.BillingCycle,
			"mock":          true,
		},
	})
}

// Downgrade переводит клинику на более дешевый тариф, если текущий персонал укладывается в лимиты
// POST /api/billing/downgrade
func (h *BillingHandler) Downgrade(c *gin.Context) {
	var req downgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Требуется planName")
		return
	}

	sub, decision, err := h.subs.ChangePlan(c.Request.Context(), middleware.GetClinicID(c), req.PlanName, entitlement.DirectionDowngrade)
	if err != nil {
		InternalError(c, "ошибка понижения тарифа", err)
		return
	}
	if !decision.Allowed {
		middleware.RenderDenial(c, decision)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"subscription": sub,
		"message":      "Тариф понижен до " + decision.Target.Name,
	})
}

// Cancel отменяет подписку с сохранением доступа до конца льготного периода
// POST /api/billing/cancel
func (h *BillingHandler) Cancel(c *gin.Context) {
	sub, decision, err := h.subs.Cancel(c.Request.Context(), middleware.GetClinicID(c))
	if err != nil {
		InternalError(c, "ошибка отмены подписки", err)
		return
	}
	if !decision.Allowed {
		middleware.RenderDenial(c, decision)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"subscription": sub,
		"message":      "Подписка отменена",
	})
}
