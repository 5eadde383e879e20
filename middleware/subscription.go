package middleware

import (
	"errors"
	"net/http"

	"clinic_backend/entitlement"
	"clinic_backend/logger"
	"clinic_backend/models"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	ContextSubscription = "subscription"
	ContextPlan         = "plan"
)

// ActionResolver определяет проверяемое действие по запросу.
// Ошибка считается ошибкой валидации запроса.
type ActionResolver func(c *gin.Context) (entitlement.Action, error)

// SubscriptionGate проверяет права клиники по тарифу перед обработчиком
type SubscriptionGate struct {
	subs   *services.SubscriptionService
	engine *entitlement.Engine
}

// NewSubscriptionGate создает новый экземпляр SubscriptionGate
func NewSubscriptionGate(subs *services.SubscriptionService, engine *entitlement.Engine) *SubscriptionGate {
	return &SubscriptionGate{subs: subs, engine: engine}
}

// Enforce загружает подписку, сверяет пробный период и применяет решение движка.
// При отказе отвечает 403 без вызова обработчика, при сбое инфраструктуры 500.
func (g *SubscriptionGate) Enforce(resolve ActionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		clinicID := GetClinicID(c)
		if clinicID == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "Клиника не определена",
			})
			return
		}

		action, err := resolve(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}

		ctx := c.Request.Context()

		sub, err := g.subs.GetByClinic(ctx, clinicID)
		if err != nil {
			abortInternal(c, "ошибка загрузки подписки", err, clinicID)
			return
		}

		sub, justExpired, err := g.subs.ReconcileExpiry(ctx, sub)
		if err != nil {
			abortInternal(c, "ошибка сверки пробного периода", err, clinicID)
			return
		}

		in := entitlement.Input{
			Subscription:     sub,
			Action:           action,
			TrialJustExpired: justExpired,
			Now:              g.subs.Now(),
		}
		if sub != nil {
			in.Plan = &sub.Plan
			// Счетчики нужны только для проверки лимитов
			if action.Kind == entitlement.ActionAddStaff {
				usage, err := g.subs.Usage(ctx, clinicID)
				if err != nil {
					abortInternal(c, "ошибка подсчета персонала", err, clinicID)
					return
				}
				in.Usage = &usage
			}
		}

		decision, err := g.engine.Decide(ctx, in)
		if err != nil {
			abortInternal(c, "ошибка проверки прав", err, clinicID)
			return
		}

		if !decision.Allowed {
			RenderDenial(c, decision)
			return
		}

		c.Set(ContextSubscription, sub)
		c.Set(ContextPlan, in.Plan)
		c.Next()
	}
}

// RequireActiveSubscription блокирует доступ при неактивной подписке
func (g *SubscriptionGate) RequireActiveSubscription() gin.HandlerFunc {
	return g.Enforce(func(*gin.Context) (entitlement.Action, error) {
		return entitlement.Access(), nil
	})
}

// RequirePlanFeature требует наличия возможности в тарифе
func (g *SubscriptionGate) RequirePlanFeature(feature string) gin.HandlerFunc {
	return g.Enforce(func(*gin.Context) (entitlement.Action, error) {
		return entitlement.Feature(feature), nil
	})
}

// RequireStaffCapacity проверяет лимиты тарифа для добавляемой роли
func (g *SubscriptionGate) RequireStaffCapacity(roleOf func(*gin.Context) (string, error)) gin.HandlerFunc {
	return g.Enforce(func(c *gin.Context) (entitlement.Action, error) {
		role, err := roleOf(c)
		if err != nil {
			return entitlement.Action{}, err
		}
		if category, ok := models.CategoryForRole(role); ok {
			return entitlement.AddStaffAction(category), nil
		}
		return entitlement.Access(), nil
	})
}

// StaffRoleFromBody читает поле role из JSON тела; тело остается доступным обработчику
func StaffRoleFromBody(c *gin.Context) (string, error) {
	var body struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return "", errors.New("некорректное тело запроса")
	}
	if body.Role == "" {
		return "", errors.New("поле role обязательно")
	}
	return body.Role, nil
}

type denialView struct {
	entitlement.Denial
	Message string `json:"message"`
}

// RenderDenial отвечает 403 с причиной отказа и признаком необходимости повысить тариф
func RenderDenial(c *gin.Context, decision entitlement.Decision) {
	primary, _ := decision.Primary()

	denials := make([]denialView, 0, len(decision.Denials))
	for _, d := range decision.Denials {
		denials = append(denials, denialView{Denial: d, Message: d.Message()})
	}

	body := gin.H{
		"status":           "error",
		"allowed":          false,
		"reason_code":      primary.Reason,
		"requires_upgrade": decision.RequiresUpgrade(),
		"error":            primary.Message(),
		"denials":          denials,
	}
	if primary.CurrentStatus != "" {
		body["current_status"] = primary.CurrentStatus
	}
	if primary.Feature != "" {
		body["feature"] = primary.Feature
	}
	if primary.CurrentPlan != "" {
		body["current_plan"] = primary.CurrentPlan
	}
	if primary.TargetPlan != "" {
		body["target_plan"] = primary.TargetPlan
	}
	if primary.CurrentCount != nil {
		body["current_count"] = *primary.CurrentCount
	}
	if primary.Limit != nil {
		body["limit"] = *primary.Limit
	}

	c.AbortWithStatusJSON(http.StatusForbidden, body)
}

func abortInternal(c *gin.Context, msg string, err error, clinicID uint) {
	logger.CtxError(c.Request.Context(), msg, err, "clinic_id", clinicID, "path", c.FullPath())
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"status": "error",
		"error":  "Внутренняя ошибка сервера",
	})
}

// GetCurrentSubscription возвращает подписку, загруженную проверкой доступа
func GetCurrentSubscription(c *gin.Context) *models.Subscription {
	if value, exists := c.Get(ContextSubscription); exists {
		if sub, ok := value.(*models.Subscription); ok {
			return sub
		}
	}
	return nil
}

// GetCurrentPlan возвращает тариф текущей подписки
func GetCurrentPlan(c *gin.Context) *models.Plan {
	if value, exists := c.Get(ContextPlan); exists {
		if plan, ok := value.(*models.Plan); ok {
			return plan
		}
	}
	return nil
}
