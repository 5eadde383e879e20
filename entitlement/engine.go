// Package entitlement решает, разрешает ли тариф клиники запрошенное действие.
// Пакет не обращается к базе данных: все состояние передается во входных данных.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_backend/models"
)

var (
	// ErrPlanMissing для решения требуется текущий тариф, но он не передан
	ErrPlanMissing = errors.New("текущий тарифный план не передан")
	// ErrUsageMissing для проверки лимитов не переданы счетчики сотрудников
	ErrUsageMissing = errors.New("данные об использовании не переданы")
	// ErrUnknownAction неизвестный тип действия
	ErrUnknownAction = errors.New("неизвестный тип действия")
)

// Usage текущее количество активных сотрудников клиники
type Usage struct {
	DoctorCount     int64 `json:"doctor_count"`
	TotalStaffCount int64 `json:"total_staff_count"`
}

// Input входные данные для принятия решения
type Input struct {
	Subscription *models.Subscription
	Plan         *models.Plan
	Usage        *Usage
	Action       Action

	// TrialJustExpired пробный период истек при текущем запросе
	TrialJustExpired bool
	Now              time.Time
}

// Engine движок проверки прав по тарифу
type Engine struct {
	catalog PlanCatalog
}

// NewEngine создает движок с каталогом тарифов
func NewEngine(catalog PlanCatalog) *Engine {
	return &Engine{catalog: catalog}
}

// ReconcileExpiry переводит подписку с истекшим пробным периодом в past_due.
// Исходная подписка не изменяется.
func ReconcileExpiry(sub models.Subscription, now time.Time) (models.Subscription, bool) {
	if !sub.TrialExpiredAt(now) {
		return sub, false
	}
	next := sub
	next.Status = models.SubscriptionPastDue
	next.TrialEndsAt = nil
	return next, true
}

// TrialDaysLeft количество оставшихся дней пробного периода
func TrialDaysLeft(sub *models.Subscription, now time.Time) *int {
	if sub == nil {
		return nil
	}
	return sub.TrialDaysLeft(now)
}

// Decide принимает решение по действию. Ошибка возвращается только при
// некорректных входных данных или сбое каталога, но не при отказе.
func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch in.Action.Kind {
	case ActionAccessResource:
		return checkAccess(in, now), nil

	case ActionUseFeature:
		if d := checkAccess(in, now); !d.Allowed {
			return d, nil
		}
		if in.Plan == nil {
			return Decision{}, ErrPlanMissing
		}
		if !in.Plan.HasFeature(in.Action.Feature) {
			return Deny(Denial{
				Reason:      ReasonFeatureNotInPlan,
				Feature:     in.Action.Feature,
				CurrentPlan: in.Plan.Name,
			}), nil
		}
		return Allow(), nil

	case ActionAddStaff:
		if d := checkAccess(in, now); !d.Allowed {
			return d, nil
		}
		if in.Plan == nil {
			return Decision{}, ErrPlanMissing
		}
		if in.Usage == nil {
			return Decision{}, ErrUsageMissing
		}
		return checkCapacity(in.Plan, *in.Usage, in.Action.Category), nil

	case ActionChangePlan:
		return e.checkPlanChange(ctx, in)
	}

	return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, in.Action.Kind)
}

// CheckCancel проверяет возможность отмены подписки
func (e *Engine) CheckCancel(sub *models.Subscription) Decision {
	if sub == nil {
		return Deny(Denial{Reason: ReasonNoSubscription})
	}
	if sub.Status == models.SubscriptionCanceled {
		return Deny(Denial{Reason: ReasonAlreadyCanceled, CurrentStatus: sub.Status})
	}
	return Allow()
}

func checkAccess(in Input, now time.Time) Decision {
	sub := in.Subscription
	if sub == nil {
		return Deny(Denial{Reason: ReasonNoSubscription})
	}
	if in.TrialJustExpired {
		return Deny(Denial{Reason: ReasonTrialExpired, CurrentStatus: sub.Status})
	}

	switch sub.Status {
	case models.SubscriptionCanceled, models.SubscriptionPastDue:
		return Deny(Denial{Reason: ReasonSubscriptionInactive, CurrentStatus: sub.Status})
	case models.SubscriptionTrialing:
		if sub.TrialExpiredAt(now) {
			return Deny(Denial{Reason: ReasonTrialExpired, CurrentStatus: sub.Status})
		}
	}
	return Allow()
}

func checkCapacity(plan *models.Plan, usage Usage, category models.RoleCategory) Decision {
	switch category {
	case models.CategoryDoctor:
		if plan.MaxDoctors != nil && usage.DoctorCount >= int64(*plan.MaxDoctors) {
			return Deny(Denial{
				Reason:       ReasonDoctorLimitReached,
				CurrentPlan:  plan.Name,
				CurrentCount: count(usage.DoctorCount),
				Limit:        plan.MaxDoctors,
			})
		}
	case models.CategoryGeneralStaff:
		if plan.MaxStaff != nil && usage.TotalStaffCount >= int64(*plan.MaxStaff) {
			return Deny(Denial{
				Reason:       ReasonStaffLimitReached,
				CurrentPlan:  plan.Name,
				CurrentCount: count(usage.TotalStaffCount),
				Limit:        plan.MaxStaff,
			})
		}
	}
	return Allow()
}

func (e *Engine) checkPlanChange(ctx context.Context, in Input) (Decision, error) {
	if in.Subscription == nil {
		return Deny(Denial{Reason: ReasonNoSubscription}), nil
	}
	current := in.Plan
	if current == nil {
		return Decision{}, ErrPlanMissing
	}

	targetName := in.Action.TargetPlan
	target, err := e.catalog.GetPlan(ctx, targetName)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return Deny(Denial{Reason: ReasonUnknownPlan, CurrentPlan: current.Name, TargetPlan: targetName}), nil
		}
		return Decision{}, fmt.Errorf("ошибка получения тарифа %s: %w", targetName, err)
	}
	if target == nil {
		return Deny(Denial{Reason: ReasonUnknownPlan, CurrentPlan: current.Name, TargetPlan: targetName}), nil
	}

	relation := ComparePlans(target, current)

	switch in.Action.Direction {
	case DirectionUpgrade:
		if relation != Higher {
			return Deny(Denial{Reason: ReasonNotAnUpgrade, CurrentPlan: current.Name, TargetPlan: target.Name}), nil
		}
	case DirectionDowngrade:
		if relation != Lower {
			return Deny(Denial{Reason: ReasonNotADowngrade, CurrentPlan: current.Name, TargetPlan: target.Name}), nil
		}
		if in.Usage == nil {
			return Decision{}, ErrUsageMissing
		}
		if denials := downgradeViolations(target, *in.Usage, current.Name); len(denials) > 0 {
			return Deny(denials...), nil
		}
	default:
		return Decision{}, fmt.Errorf("%w: направление %q", ErrUnknownAction, in.Action.Direction)
	}

	return Decision{Allowed: true, Target: target}, nil
}

// downgradeViolations проверяет оба лимита целевого тарифа и возвращает все нарушения
func downgradeViolations(target *models.Plan, usage Usage, currentName string) []Denial {
	var denials []Denial
	if target.MaxDoctors != nil && usage.DoctorCount > int64(*target.MaxDoctors) {
		denials = append(denials, Denial{
			Reason:       ReasonDowngradeExceedsDoctorLimit,
			CurrentPlan:  currentName,
			TargetPlan:   target.Name,
			CurrentCount: count(usage.DoctorCount),
			Limit:        target.MaxDoctors,
		})
	}
	if target.MaxStaff != nil && usage.TotalStaffCount > int64(*target.MaxStaff) {
		denials = append(denials, Denial{
			Reason:       ReasonDowngradeExceedsStaffLimit,
			CurrentPlan:  currentName,
			TargetPlan:   target.Name,
			CurrentCount: count(usage.TotalStaffCount),
			Limit:        target.MaxStaff,
		})
	}
	return denials
}

func count(v int64) *int64 {
	return &v
}
