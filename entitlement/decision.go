package entitlement

import (
	"fmt"

	"clinic_backend/models"
)

// Reason код причины отказа
type Reason string

const (
	ReasonNoSubscription              Reason = "NoSubscription"
	ReasonSubscriptionInactive        Reason = "SubscriptionInactive"
	ReasonTrialExpired                Reason = "TrialExpired"
	ReasonFeatureNotInPlan            Reason = "FeatureNotInPlan"
	ReasonDoctorLimitReached          Reason = "DoctorLimitReached"
	ReasonStaffLimitReached           Reason = "StaffLimitReached"
	ReasonUnknownPlan                 Reason = "UnknownPlan"
	ReasonNotAnUpgrade                Reason = "NotAnUpgrade"
	ReasonNotADowngrade               Reason = "NotADowngrade"
	ReasonDowngradeExceedsDoctorLimit Reason = "DowngradeExceedsDoctorLimit"
	ReasonDowngradeExceedsStaffLimit  Reason = "DowngradeExceedsStaffLimit"
	ReasonAlreadyCanceled             Reason = "AlreadyCanceled"
)

// Отказы, которые не решаются переходом на более дорогой тариф
var nonUpgradeReasons = map[Reason]bool{
	ReasonUnknownPlan:     true,
	ReasonNotAnUpgrade:    true,
	ReasonNotADowngrade:   true,
	ReasonAlreadyCanceled: true,
}

// RequiresUpgrade сообщает, поможет ли смена тарифа снять отказ
func (r Reason) RequiresUpgrade() bool {
	return !nonUpgradeReasons[r]
}

// Denial описание отказа с данными для подсказки в интерфейсе
type Denial struct {
	Reason        Reason                    `json:"reason_code"`
	CurrentStatus models.SubscriptionStatus `json:"current_status,omitempty"`
	Feature       string                    `json:"feature,omitempty"`
	CurrentPlan   string                    `json:"current_plan,omitempty"`
	TargetPlan    string                    `json:"target_plan,omitempty"`
	CurrentCount  *int64                    `json:"current_count,omitempty"`
	Limit         *int                      `json:"limit,omitempty"`
}

// Message возвращает текст отказа для пользователя
func (d Denial) Message() string {
	switch d.Reason {
	case ReasonNoSubscription:
		return "Активная подписка не найдена"
	case ReasonSubscriptionInactive:
		return "Подписка неактивна. Обновите платежные данные"
	case ReasonTrialExpired:
		return "Пробный период закончился. Перейдите на платный тариф, чтобы продолжить"
	case ReasonFeatureNotInPlan:
		return fmt.Sprintf("Возможность %q недоступна на тарифе %s", d.Feature, d.CurrentPlan)
	case ReasonDoctorLimitReached:
		return fmt.Sprintf("Тариф %s позволяет не более %d врачей. Перейдите на тариф выше", d.CurrentPlan, deref(d.Limit))
	case ReasonStaffLimitReached:
		return fmt.Sprintf("Тариф %s позволяет не более %d сотрудников. Перейдите на тариф выше", d.CurrentPlan, deref(d.Limit))
	case ReasonUnknownPlan:
		return fmt.Sprintf("Тарифный план %q не найден", d.TargetPlan)
	case ReasonNotAnUpgrade:
		return "Для перехода на более дешевый тариф используйте понижение тарифа"
	case ReasonNotADowngrade:
		return "Для перехода на более дорогой тариф используйте повышение тарифа"
	case ReasonDowngradeExceedsDoctorLimit:
		return fmt.Sprintf("Нельзя понизить тариф: врачей %d, а тариф %s позволяет только %d", derefCount(d.CurrentCount), d.TargetPlan, deref(d.Limit))
	case ReasonDowngradeExceedsStaffLimit:
		return fmt.Sprintf("Нельзя понизить тариф: сотрудников %d, а тариф %s позволяет только %d", derefCount(d.CurrentCount), d.TargetPlan, deref(d.Limit))
	case ReasonAlreadyCanceled:
		return "Подписка уже отменена"
	}
	return string(d.Reason)
}

// Decision результат проверки: разрешено или список отказов
type Decision struct {
	Allowed bool
	Denials []Denial

	// Target тарифный план, на который разрешен переход (только ChangePlan)
	Target *models.Plan
}

// Allow возвращает разрешающее решение
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny возвращает запрещающее решение с перечисленными отказами
func Deny(denials ...Denial) Decision {
	return Decision{Allowed: false, Denials: denials}
}

// Primary возвращает первый отказ решения
func (d Decision) Primary() (Denial, bool) {
	if len(d.Denials) == 0 {
		return Denial{}, false
	}
	return d.Denials[0], true
}

// HasReason проверяет наличие отказа с указанной причиной
func (d Decision) HasReason(reason Reason) bool {
	for _, denial := range d.Denials {
		if denial.Reason == reason {
			return true
		}
	}
	return false
}

// RequiresUpgrade true, если хотя бы один отказ снимается повышением тарифа
func (d Decision) RequiresUpgrade() bool {
	if d.Allowed {
		return false
	}
	for _, denial := range d.Denials {
		if denial.Reason.RequiresUpgrade() {
			return true
		}
	}
	return false
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefCount(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
