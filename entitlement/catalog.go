package entitlement

import (
	"context"
	"errors"

	"clinic_backend/models"
)

// ErrPlanNotFound тарифный план отсутствует в каталоге
var ErrPlanNotFound = errors.New("тарифный план не найден")

// PlanCatalog источник тарифных планов только для чтения
type PlanCatalog interface {
	GetPlan(ctx context.Context, name string) (*models.Plan, error)
}

// Comparison результат сравнения двух тарифов
type Comparison int

const (
	Lower  Comparison = -1
	Equal  Comparison = 0
	Higher Comparison = 1
)

// ComparePlans сравнивает тариф a с тарифом b только по месячной цене
func ComparePlans(a, b *models.Plan) Comparison {
	switch {
	case a.PriceMonthly < b.PriceMonthly:
		return Lower
	case a.PriceMonthly > b.PriceMonthly:
		return Higher
	default:
		return Equal
	}
}

func (c Comparison) String() string {
	switch c {
	case Lower:
		return "lower"
	case Higher:
		return "higher"
	}
	return "equal"
}
