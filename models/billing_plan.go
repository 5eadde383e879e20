package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Названия тарифных планов из стартового каталога
const (
	PlanStarter = "STARTER"
	PlanGrowth  = "GROWTH"
	PlanPro     = "PRO"
)

// Plan представляет тарифный план клиники
type Plan struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex;not null;type:varchar(50)"`

	// Цены в минимальных единицах валюты (центы)
	PriceMonthly int64 `json:"price_monthly" gorm:"not null"`
	PriceYearly  int64 `json:"price_yearly" gorm:"not null"`

	// Лимиты: nil = безлимитно
	MaxDoctors *int `json:"max_doctors"`
	MaxStaff   *int `json:"max_staff"` // все роли кроме ADMIN и SUPER_ADMIN

	MultiClinic bool                        `json:"multi_clinic" gorm:"default:false"`
	Features    datatypes.JSONSlice[string] `json:"features"`
}

// TableName задает имя таблицы для модели Plan
func (Plan) TableName() string {
	return "plans"
}

// HasFeature проверяет, входит ли возможность в тарифный план
func (p *Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// IsUnlimitedDoctors проверяет, снят ли лимит на врачей
func (p *Plan) IsUnlimitedDoctors() bool {
	return p.MaxDoctors == nil
}

// IsUnlimitedStaff проверяет, снят ли лимит на персонал
func (p *Plan) IsUnlimitedStaff() bool {
	return p.MaxStaff == nil
}

// Limit возвращает указатель на лимит, удобно для сидов и тестов
func Limit(n int) *int {
	return &n
}
