package models

import (
	"math"
	"time"
)

// SubscriptionStatus статус подписки клиники
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// IsValid проверяет, что статус входит в допустимый набор
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// Subscription представляет подписку клиники на тарифный план.
// На одну клинику всегда приходится ровно одна запись.
type Subscription struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Связи
	ClinicID uint `json:"clinic_id" gorm:"not null;uniqueIndex"`
	PlanID   uint `json:"plan_id" gorm:"not null;index"`
	Plan     Plan `json:"plan" gorm:"foreignKey:PlanID"`

	Status      SubscriptionStatus `json:"status" gorm:"not null;default:'trialing';type:varchar(20);index"`
	TrialEndsAt *time.Time         `json:"trial_ends_at"`

	// Период подписки
	StartsAt time.Time  `json:"starts_at" gorm:"not null"`
	EndsAt   *time.Time `json:"ends_at"`
}

// TableName задает имя таблицы для модели Subscription
func (Subscription) TableName() string {
	return "subscriptions"
}

// IsTrialing проверяет, находится ли подписка в пробном периоде
func (s *Subscription) IsTrialing() bool {
	return s.Status == SubscriptionTrialing
}

// TrialExpiredAt проверяет, истек ли пробный период на момент now
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	return s.IsTrialing() && s.TrialEndsAt != nil && now.After(*s.TrialEndsAt)
}

// TrialDaysLeft возвращает количество оставшихся дней пробного периода.
// Округление вверх, не меньше нуля; nil если подписка не в пробном периоде.
func (s *Subscription) TrialDaysLeft(now time.Time) *int {
	if !s.IsTrialing() || s.TrialEndsAt == nil {
		return nil
	}
	days := int(math.Ceil(s.TrialEndsAt.Sub(now).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}
