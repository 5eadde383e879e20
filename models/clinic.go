package models

import (
	"time"
)

// Clinic представляет клинику (tenant) в мультитенантной системе
type Clinic struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Основные поля клиники
	Name string `json:"name" gorm:"not null;type:varchar(150)"`
	Slug string `json:"slug" gorm:"uniqueIndex;not null;type:varchar(160)"`

	// Контактная информация
	Email   string `json:"email" gorm:"type:varchar(150)"`
	Phone   string `json:"phone" gorm:"type:varchar(30)"`
	Address string `json:"address" gorm:"type:text"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	// Подписка удаляется вместе с клиникой
	Subscription *Subscription `json:"subscription,omitempty" gorm:"foreignKey:ClinicID;constraint:OnDelete:CASCADE"`
	Staff        []ClinicUser  `json:"staff,omitempty" gorm:"foreignKey:ClinicID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели Clinic
func (Clinic) TableName() string {
	return "clinics"
}
