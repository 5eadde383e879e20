package models

import (
	"time"
)

// Patient представляет пациента клиники
type Patient struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClinicID  uint       `json:"clinic_id" gorm:"not null;index"`
	FullName  string     `json:"full_name" gorm:"not null;type:varchar(150)"`
	Phone     string     `json:"phone" gorm:"type:varchar(30)"`
	BirthDate *time.Time `json:"birth_date"`
	Notes     string     `json:"notes" gorm:"type:text"`
}

// TableName задает имя таблицы для модели Patient
func (Patient) TableName() string {
	return "patients"
}
