package models

import (
	"time"
)

// User представляет модель пользователя в системе
type User struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Основные поля
	Email        string `json:"email" gorm:"uniqueIndex;not null;type:varchar(150)"`
	FullName     string `json:"full_name" gorm:"not null;type:varchar(150)"`
	PasswordHash string `json:"-" gorm:"not null"` // Хэш пароля не возвращается в JSON

	IsActive  bool       `json:"is_active" gorm:"default:true"`
	LastLogin *time.Time `json:"last_login"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// ClinicUser связывает пользователя с клиникой в определенной роли.
// Один пользователь может иметь несколько ролей в одной клинике.
type ClinicUser struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClinicID uint `json:"clinic_id" gorm:"not null;uniqueIndex:idx_clinic_user_role"`
	UserID   uint `json:"user_id" gorm:"not null;uniqueIndex:idx_clinic_user_role;index"`
	RoleID   uint `json:"role_id" gorm:"not null;uniqueIndex:idx_clinic_user_role"`

	User User `json:"user" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Role Role `json:"role" gorm:"foreignKey:RoleID"`

	IsActive bool `json:"is_active" gorm:"default:true;index"`
}

// TableName задает имя таблицы для модели ClinicUser
func (ClinicUser) TableName() string {
	return "clinic_users"
}
