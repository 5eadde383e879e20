package models

import "time"

// AuditLog запись журнала аудита в пределах клиники
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   uint      `json:"tenant_id" gorm:"not null;index"`
	UserID     *uint     `json:"user_id" gorm:"index"`
	Action     string    `json:"action" gorm:"not null;index"`
	Resource   string    `json:"resource" gorm:"not null;index"`
	ResourceID *uint     `json:"resource_id" gorm:"index"`
	IPAddress  string    `json:"ip_address" gorm:"size:45"`
	Details    string    `json:"details" gorm:"type:text"`
	OldValues  string    `json:"old_values" gorm:"type:text"`
	NewValues  string    `json:"new_values" gorm:"type:text"`
	Success    bool      `json:"success" gorm:"index"`
	ErrorMsg   string    `json:"error_message" gorm:"size:1000"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// TableName задает имя таблицы для модели AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
