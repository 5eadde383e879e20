package services

import (
	"encoding/json"
	"fmt"
	"time"

	"clinic_backend/logger"
	"clinic_backend/models"

	"gorm.io/gorm"
)

// AuditAction типы действий для аудита
type AuditAction string

const (
	ActionSubscriptionUpgrade      AuditAction = "subscription.upgrade"
	ActionSubscriptionDowngrade    AuditAction = "subscription.downgrade"
	ActionSubscriptionCancel       AuditAction = "subscription.cancel"
	ActionSubscriptionOverride     AuditAction = "subscription.override"
	ActionSubscriptionTrialExpired AuditAction = "subscription.trial_expired"

	ActionStaffAdd        AuditAction = "staff.add"
	ActionStaffRemove     AuditAction = "staff.remove"
	ActionStaffRoleChange AuditAction = "staff.role_change"
)

// AuditService сервис для аудит логов
type AuditService struct {
	db *gorm.DB
}

// NewAuditService создает новый сервис аудита
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// WithTx возвращает сервис, пишущий в переданную транзакцию
func (as *AuditService) WithTx(tx *gorm.DB) *AuditService {
	return &AuditService{db: tx}
}

// AuditContext контекст для аудита
type AuditContext struct {
	TenantID   uint
	UserID     *uint
	IPAddress  string
	Action     AuditAction
	Resource   string
	ResourceID *uint
	OldValues  interface{}
	NewValues  interface{}
	Details    map[string]interface{}
	Success    bool
	ErrorMsg   string
}

// Log записывает аудит лог
func (as *AuditService) Log(ctx AuditContext) error {
	auditLog := &models.AuditLog{
		TenantID:   ctx.TenantID,
		UserID:     ctx.UserID,
		Action:     string(ctx.Action),
		Resource:   ctx.Resource,
		ResourceID: ctx.ResourceID,
		IPAddress:  ctx.IPAddress,
		Success:    ctx.Success,
		ErrorMsg:   ctx.ErrorMsg,
		Details:    marshalAuditValue(ctx.Details),
		OldValues:  marshalAuditValue(ctx.OldValues),
		NewValues:  marshalAuditValue(ctx.NewValues),
		CreatedAt:  time.Now(),
	}

	if err := as.db.Create(auditLog).Error; err != nil {
		logger.Error("не удалось записать аудит", "action", ctx.Action, "tenant_id", ctx.TenantID, "error", err)
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

// LogSuccess записывает успешное действие
func (as *AuditService) LogSuccess(ctx AuditContext) error {
	ctx.Success = true
	return as.Log(ctx)
}

// LogFailure записывает неуспешное действие
func (as *AuditService) LogFailure(ctx AuditContext, err error) error {
	ctx.Success = false
	ctx.ErrorMsg = err.Error()
	return as.Log(ctx)
}

func marshalAuditValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(map[string]interface{}); ok && m == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// AuditFilters фильтры для поиска аудит логов
type AuditFilters struct {
	UserID    *uint
	Action    string
	Resource  string
	Success   *bool
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	Offset    int
}

// GetAuditLogs получает аудит логи клиники с фильтрацией и пагинацией
func (as *AuditService) GetAuditLogs(tenantID uint, filters AuditFilters) ([]models.AuditLog, int64, error) {
	query := as.db.Model(&models.AuditLog{}).Where("tenant_id = ?", tenantID)

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if !filters.StartDate.IsZero() {
		query = query.Where("created_at >= ?", filters.StartDate)
	}
	if !filters.EndDate.IsZero() {
		query = query.Where("created_at <= ?", filters.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета аудит логов: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(filters.Offset).Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения аудит логов: %w", err)
	}
	return logs, total, nil
}
