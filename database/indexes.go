package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// PerformanceIndexes индексы для горячих запросов проверки подписки
var PerformanceIndexes = []DatabaseIndex{
	// Подсчет активного персонала при проверке лимитов
	{
		Name:    "idx_clinic_users_clinic_active",
		Table:   "clinic_users",
		Columns: []string{"clinic_id", "is_active", "role_id"},
	},
	// Поиск заканчивающихся пробных периодов для напоминаний
	{
		Name:    "idx_subscriptions_status_trial",
		Table:   "subscriptions",
		Columns: []string{"status", "trial_ends_at"},
	},
	{
		Name:    "idx_patients_clinic_created",
		Table:   "patients",
		Columns: []string{"clinic_id", "created_at"},
	},
	{
		Name:    "idx_audit_logs_tenant_created",
		Table:   "audit_logs",
		Columns: []string{"tenant_id", "created_at"},
	},
}

// CreatePerformanceIndexes создает индексы; ошибка одного индекса не прерывает остальные
func CreatePerformanceIndexes(db *gorm.DB) {
	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("⚠️ Не удалось создать индекс %s: %v", index.Name, err)
			continue
		}
	}
	log.Printf("✅ Индексы производительности созданы (%d)", len(PerformanceIndexes))
}

// CreateIndex создает отдельный B-tree индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	uniqueStr := ""
	if index.Unique {
		uniqueStr = "UNIQUE "
	}

	sql := fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
	)
	return db.Exec(sql).Error
}
