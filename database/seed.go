package database

import (
	"fmt"
	"log"

	"clinic_backend/models"

	"gorm.io/gorm"
)

// DefaultPlans стартовый каталог тарифов
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			Name:         models.PlanStarter,
			PriceMonthly: 2900,
			PriceYearly:  29000,
			MaxDoctors:   models.Limit(1),
			MaxStaff:     models.Limit(2),
			MultiClinic:  false,
			Features:     []string{"appointments", "prescriptions", "basic_billing", "patient_records"},
		},
		{
			Name:         models.PlanGrowth,
			PriceMonthly: 5900,
			PriceYearly:  59000,
			MaxDoctors:   models.Limit(5),
			MaxStaff:     models.Limit(15),
			MultiClinic:  false,
			Features: []string{"appointments", "prescriptions", "billing", "inventory",
				"patient_records", "reports", "advanced_scheduling"},
		},
		{
			Name:         models.PlanPro,
			PriceMonthly: 12900,
			PriceYearly:  129000,
			MultiClinic:  true,
			Features: []string{"appointments", "prescriptions", "billing", "inventory",
				"patient_records", "reports", "advanced_scheduling", "multi_clinic",
				"audit_logs", "api_access", "priority_support"},
		},
	}
}

// DefaultRoles системные роли
func DefaultRoles() []models.Role {
	return []models.Role{
		{Name: models.RoleSuperAdmin, DisplayName: "Суперадминистратор", IsSystem: true},
		{Name: models.RoleAdmin, DisplayName: "Администратор клиники", IsSystem: true},
		{Name: models.RoleDoctor, DisplayName: "Врач", IsSystem: true},
		{Name: models.RoleReceptionist, DisplayName: "Регистратор", IsSystem: true},
	}
}

// SeedPlans создает отсутствующие тарифные планы. Существующие записи не изменяются.
func SeedPlans(db *gorm.DB) error {
	created := 0
	for _, plan := range DefaultPlans() {
		result := db.Where(models.Plan{Name: plan.Name}).FirstOrCreate(&plan)
		if result.Error != nil {
			return fmt.Errorf("ошибка создания тарифа %s: %w", plan.Name, result.Error)
		}
		created += int(result.RowsAffected)
	}
	if created > 0 {
		log.Printf("✅ Создано тарифных планов: %d", created)
	}
	return nil
}

// SeedRoles создает отсутствующие системные роли
func SeedRoles(db *gorm.DB) error {
	for _, role := range DefaultRoles() {
		if err := db.Where(models.Role{Name: role.Name}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("ошибка создания роли %s: %w", role.Name, err)
		}
	}
	return nil
}

// Seed выполняет все начальные заполнения
func Seed(db *gorm.DB) error {
	if err := SeedRoles(db); err != nil {
		return err
	}
	return SeedPlans(db)
}
