package services

import (
	"context"
	"fmt"
	"time"

	"clinic_backend/models"

	"gorm.io/gorm"
)

// PatientService работа с пациентами клиники
type PatientService struct {
	db *gorm.DB
}

// NewPatientService создает новый экземпляр PatientService
func NewPatientService(db *gorm.DB) *PatientService {
	return &PatientService{db: db}
}

// List возвращает пациентов клиники с пагинацией
func (ps *PatientService) List(ctx context.Context, clinicID uint, limit, offset int) ([]models.Patient, int64, error) {
	query := ps.db.WithContext(ctx).Model(&models.Patient{}).Where("clinic_id = ?", clinicID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета пациентов: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var patients []models.Patient
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&patients).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка получения пациентов: %w", err)
	}
	return patients, total, nil
}

// Create добавляет пациента в клинику
func (ps *PatientService) Create(ctx context.Context, patient *models.Patient) error {
	if err := ps.db.WithContext(ctx).Create(patient).Error; err != nil {
		return fmt.Errorf("ошибка создания пациента: %w", err)
	}
	return nil
}

// ClinicSummary сводные показатели клиники
type ClinicSummary struct {
	PatientsTotal  int64 `json:"patients_total"`
	PatientsLast30 int64 `json:"patients_last_30_days"`
	DoctorCount    int64 `json:"doctor_count"`
	StaffCount     int64 `json:"staff_count"`
}

// Summary считает пациентов и персонал клиники
func (ps *PatientService) Summary(ctx context.Context, clinicID uint, now time.Time) (*ClinicSummary, error) {
	db := ps.db.WithContext(ctx)
	summary := &ClinicSummary{}

	if err := db.Model(&models.Patient{}).Where("clinic_id = ?", clinicID).Count(&summary.PatientsTotal).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета пациентов: %w", err)
	}
	if err := db.Model(&models.Patient{}).
		Where("clinic_id = ? AND created_at >= ?", clinicID, now.AddDate(0, 0, -30)).
		Count(&summary.PatientsLast30).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета новых пациентов: %w", err)
	}

	usage, err := countUsage(db, clinicID)
	if err != nil {
		return nil, err
	}
	summary.DoctorCount = usage.DoctorCount
	summary.StaffCount = usage.TotalStaffCount
	return summary, nil
}
