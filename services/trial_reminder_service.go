package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"clinic_backend/config"
	"clinic_backend/logger"
	"clinic_backend/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// TrialReminderService по расписанию напоминает о заканчивающихся пробных периодах.
// Статус подписки не меняет: истечение обрабатывается при обращении клиники.
type TrialReminderService struct {
	db       *gorm.DB
	notifier Notifier
	cron     *cron.Cron
	schedule string
	window   time.Duration
	now      func() time.Time
}

// NewTrialReminderService создает новый экземпляр TrialReminderService
func NewTrialReminderService(db *gorm.DB, notifier Notifier, billing config.BillingConfig) *TrialReminderService {
	return &TrialReminderService{
		db:       db,
		notifier: notifier,
		cron:     cron.New(cron.WithSeconds()),
		schedule: billing.ReminderCron,
		window:   time.Duration(billing.ReminderDaysAhead) * 24 * time.Hour,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени (для тестов)
func (trs *TrialReminderService) WithClock(now func() time.Time) *TrialReminderService {
	trs.now = now
	return trs
}

// Start регистрирует задачу и запускает планировщик
func (trs *TrialReminderService) Start() error {
	_, err := trs.cron.AddFunc(trs.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		sent, err := trs.RunOnce(ctx)
		if err != nil {
			logger.Error("ошибка рассылки напоминаний", "error", err)
			return
		}
		logger.Info("напоминания о пробном периоде отправлены", "count", sent)
	})
	if err != nil {
		return fmt.Errorf("неверное расписание напоминаний %q: %w", trs.schedule, err)
	}

	trs.cron.Start()
	log.Printf("✅ Планировщик напоминаний запущен: %s", trs.schedule)
	return nil
}

// Stop останавливает планировщик и ждет завершения текущей задачи
func (trs *TrialReminderService) Stop() {
	<-trs.cron.Stop().Done()
}

// ExpiringTrials возвращает пробные подписки, заканчивающиеся в пределах окна
func (trs *TrialReminderService) ExpiringTrials(ctx context.Context) ([]models.Subscription, error) {
	now := trs.now()
	var subs []models.Subscription
	err := trs.db.WithContext(ctx).
		Preload("Plan").
		Where("status = ? AND trial_ends_at > ? AND trial_ends_at <= ?", models.SubscriptionTrialing, now, now.Add(trs.window)).
		Order("trial_ends_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска заканчивающихся пробных периодов: %w", err)
	}
	return subs, nil
}

// RunOnce отправляет по одному уведомлению на каждую найденную подписку.
// Ошибка доставки одного уведомления не прерывает рассылку.
func (trs *TrialReminderService) RunOnce(ctx context.Context) (int, error) {
	subs, err := trs.ExpiringTrials(ctx)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	clinicIDs := make([]uint, 0, len(subs))
	for _, sub := range subs {
		clinicIDs = append(clinicIDs, sub.ClinicID)
	}
	var clinics []models.Clinic
	if err := trs.db.WithContext(ctx).Where("id IN ?", clinicIDs).Find(&clinics).Error; err != nil {
		return 0, fmt.Errorf("ошибка получения клиник: %w", err)
	}
	byID := make(map[uint]models.Clinic, len(clinics))
	for _, clinic := range clinics {
		byID[clinic.ID] = clinic
	}

	now := trs.now()
	sent := 0
	for _, sub := range subs {
		clinic := byID[sub.ClinicID]
		notice := TrialNotice{
			ClinicID:    sub.ClinicID,
			ClinicName:  clinic.Name,
			ClinicEmail: clinic.Email,
			PlanName:    sub.Plan.Name,
		}
		if days := sub.TrialDaysLeft(now); days != nil {
			notice.DaysLeft = *days
		}
		if err := trs.notifier.NotifyTrialEnding(ctx, notice); err != nil {
			logger.Warn("не удалось отправить напоминание", "clinic_id", sub.ClinicID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
