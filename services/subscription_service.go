package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_backend/config"
	"clinic_backend/entitlement"
	"clinic_backend/logger"
	"clinic_backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionService управляет подписками клиник и применяет решения движка прав
type SubscriptionService struct {
	db      *gorm.DB
	catalog *PlanCatalog
	engine  *entitlement.Engine
	audit   *AuditService
	billing config.BillingConfig
	now     func() time.Time
}

// NewSubscriptionService создает новый экземпляр SubscriptionService
func NewSubscriptionService(db *gorm.DB, catalog *PlanCatalog, engine *entitlement.Engine, audit *AuditService, billing config.BillingConfig) *SubscriptionService {
	return &SubscriptionService{
		db:      db,
		catalog: catalog,
		engine:  engine,
		audit:   audit,
		billing: billing,
		now:     time.Now,
	}
}

// WithClock подменяет источник времени (для тестов)
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

// Now возвращает текущее время сервиса
func (s *SubscriptionService) Now() time.Time {
	return s.now()
}

// SubscriptionDetails сведения о подписке для экрана оплаты
type SubscriptionDetails struct {
	Subscription  *models.Subscription `json:"subscription"`
	Usage         entitlement.Usage    `json:"usage"`
	TrialDaysLeft *int                 `json:"trial_days_left"`
	HasAccess     bool                 `json:"has_access"`
}

// SubscriptionOverview строка сводного списка подписок для суперадминистратора
type SubscriptionOverview struct {
	ClinicID      uint                      `json:"clinic_id"`
	ClinicName    string                    `json:"clinic_name"`
	ClinicSlug    string                    `json:"clinic_slug"`
	PlanName      string                    `json:"plan_name"`
	PriceMonthly  int64                     `json:"price_monthly"`
	Status        models.SubscriptionStatus `json:"status"`
	TrialEndsAt   *time.Time                `json:"trial_ends_at"`
	TrialDaysLeft *int                      `json:"trial_days_left"`
	EndsAt        *time.Time                `json:"ends_at"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// GetByClinic возвращает подписку клиники вместе с тарифом; (nil, nil) если подписки нет
func (s *SubscriptionService) GetByClinic(ctx context.Context, clinicID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Preload("Plan").Where("clinic_id = ?", clinicID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения подписки клиники %d: %w", clinicID, err)
	}
	return &sub, nil
}

// CreateTrial создает или пересоздает пробную подписку клиники на тарифе по умолчанию
func (s *SubscriptionService) CreateTrial(ctx context.Context, tx *gorm.DB, clinicID uint) (*models.Subscription, error) {
	plan, err := s.catalog.GetPlan(ctx, s.billing.DefaultPlan)
	if err != nil {
		return nil, fmt.Errorf("тариф по умолчанию %s: %w", s.billing.DefaultPlan, err)
	}

	now := s.now()
	trialEndsAt := now.AddDate(0, 0, s.billing.TrialDays)

	var sub models.Subscription
	err = tx.WithContext(ctx).Where("clinic_id = ?", clinicID).First(&sub).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = models.Subscription{
			ClinicID:    clinicID,
			PlanID:      plan.ID,
			Status:      models.SubscriptionTrialing,
			TrialEndsAt: &trialEndsAt,
			StartsAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("ошибка создания подписки: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("ошибка получения подписки: %w", err)
	default:
		err := tx.WithContext(ctx).Model(&models.Subscription{ID: sub.ID}).Updates(map[string]interface{}{
			"plan_id":       plan.ID,
			"status":        models.SubscriptionTrialing,
			"trial_ends_at": trialEndsAt,
			"starts_at":     now,
			"ends_at":       nil,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("ошибка обновления подписки: %w", err)
		}
		sub.TrialEndsAt = &trialEndsAt
		sub.EndsAt = nil
	}

	sub.Plan = *plan
	return &sub, nil
}

// ReconcileExpiry переводит подписку с истекшим пробным периодом в past_due.
// Переход сохраняется условным UPDATE, поэтому срабатывает ровно один раз.
// Возвращает актуальную подписку и признак того, что переход выполнен этим вызовом.
func (s *SubscriptionService) ReconcileExpiry(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	if sub == nil {
		return nil, false, nil
	}

	next, expired := entitlement.ReconcileExpiry(*sub, s.now())
	if !expired {
		return sub, false, nil
	}

	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, models.SubscriptionTrialing).
		Updates(map[string]interface{}{
			"status":        models.SubscriptionPastDue,
			"trial_ends_at": nil,
		})
	if result.Error != nil {
		return nil, false, fmt.Errorf("ошибка сохранения окончания пробного периода: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Переход уже выполнен параллельным запросом
		fresh, err := s.GetByClinic(ctx, sub.ClinicID)
		return fresh, false, err
	}

	logger.Info("пробный период истек", "clinic_id", sub.ClinicID, "subscription_id", sub.ID)
	err := s.audit.LogSuccess(AuditContext{
		TenantID:   sub.ClinicID,
		Action:     ActionSubscriptionTrialExpired,
		Resource:   "subscription",
		ResourceID: &sub.ID,
		OldValues:  map[string]interface{}{"status": sub.Status, "trial_ends_at": sub.TrialEndsAt},
		NewValues:  map[string]interface{}{"status": next.Status},
	})
	if err != nil {
		// Переход уже сохранен
		logger.Warn("не удалось записать аудит окончания пробного периода",
			"clinic_id", sub.ClinicID, "subscription_id", sub.ID, "error", err)
	}

	return &next, true, nil
}

// Usage считает активный персонал клиники
func (s *SubscriptionService) Usage(ctx context.Context, clinicID uint) (entitlement.Usage, error) {
	return countUsage(s.db.WithContext(ctx), clinicID)
}

func countUsage(db *gorm.DB, clinicID uint) (entitlement.Usage, error) {
	var usage entitlement.Usage
	activeLinks := func() *gorm.DB {
		return db.Model(&models.ClinicUser{}).
			Joins("JOIN roles ON roles.id = clinic_users.role_id").
			Where("clinic_users.clinic_id = ? AND clinic_users.is_active = ?", clinicID, true)
	}

	if err := activeLinks().Where("roles.name = ?", models.RoleDoctor).Count(&usage.DoctorCount).Error; err != nil {
		return usage, fmt.Errorf("ошибка подсчета врачей: %w", err)
	}
	if err := activeLinks().Where("roles.name NOT IN ?", models.AdministrativeRoles).Count(&usage.TotalStaffCount).Error; err != nil {
		return usage, fmt.Errorf("ошибка подсчета персонала: %w", err)
	}
	return usage, nil
}

// lockSubscription читает подписку клиники с блокировкой строки до конца транзакции
func lockSubscription(tx *gorm.DB, clinicID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("clinic_id = ?", clinicID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки подписки: %w", err)
	}
	if err := tx.First(&sub.Plan, sub.PlanID).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения тарифа подписки: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionService) reload(tx *gorm.DB, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := tx.Preload("Plan").First(&sub, id).Error; err != nil {
		return nil, fmt.Errorf("ошибка чтения подписки: %w", err)
	}
	return &sub, nil
}

// ChangePlan переводит клинику на другой тариф по правилам повышения или понижения.
// Отказ движка возвращается в Decision без ошибки.
func (s *SubscriptionService) ChangePlan(ctx context.Context, clinicID uint, targetName string, direction entitlement.Direction) (*models.Subscription, entitlement.Decision, error) {
	var (
		updated  *models.Subscription
		decision entitlement.Decision
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(tx, clinicID)
		if err != nil {
			return err
		}

		in := entitlement.Input{
			Subscription: sub,
			Action:       entitlement.ChangePlanAction(targetName, direction),
			Now:          s.now(),
		}
		if sub != nil {
			in.Plan = &sub.Plan
			if direction == entitlement.DirectionDowngrade {
				usage, err := countUsage(tx, clinicID)
				if err != nil {
					return err
				}
				in.Usage = &usage
			}
		}

		decision, err = s.engine.Decide(ctx, in)
		if err != nil {
			return err
		}
		action := ActionSubscriptionDowngrade
		if direction == entitlement.DirectionUpgrade {
			action = ActionSubscriptionUpgrade
		}
		if !decision.Allowed {
			return s.logDenied(ctx, tx, clinicID, action, sub, decision)
		}

		updates := map[string]interface{}{"plan_id": decision.Target.ID}
		if direction == entitlement.DirectionUpgrade {
			updates["status"] = models.SubscriptionActive
			updates["trial_ends_at"] = nil
			updates["ends_at"] = nil
		}
		if err := tx.Model(&models.Subscription{ID: sub.ID}).Updates(updates).Error; err != nil {
			return fmt.Errorf("ошибка смены тарифа: %w", err)
		}

		if err := s.audit.WithTx(tx).LogSuccess(AuditContext{
			TenantID:   clinicID,
			UserID:     ActorFromContext(ctx),
			Action:     action,
			Resource:   "subscription",
			ResourceID: &sub.ID,
			OldValues:  map[string]interface{}{"plan": sub.Plan.Name, "status": sub.Status},
			NewValues:  map[string]interface{}{"plan": decision.Target.Name},
		}); err != nil {
			return err
		}

		updated, err = s.reload(tx, sub.ID)
		return err
	})
	if err != nil {
		return nil, entitlement.Decision{}, err
	}
	return updated, decision, nil
}

// logDenied пишет в аудит отклоненную смену тарифа или отмену
func (s *SubscriptionService) logDenied(ctx context.Context, tx *gorm.DB, clinicID uint, action AuditAction, sub *models.Subscription, decision entitlement.Decision) error {
	denial, _ := decision.Primary()
	entry := AuditContext{
		TenantID:  clinicID,
		UserID:    ActorFromContext(ctx),
		Action:    action,
		Resource:  "subscription",
		NewValues: map[string]interface{}{"reason_code": denial.Reason, "target_plan": denial.TargetPlan},
	}
	if sub != nil {
		entry.ResourceID = &sub.ID
	}
	return s.audit.WithTx(tx).LogFailure(entry, fmt.Errorf("отказ: %s", denial.Reason))
}

// Cancel отменяет подписку; доступ сохраняется до конца льготного периода
func (s *SubscriptionService) Cancel(ctx context.Context, clinicID uint) (*models.Subscription, entitlement.Decision, error) {
	var (
		updated  *models.Subscription
		decision entitlement.Decision
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(tx, clinicID)
		if err != nil {
			return err
		}

		decision = s.engine.CheckCancel(sub)
		if !decision.Allowed {
			return s.logDenied(ctx, tx, clinicID, ActionSubscriptionCancel, sub, decision)
		}

		endsAt := s.now().AddDate(0, 0, s.billing.CancelGraceDays)
		if err := tx.Model(&models.Subscription{ID: sub.ID}).Updates(map[string]interface{}{
			"status":  models.SubscriptionCanceled,
			"ends_at": endsAt,
		}).Error; err != nil {
			return fmt.Errorf("ошибка отмены подписки: %w", err)
		}

		if err := s.audit.WithTx(tx).LogSuccess(AuditContext{
			TenantID:   clinicID,
			UserID:     ActorFromContext(ctx),
			Action:     ActionSubscriptionCancel,
			Resource:   "subscription",
			ResourceID: &sub.ID,
			OldValues:  map[string]interface{}{"status": sub.Status},
			NewValues:  map[string]interface{}{"status": models.SubscriptionCanceled, "ends_at": endsAt},
		}); err != nil {
			return err
		}

		updated, err = s.reload(tx, sub.ID)
		return err
	})
	if err != nil {
		return nil, entitlement.Decision{}, err
	}
	return updated, decision, nil
}

// AdminOverride назначает тариф и статус напрямую, без правил повышения и понижения.
// Пустой статус означает active.
func (s *SubscriptionService) AdminOverride(ctx context.Context, clinicID, planID uint, status models.SubscriptionStatus) (*models.Subscription, error) {
	if status == "" {
		status = models.SubscriptionActive
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	plan, err := s.catalog.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	var updated *models.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clinic models.Clinic
		if err := tx.Select("id").First(&clinic, clinicID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClinicNotFound
			}
			return fmt.Errorf("ошибка получения клиники: %w", err)
		}

		sub, err := lockSubscription(tx, clinicID)
		if err != nil {
			return err
		}

		now := s.now()
		var trialEndsAt *time.Time
		if status == models.SubscriptionTrialing {
			if sub != nil && sub.TrialEndsAt != nil {
				trialEndsAt = sub.TrialEndsAt
			} else {
				end := now.AddDate(0, 0, s.billing.TrialDays)
				trialEndsAt = &end
			}
		}

		oldValues := map[string]interface{}{}
		if sub == nil {
			sub = &models.Subscription{
				ClinicID:    clinicID,
				PlanID:      plan.ID,
				Status:      status,
				TrialEndsAt: trialEndsAt,
				StartsAt:    now,
			}
			if err := tx.Create(sub).Error; err != nil {
				return fmt.Errorf("ошибка создания подписки: %w", err)
			}
		} else {
			oldValues["plan"] = sub.Plan.Name
			oldValues["status"] = sub.Status
			updates := map[string]interface{}{
				"plan_id":       plan.ID,
				"status":        status,
				"trial_ends_at": trialEndsAt,
			}
			if status != models.SubscriptionCanceled {
				updates["ends_at"] = nil
			}
			if err := tx.Model(&models.Subscription{ID: sub.ID}).Updates(updates).Error; err != nil {
				return fmt.Errorf("ошибка обновления подписки: %w", err)
			}
		}

		if err := s.audit.WithTx(tx).LogSuccess(AuditContext{
			TenantID:   clinicID,
			UserID:     ActorFromContext(ctx),
			Action:     ActionSubscriptionOverride,
			Resource:   "subscription",
			ResourceID: &sub.ID,
			OldValues:  oldValues,
			NewValues:  map[string]interface{}{"plan": plan.Name, "status": status},
		}); err != nil {
			return err
		}

		updated, err = s.reload(tx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Details собирает подписку, использование и остаток пробного периода
func (s *SubscriptionService) Details(ctx context.Context, clinicID uint) (*SubscriptionDetails, error) {
	sub, err := s.GetByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	usage, err := s.Usage(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	// Просмотр не сохраняет переход в past_due: единственный отказ TrialExpired
	// достается первому защищенному запросу
	now := s.now()
	view, _ := entitlement.ReconcileExpiry(*sub, now)
	access, err := s.engine.Decide(ctx, entitlement.Input{
		Subscription: sub,
		Plan:         &sub.Plan,
		Action:       entitlement.Access(),
		Now:          now,
	})
	if err != nil {
		return nil, err
	}

	return &SubscriptionDetails{
		Subscription:  &view,
		Usage:         usage,
		TrialDaysLeft: entitlement.TrialDaysLeft(&view, now),
		HasAccess:     access.Allowed,
	}, nil
}

// ListOverview возвращает подписки всех клиник
func (s *SubscriptionService) ListOverview(ctx context.Context) ([]SubscriptionOverview, error) {
	var clinics []models.Clinic
	if err := s.db.WithContext(ctx).Preload("Subscription.Plan").Order("id ASC").Find(&clinics).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения клиник: %w", err)
	}

	now := s.now()
	overview := make([]SubscriptionOverview, 0, len(clinics))
	for _, clinic := range clinics {
		row := SubscriptionOverview{
			ClinicID:   clinic.ID,
			ClinicName: clinic.Name,
			ClinicSlug: clinic.Slug,
			CreatedAt:  clinic.CreatedAt,
		}
		if sub := clinic.Subscription; sub != nil {
			row.PlanName = sub.Plan.Name
			row.PriceMonthly = sub.Plan.PriceMonthly
			row.Status = sub.Status
			row.TrialEndsAt = sub.TrialEndsAt
			row.TrialDaysLeft = sub.TrialDaysLeft(now)
			row.EndsAt = sub.EndsAt
		}
		overview = append(overview, row)
	}
	return overview, nil
}

// AddStaffLink добавляет пользователя в клинику с ролью. Лимиты тарифа повторно
// проверяются под блокировкой подписки, поэтому параллельные добавления не превышают лимит.
func (s *SubscriptionService) AddStaffLink(ctx context.Context, clinicID, userID uint, roleName string) (*models.ClinicUser, error) {
	var link *models.ClinicUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		link, err = s.addStaffLinkTx(ctx, tx, clinicID, userID, roleName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// addStaffLinkTx добавляет роль сотруднику внутри транзакции вызывающего
func (s *SubscriptionService) addStaffLinkTx(ctx context.Context, tx *gorm.DB, clinicID, userID uint, roleName string) (*models.ClinicUser, error) {
	role, err := findRole(tx, roleName)
	if err != nil {
		return nil, err
	}

	sub, err := lockSubscription(tx, clinicID)
	if err != nil {
		return nil, err
	}

	var count int64
	err = tx.Model(&models.ClinicUser{}).
		Where("clinic_id = ? AND user_id = ? AND role_id = ? AND is_active = ?", clinicID, userID, role.ID, true).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки сотрудника: %w", err)
	}
	if count > 0 {
		return nil, ErrStaffLinkExists
	}

	usage, err := countUsage(tx, clinicID)
	if err != nil {
		return nil, err
	}
	if err := s.decideStaffChange(ctx, sub, roleName, usage); err != nil {
		return nil, err
	}

	link, err := activateLink(tx, clinicID, userID, role)
	if err != nil {
		return nil, err
	}

	err = s.audit.WithTx(tx).LogSuccess(AuditContext{
		TenantID:   clinicID,
		UserID:     ActorFromContext(ctx),
		Action:     ActionStaffAdd,
		Resource:   "clinic_user",
		ResourceID: &link.ID,
		NewValues:  map[string]interface{}{"user_id": userID, "role": roleName},
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// decideStaffChange проверяет, можно ли назначить роль при текущем использовании.
// Для административных ролей проверяется только доступ к подписке.
func (s *SubscriptionService) decideStaffChange(ctx context.Context, sub *models.Subscription, roleName string, usage entitlement.Usage) error {
	in := entitlement.Input{Subscription: sub, Action: entitlement.Access(), Now: s.now()}
	if sub != nil {
		in.Plan = &sub.Plan
	}
	if category, ok := models.CategoryForRole(roleName); ok {
		in.Usage = &usage
		in.Action = entitlement.AddStaffAction(category)
	}

	decision, err := s.engine.Decide(ctx, in)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &DenialError{Decision: decision}
	}
	return nil
}

func findRole(tx *gorm.DB, name string) (models.Role, error) {
	var role models.Role
	if err := tx.Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return role, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
		}
		return role, fmt.Errorf("ошибка получения роли: %w", err)
	}
	return role, nil
}

// activateLink создает связь сотрудника с ролью или восстанавливает деактивированную
func activateLink(tx *gorm.DB, clinicID, userID uint, role models.Role) (*models.ClinicUser, error) {
	var link models.ClinicUser
	err := tx.Where("clinic_id = ? AND user_id = ? AND role_id = ?", clinicID, userID, role.ID).First(&link).Error
	switch {
	case err == nil:
		if !link.IsActive {
			if err := tx.Model(&link).Update("is_active", true).Error; err != nil {
				return nil, fmt.Errorf("ошибка восстановления сотрудника: %w", err)
			}
			link.IsActive = true
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		link = models.ClinicUser{ClinicID: clinicID, UserID: userID, RoleID: role.ID, IsActive: true}
		if err := tx.Create(&link).Error; err != nil {
			return nil, fmt.Errorf("ошибка добавления сотрудника: %w", err)
		}
	default:
		return nil, fmt.Errorf("ошибка проверки сотрудника: %w", err)
	}
	link.Role = role
	return &link, nil
}

// ChangeStaffRole меняет основную роль сотрудника (DOCTOR или RECEPTIONIST) и
// при alsoMakeAdmin != nil выдает или снимает роль ADMIN. Лимиты проверяются под
// блокировкой подписки без учета заменяемой роли.
func (s *SubscriptionService) ChangeStaffRole(ctx context.Context, clinicID, userID uint, roleName string, alsoMakeAdmin *bool) (models.RoleSet, error) {
	var roles models.RoleSet

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(tx, clinicID)
		if err != nil {
			return err
		}

		before, err := activeLinks(tx, clinicID, userID)
		if err != nil {
			return err
		}
		if len(before) == 0 {
			return ErrStaffNotFound
		}
		oldRoles := rolesOf(before)

		if roleName != "" && !oldRoles.Has(roleName) {
			role, err := findRole(tx, roleName)
			if err != nil {
				return err
			}

			var replaced []uint
			usage, err := countUsage(tx, clinicID)
			if err != nil {
				return err
			}
			if role.Name != models.RoleAdmin {
				for _, link := range before {
					if _, counted := models.CategoryForRole(link.Role.Name); !counted {
						continue
					}
					replaced = append(replaced, link.ID)
					usage.TotalStaffCount--
					if link.Role.Name == models.RoleDoctor {
						usage.DoctorCount--
					}
				}
			}

			if err := s.decideStaffChange(ctx, sub, role.Name, usage); err != nil {
				return err
			}

			if len(replaced) > 0 {
				if err := tx.Model(&models.ClinicUser{}).Where("id IN ?", replaced).Update("is_active", false).Error; err != nil {
					return fmt.Errorf("ошибка снятия роли: %w", err)
				}
			}
			if _, err := activateLink(tx, clinicID, userID, role); err != nil {
				return err
			}
		}

		if alsoMakeAdmin != nil {
			if err := s.toggleAdmin(ctx, tx, sub, clinicID, userID, *alsoMakeAdmin); err != nil {
				return err
			}
		}

		after, err := activeLinks(tx, clinicID, userID)
		if err != nil {
			return err
		}
		roles = rolesOf(after)

		return s.audit.WithTx(tx).LogSuccess(AuditContext{
			TenantID:  clinicID,
			UserID:    ActorFromContext(ctx),
			Action:    ActionStaffRoleChange,
			Resource:  "clinic_user",
			OldValues: map[string]interface{}{"user_id": userID, "roles": oldRoles.Names()},
			NewValues: map[string]interface{}{"user_id": userID, "roles": roles.Names()},
		})
	})
	if err != nil {
		return models.RoleSet{}, err
	}
	return roles, nil
}

func (s *SubscriptionService) toggleAdmin(ctx context.Context, tx *gorm.DB, sub *models.Subscription, clinicID, userID uint, grant bool) error {
	admin, err := findRole(tx, models.RoleAdmin)
	if err != nil {
		return err
	}

	if !grant {
		err := tx.Model(&models.ClinicUser{}).
			Where("clinic_id = ? AND user_id = ? AND role_id = ?", clinicID, userID, admin.ID).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("ошибка снятия роли ADMIN: %w", err)
		}
		return nil
	}

	if err := s.decideStaffChange(ctx, sub, models.RoleAdmin, entitlement.Usage{}); err != nil {
		return err
	}
	_, err = activateLink(tx, clinicID, userID, admin)
	return err
}

func activeLinks(tx *gorm.DB, clinicID, userID uint) ([]models.ClinicUser, error) {
	var links []models.ClinicUser
	err := tx.Preload("Role").
		Where("clinic_id = ? AND user_id = ? AND is_active = ?", clinicID, userID, true).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ролей сотрудника: %w", err)
	}
	return links, nil
}

func rolesOf(links []models.ClinicUser) models.RoleSet {
	names := make([]string, 0, len(links))
	for _, link := range links {
		names = append(names, link.Role.Name)
	}
	return models.NewRoleSet(names...)
}

// RemoveStaff деактивирует все роли пользователя в клинике
func (s *SubscriptionService) RemoveStaff(ctx context.Context, clinicID, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ClinicUser{}).
			Where("clinic_id = ? AND user_id = ? AND is_active = ?", clinicID, userID, true).
			Update("is_active", false)
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления сотрудника: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaffNotFound
		}

		return s.audit.WithTx(tx).LogSuccess(AuditContext{
			TenantID:  clinicID,
			UserID:    ActorFromContext(ctx),
			Action:    ActionStaffRemove,
			Resource:  "clinic_user",
			NewValues: map[string]interface{}{"user_id": userID, "links_deactivated": result.RowsAffected},
		})
	})
}
