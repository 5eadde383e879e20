package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic_backend/database"
	"clinic_backend/entitlement"
	"clinic_backend/logger"
	"clinic_backend/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const planCatalogCacheKey = "plans:catalog"

// PlanCatalog каталог тарифных планов с кэшированием в Redis.
// Без Redis или при его ошибках данные читаются из БД.
type PlanCatalog struct {
	db    *gorm.DB
	redis *redis.Client
	ttl   time.Duration
}

// NewPlanCatalog создает каталог тарифов; redisClient может быть nil
func NewPlanCatalog(db *gorm.DB, redisClient *redis.Client, ttl time.Duration) *PlanCatalog {
	return &PlanCatalog{db: db, redis: redisClient, ttl: ttl}
}

// ListPlans возвращает все тарифы по возрастанию месячной цены
func (pc *PlanCatalog) ListPlans(ctx context.Context) ([]models.Plan, error) {
	if plans, ok := pc.cached(ctx); ok {
		return plans, nil
	}

	var plans []models.Plan
	if err := pc.db.WithContext(ctx).Order("price_monthly ASC, id ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения тарифов: %w", err)
	}

	pc.store(ctx, plans)
	return plans, nil
}

// GetPlan возвращает тариф по названию
func (pc *PlanCatalog) GetPlan(ctx context.Context, name string) (*models.Plan, error) {
	plans, err := pc.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].Name == name {
			return &plans[i], nil
		}
	}
	return nil, entitlement.ErrPlanNotFound
}

// GetPlanByID возвращает тариф по идентификатору
func (pc *PlanCatalog) GetPlanByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	err := pc.db.WithContext(ctx).First(&plan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entitlement.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тарифа %d: %w", id, err)
	}
	return &plan, nil
}

// Invalidate сбрасывает кэш каталога
func (pc *PlanCatalog) Invalidate(ctx context.Context) {
	if pc.redis == nil {
		return
	}
	if err := database.CacheDel(ctx, pc.redis, planCatalogCacheKey); err != nil {
		logger.Warn("не удалось сбросить кэш тарифов", "error", err)
	}
}

func (pc *PlanCatalog) cached(ctx context.Context) ([]models.Plan, bool) {
	if pc.redis == nil {
		return nil, false
	}
	var plans []models.Plan
	err := database.CacheGetJSON(ctx, pc.redis, planCatalogCacheKey, &plans)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("кэш тарифов недоступен", "error", err)
		}
		return nil, false
	}
	return plans, len(plans) > 0
}

func (pc *PlanCatalog) store(ctx context.Context, plans []models.Plan) {
	if pc.redis == nil || len(plans) == 0 {
		return
	}
	if err := database.CacheSetJSON(ctx, pc.redis, planCatalogCacheKey, plans, pc.ttl); err != nil {
		logger.Warn("не удалось сохранить тарифы в кэш", "error", err)
	}
}
