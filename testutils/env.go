package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinic_backend/auth"
	"clinic_backend/config"
	"clinic_backend/entitlement"
	"clinic_backend/models"
	"clinic_backend/services"

	"gorm.io/gorm"
)

// TestJWTSecret секрет для токенов в тестах
const TestJWTSecret = "test-secret-key-for-testing-only-0123456789"

// TestConfig конфигурация приложения для тестов: sqlite, без Redis и Telegram
func TestConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfigStruct{Env: "test", Port: "0"},
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Redis:    config.RedisConfig{Enabled: false},
		JWT: config.JWTConfig{
			Secret:    TestJWTSecret,
			ExpiresIn: time.Hour,
			Issuer:    "clinic-backend-test",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		Security: config.SecurityConfig{RateLimitRequests: 100, RateLimitWindow: time.Minute, MaxRequestSize: 64 << 10},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
		Billing: config.BillingConfig{
			TrialDays:         14,
			CancelGraceDays:   30,
			DefaultPlan:       models.PlanStarter,
			PlanCacheTTL:      time.Minute,
			ReminderCron:      "0 0 9 * * *",
			ReminderDaysAhead: 3,
		},
	}
}

// Clock управляемые часы для тестов с истечением пробного периода
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock создает часы, остановленные на момент start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now возвращает текущее время часов
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперед
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env собранные сервисы поверх тестовой базы
type Env struct {
	DB            *gorm.DB
	Config        *config.Config
	Clock         *Clock
	Tokens        *auth.TokenIssuer
	Catalog       *services.PlanCatalog
	Engine        *entitlement.Engine
	Audit         *services.AuditService
	Subscriptions *services.SubscriptionService
	Clinics       *services.ClinicService
	Patients      *services.PatientService
}

// NewEnv собирает сервисы так же, как main, но с тестовой базой и часами
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := SetupTestDB(t)
	cfg := TestConfig()
	clock := NewClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	catalog := services.NewPlanCatalog(db, nil, cfg.Billing.PlanCacheTTL)
	engine := entitlement.NewEngine(catalog)
	audit := services.NewAuditService(db)
	subs := services.NewSubscriptionService(db, catalog, engine, audit, cfg.Billing).WithClock(clock.Now)

	return &Env{
		DB:            db,
		Config:        cfg,
		Clock:         clock,
		Tokens:        auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn),
		Catalog:       catalog,
		Engine:        engine,
		Audit:         audit,
		Subscriptions: subs,
		Clinics:       services.NewClinicService(db, subs),
		Patients:      services.NewPatientService(db),
	}
}

// SignupClinic регистрирует клинику с владельцем и пробной подпиской
func (e *Env) SignupClinic(t *testing.T, name, email string) *services.SignupResult {
	t.Helper()

	result, err := e.Clinics.Signup(context.Background(), services.SignupInput{
		ClinicName: name,
		Email:      email,
		Password:   "password123",
		FullName:   "Owner " + name,
	})
	if err != nil {
		t.Fatalf("Failed to sign up clinic %q: %v", name, err)
	}
	return result
}

// AddStaff создает пользователя и добавляет его в клинику с ролью
func (e *Env) AddStaff(t *testing.T, clinicID uint, email, role string) *models.ClinicUser {
	t.Helper()

	ctx := context.Background()
	user, _, err := e.Clinics.EnsureUser(ctx, email, email)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	link, err := e.Subscriptions.AddStaffLink(ctx, clinicID, user.ID, role)
	if err != nil {
		t.Fatalf("Failed to add %s as %s: %v", email, role, err)
	}
	return link
}

// SetSubscription напрямую меняет поля подписки клиники
func (e *Env) SetSubscription(t *testing.T, clinicID uint, updates map[string]interface{}) {
	t.Helper()

	err := e.DB.Model(&models.Subscription{}).Where("clinic_id = ?", clinicID).Updates(updates).Error
	if err != nil {
		t.Fatalf("Failed to update subscription of clinic %d: %v", clinicID, err)
	}
}

// Token выпускает токен для пользователя клиники
func (e *Env) Token(t *testing.T, userID, clinicID uint, roles ...string) string {
	t.Helper()

	token, _, err := e.Tokens.Issue(userID, clinicID, roles)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}
