package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_backend/api"
	"clinic_backend/auth"
	"clinic_backend/config"
	"clinic_backend/database"
	"clinic_backend/entitlement"
	"clinic_backend/logger"
	"clinic_backend/services"

	"github.com/gin-gonic/gin"
)

// initDB инициализирует подключение к базе данных и справочники
func initDB(cfg *config.Config) {
	log.Println("🔧 Инициализация базы данных...")

	if cfg.Database.Driver == "postgres" {
		if err := database.CreateDatabaseIfNotExists(cfg.Database); err != nil {
			log.Fatal("❌ Ошибка при создании базы данных:", err)
		}
	}

	if err := database.ConnectDatabase(cfg); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	if err := database.Seed(database.GetDB()); err != nil {
		log.Fatal("❌ Ошибка заполнения справочников:", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	logger.Init(cfg.Logging.Format, cfg.Logging.Level)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	initDB(cfg)

	redisClient, err := database.InitRedis(cfg.Redis)
	if err != nil {
		log.Printf("⚠️ Redis недоступен, кэш тарифов и rate limit отключены: %v", err)
	}

	db := database.GetDB()
	catalog := services.NewPlanCatalog(db, redisClient, cfg.Billing.PlanCacheTTL)
	engine := entitlement.NewEngine(catalog)
	audit := services.NewAuditService(db)
	subscriptions := services.NewSubscriptionService(db, catalog, engine, audit, cfg.Billing)
	clinics := services.NewClinicService(db, subscriptions)
	patients := services.NewPatientService(db)

	if email := cfg.Security.SuperAdminEmail; email != "" {
		if err := clinics.GrantSuperAdmin(context.Background(), email); err != nil {
			log.Printf("⚠️ Не удалось назначить суперадминистратора %s: %v", email, err)
		} else {
			log.Printf("👑 Суперадминистратор: %s", email)
		}
	}

	var reminders *services.TrialReminderService
	if cfg.Billing.ReminderEnabled {
		notifier := services.NewNotifier(cfg.External.TelegramBotToken, cfg.External.TelegramChatID)
		reminders = services.NewTrialReminderService(db, notifier, cfg.Billing)
		if err := reminders.Start(); err != nil {
			log.Fatal("❌ Ошибка запуска напоминаний:", err)
		}
		log.Printf("⏰ Напоминания о пробном периоде: %s", cfg.Billing.ReminderCron)
	}

	router := api.SetupRouter(api.Dependencies{
		Config:        cfg,
		DB:            db,
		Redis:         redisClient,
		Tokens:        auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn),
		Engine:        engine,
		Catalog:       catalog,
		Subscriptions: subscriptions,
		Clinics:       clinics,
		Patients:      patients,
		Audit:         audit,
	})

	srv := &http.Server{
		Addr:         cfg.App.Host + ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.Security.RequestTimeout,
		WriteTimeout: cfg.Security.ResponseTimeout,
	}

	go func() {
		log.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Ошибка сервера:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Остановка сервера...")

	if reminders != nil {
		reminders.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Ошибка остановки сервера: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	log.Println("✅ Сервер остановлен")
}
