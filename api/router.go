package api

import (
	"net/http"
	"slices"
	"time"

	"clinic_backend/auth"
	"clinic_backend/config"
	"clinic_backend/entitlement"
	"clinic_backend/middleware"
	"clinic_backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Возможности тарифа, открывающие отдельные разделы API
const (
	FeatureReports   = "reports"
	FeatureAuditLogs = "audit_logs"
)

// Dependencies зависимости HTTP слоя
type Dependencies struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	Tokens        *auth.TokenIssuer
	Engine        *entitlement.Engine
	Catalog       *services.PlanCatalog
	Subscriptions *services.SubscriptionService
	Clinics       *services.ClinicService
	Patients      *services.PatientService
	Audit         *services.AuditService
}

// SetupRouter собирает gin роутер со всеми маршрутами
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.BodyLimit(cfg.Security.MaxRequestSize))
	r.Use(cors.New(corsConfig(cfg.CORS)))

	authMW := middleware.NewAuthMiddleware(deps.Tokens)
	gate := middleware.NewSubscriptionGate(deps.Subscriptions, deps.Engine)

	authHandler := NewAuthHandler(deps.Clinics, deps.Tokens)
	billingHandler := NewBillingHandler(deps.Catalog, deps.Subscriptions)
	clinicHandler := NewClinicHandler(deps.Clinics, deps.Subscriptions)
	patientHandler := NewPatientHandler(deps.Patients)
	reportHandler := NewReportHandler(deps.Patients, deps.Subscriptions.Now)
	auditHandler := NewAuditHandler(deps.Audit)
	superAdminHandler := NewSuperAdminHandler(deps.Catalog, deps.Subscriptions)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api")
	apiGroup.GET("/health", healthHandler(deps.DB))

	authGroup := apiGroup.Group("/auth")
	authGroup.Use(middleware.AuthRateLimit(deps.Redis, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow))
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
	}

	apiGroup.GET("/billing/plans", billingHandler.GetPlans)

	protected := apiGroup.Group("")
	protected.Use(authMW.RequireAuth())
	{
		// Смена тарифа доступна и при неактивной подписке
		billing := protected.Group("/billing")
		billing.GET("/subscription", billingHandler.GetSubscription)
		billing.POST("/upgrade", billingHandler.Upgrade)
		billing.POST("/downgrade", billingHandler.Downgrade)
		billing.POST("/cancel", billingHandler.Cancel)

		clinics := protected.Group("/clinics")
		clinics.Use(authMW.RequireAdmin())
		clinics.GET("/staff", gate.RequireActiveSubscription(), clinicHandler.GetStaff)
		clinics.POST("/staff", gate.RequireStaffCapacity(middleware.StaffRoleFromBody), clinicHandler.AddStaff)
		clinics.PATCH("/staff/:userId", clinicHandler.UpdateStaff)
		clinics.DELETE("/staff/:userId", clinicHandler.RemoveStaff)

		patients := protected.Group("/patients")
		patients.Use(gate.RequireActiveSubscription())
		patients.GET("", patientHandler.GetPatients)
		patients.POST("", patientHandler.CreatePatient)

		protected.GET("/reports/summary", gate.RequirePlanFeature(FeatureReports), reportHandler.GetSummary)
		protected.GET("/audit-logs", gate.RequirePlanFeature(FeatureAuditLogs), auditHandler.GetAuditLogs)

		superAdmin := protected.Group("/superadmin")
		superAdmin.Use(authMW.RequireSuperAdmin())
		superAdmin.GET("/plans", superAdminHandler.GetPlans)
		superAdmin.GET("/subscriptions", superAdminHandler.GetSubscriptions)
		superAdmin.GET("/subscriptions/export", superAdminHandler.ExportSubscriptions)
		superAdmin.PATCH("/clinics/:clinicId/subscription", superAdminHandler.OverrideSubscription)
	}

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           time.Duration(cfg.MaxAge) * time.Second,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	return corsCfg
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			ErrorResponse(c, http.StatusServiceUnavailable, "База данных недоступна")
			return
		}
		SuccessResponse(c, http.StatusOK, gin.H{"database": "ok"})
	}
}
