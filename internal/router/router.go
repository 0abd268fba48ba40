// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/handlers"
	"github.com/campushub/backend/internal/middleware"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
)

const version = "1.0.0"

// Dependencies are the external clients the API is built on. Chain,
// Providers, Sender and Assistant may be nil when the integration is not
// configured.
type Dependencies struct {
	DB        *gorm.DB
	Config    *config.Config
	Redis     *redis.Client
	Chain     services.ChainGateway
	Providers services.PaymentProviders
	Sender    services.MessageSender
	Assistant services.AssistantClient
	Mailer    services.Mailer
	Storage   *services.StorageService
}

// App is the wired HTTP engine plus the pieces the process manages
// around it.
type App struct {
	Engine   *gin.Engine
	Payments *services.PaymentService
	Webhooks *handlers.WebhookHandler
}

func Initialize(deps Dependencies) (*App, error) {
	db, cfg := deps.DB, deps.Config

	// Initialize services
	notificationService := services.NewNotificationService(cfg, deps.Mailer)
	markdownService := services.NewMarkdownService()
	storageService := deps.Storage
	if storageService == nil {
		var err error
		if storageService, err = services.NewStorageService(cfg); err != nil {
			return nil, err
		}
	}

	tokenService, err := services.NewTokenService(db, cfg)
	if err != nil {
		return nil, err
	}

	authService := services.NewAuthService(db, cfg, notificationService)
	userService := services.NewUserService(db)
	opportunityService := services.NewOpportunityService(db, cfg, markdownService)
	paymentService := services.NewPaymentService(db, cfg, deps.Providers, deps.Chain, notificationService)
	escrowService := services.NewEscrowService(db, deps.Providers, deps.Chain, notificationService)
	assistantService := services.NewAssistantService(deps.Assistant)
	adminService := services.NewAdminService(db, paymentService, cfg.Payment.PendingTTL)

	var bot handlers.MessageHandler
	if deps.Redis != nil {
		sessions := services.NewRedisSessionStore(deps.Redis, cfg.WhatsApp.SessionTTL)
		bot = services.NewBotService(sessions, deps.Sender, userService, opportunityService, tokenService)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	opportunityHandler := handlers.NewOpportunityHandler(opportunityService, storageService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	escrowHandler := handlers.NewEscrowHandler(escrowService)
	tokenHandler := handlers.NewTokenHandler(tokenService)
	assistantHandler := handlers.NewAssistantHandler(assistantService)
	webhookHandler := handlers.NewWebhookHandler(cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, bot)
	adminHandler := handlers.NewAdminHandler(adminService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(requestid.New())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))

	// Health check
	health := healthHandler(db)
	r.GET("/health", health)

	v1 := r.Group("/v1")
	v1.GET("/health", health)

	// The messaging platform retries aggressively; keep it outside the
	// per-IP limit and the audit log.
	webhooks := v1.Group("/webhooks")
	{
		webhooks.GET("/whatsapp", webhookHandler.Verify)
		webhooks.POST("/whatsapp", webhookHandler.Receive)
	}

	api := v1.Group("")
	api.Use(middleware.GeneralRateLimit())
	api.Use(middleware.AuditLogMiddleware(db))
	{
		// Authentication routes
		auth := api.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/verify-email/:token", authHandler.VerifyEmail)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// User routes
		users := api.Group("/users")
		{
			users.GET("/:id/public", userHandler.GetPublicProfile)
			users.PUT("/profile", middleware.AuthRequired(), userHandler.UpdateProfile)
		}

		// Opportunity routes
		opportunities := api.Group("/opportunities")
		{
			opportunities.GET("", middleware.OptionalAuth(), opportunityHandler.GetOpportunities)
			opportunities.GET("/:id", opportunityHandler.GetOpportunity)

			protected := opportunities.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", opportunityHandler.CreateOpportunity)
				protected.PUT("/:id", opportunityHandler.UpdateOpportunity)
				protected.DELETE("/:id", opportunityHandler.DeleteOpportunity)
				protected.POST("/upload-image", middleware.UploadRateLimit(), opportunityHandler.UploadImage)
			}
		}

		// Payment routes
		payments := api.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.POST("", paymentHandler.Purchase)
			payments.POST("/escrow-call", paymentHandler.PrepareEscrow)
			payments.GET("", paymentHandler.GetPayments)
			payments.GET("/:id", paymentHandler.GetPayment)
		}

		// Escrow routes
		escrows := api.Group("/escrows")
		escrows.Use(middleware.AuthRequired())
		{
			escrows.GET("", escrowHandler.GetEscrows)
			escrows.POST("/:id/release", escrowHandler.Release)
			escrows.POST("/:id/refund", escrowHandler.Refund)
		}

		api.GET("/wallet/status", middleware.AuthRequired(), paymentHandler.GetWalletStatus)

		// Token routes
		tokens := api.Group("/tokens")
		tokens.Use(middleware.AuthRequired())
		{
			tokens.GET("/balance", tokenHandler.GetBalance)
			tokens.GET("/claims", tokenHandler.GetClaims)
			tokens.GET("/tasks", tokenHandler.GetTasks)
			tokens.POST("/claim", tokenHandler.Claim)
		}

		// Assistant routes
		api.POST("/assistant/chat", middleware.AuthRequired(), middleware.ChatRateLimit(), assistantHandler.Chat)

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/profiles", adminHandler.GetProfiles)
			admin.PUT("/profiles/:id/role", adminHandler.UpdateProfileRole)
			admin.GET("/payments", adminHandler.GetPayments)
			admin.POST("/payments/sweep", adminHandler.SweepPending)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
		}
	}

	// Local uploads are served when S3 is not configured
	r.Static("/uploads", "./"+services.LocalUploadDir)

	return &App{
		Engine:   r,
		Payments: paymentService,
		Webhooks: webhookHandler,
	}, nil
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":  status,
			"version": version,
		})
	}
}
