// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/protrace/backend/internal/config"
	"github.com/protrace/backend/internal/handlers"
	"github.com/protrace/backend/internal/middleware"
	"github.com/protrace/backend/internal/models"
	"github.com/protrace/backend/internal/services"
	"github.com/protrace/backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	ledgerService := services.NewLedgerService(cfg.Ledger)
	eventsService := services.NewEventsService(cfg.Events)
	qrcodeService := services.NewQRCodeService(cfg)

	authService := services.NewAuthService(db, cfg)
	productService := services.NewProductService(db, ledgerService, eventsService, qrcodeService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg)
	productHandler := handlers.NewProductHandler(productService)
	verificationHandler := handlers.NewVerificationHandler(productService)

	// Set JWT secrets
	utils.SetJWTSecrets(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
			auth.PUT("/me", middleware.AuthRequired(), authHandler.UpdateAccount)
			auth.PUT("/password", middleware.AuthRequired(), authHandler.ChangePassword)
		}

		// Public authenticity check
		v1.GET("/verify/:hash", verificationHandler.Verify)

		// Product routes
		products := v1.Group("/products")
		products.Use(middleware.AuthRequired())
		{
			products.GET("", productHandler.List)
			products.GET("/mine", middleware.RoleRequired(models.RoleManufacturer), productHandler.ListMine)
			products.GET("/:id", productHandler.Get)
			products.GET("/:id/manufacturer", productHandler.GetManufacturer)
			products.GET("/:id/location", productHandler.GetLocation)
			products.GET("/:id/provenance", productHandler.GetProvenance)

			products.POST("", middleware.RoleRequired(models.RoleManufacturer), productHandler.Create)
			products.PUT("/:id", middleware.RoleRequired(models.RoleManufacturer), productHandler.UpdateDetails)
			products.DELETE("/:id", middleware.RoleRequired(models.RoleManufacturer), productHandler.Delete)

			products.PATCH("/:id/status",
				middleware.RoleRequired(models.RoleManufacturer, models.RoleLogistics, models.RoleInspector),
				productHandler.UpdateStatus)
			products.POST("/:id/damaged",
				middleware.RoleRequired(models.RoleInspector),
				productHandler.MarkDamaged)
		}
	}

	return r
}
