package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/config"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/handlers"
	"github.com/wawire/kq-alumni-platform/internal/middleware"
	"github.com/wawire/kq-alumni-platform/internal/services"
	"github.com/wawire/kq-alumni-platform/pkg/identity"
	"github.com/wawire/kq-alumni-platform/pkg/jwt"
	"github.com/wawire/kq-alumni-platform/pkg/mailer"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting KQ Alumni Platform Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	registrationRepo := database.NewRegistrationRepository(db)
	auditRepo := database.NewAuditLogRepository(db)
	adminRepo := database.NewAdminUserRepository(db)

	// Initialize personnel registry client
	var registry identity.Registry
	if cfg.Identity.Mode == "production" {
		registry = identity.NewHTTPRegistry(identity.Config{
			BaseURL: cfg.Identity.BaseURL,
			APIKey:  cfg.Identity.APIKey,
			Timeout: cfg.Identity.Timeout,
		})
		logger.Info("Personnel registry client initialized")
	} else {
		logger.Info("Personnel registry in mock mode (no real lookups will be made)")
		registry = identity.NewMockRegistry()
	}

	// Initialize mail transport
	var mail mailer.Mailer
	if cfg.Mail.Mode == "production" {
		mail = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
		logger.Info("SMTP mailer initialized")
	} else {
		logger.Info("Mailer in development mode (no actual mail will be sent)")
		mail = mailer.NewDevMailer(logger)
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	auditService := services.NewAuditService(auditRepo)
	notificationService := services.NewNotificationService(
		registrationRepo,
		auditService,
		mail,
		cfg.Server.BaseURL,
		cfg.Mail.Timeout,
		logger,
	)
	duplicateGuard := services.NewDuplicateGuard(registrationRepo)
	intakeService := services.NewIntakeService(registrationRepo, duplicateGuard, auditService, notificationService, logger)
	tokenService := services.NewTokenService(registrationRepo, auditService, cfg.Verification.TokenTTL, logger)
	verificationService := services.NewVerificationService(
		registry,
		cfg.Verification.SimilarityThreshold,
		cfg.Verification.TrustedMode,
		logger,
	)
	adminService := services.NewAdminService(registrationRepo, tokenService, notificationService, auditService, logger)
	adminAuthService := services.NewAdminAuthService(adminRepo, jwtService, cfg.JWT.AccessTokenExpiry)

	// Initialize and start the approval scheduler
	schedulerService := services.NewSchedulerService(
		registrationRepo,
		verificationService,
		tokenService,
		notificationService,
		auditService,
		cfg.Scheduler,
		cfg.Verification,
		logger,
	)
	if err := schedulerService.Start(); err != nil {
		logger.Fatalf("Failed to start approval scheduler: %v", err)
	}

	logger.Info("Services initialized")

	// Initialize handlers
	registrationHandler := handlers.NewRegistrationHandler(intakeService, tokenService, logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(adminAuthService, logger)
	adminHandler := handlers.NewAdminHandler(registrationRepo, adminService, auditService, notificationService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public routes
		v1.POST("/registrations", registrationHandler.Register)
		v1.GET("/verify", registrationHandler.Verify)
		v1.POST("/admin/login", adminAuthHandler.Login)

		// Admin routes (require admin JWT)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(jwtService))
		{
			admin.GET("/registrations", adminHandler.ListRegistrations)
			admin.GET("/registrations/:id", adminHandler.GetRegistration)
			admin.GET("/registrations/:id/audit", adminHandler.GetAuditTrail)
			admin.POST("/registrations/:id/approve", adminHandler.Approve)
			admin.POST("/registrations/:id/reject", adminHandler.Reject)
			admin.POST("/registrations/:id/resend", adminHandler.Resend)
			admin.POST("/registrations/bulk-approve", adminHandler.BulkApprove)
			admin.POST("/registrations/bulk-reject", adminHandler.BulkReject)

			// Manual scheduler trigger for operations
			admin.POST("/scheduler/run", func(c *gin.Context) {
				processed, err := schedulerService.RunPass(c.Request.Context())
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, gin.H{"message": "Verification pass triggered", "processed": processed})
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the approval scheduler before closing the store
	schedulerService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if c.Writer.Status() >= 500 {
			logger.WithFields(fields).Error("Request failed")
		} else {
			logger.WithFields(fields).Info("Request handled")
		}
	}
}

// healthCheckHandler reports service and database health
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
