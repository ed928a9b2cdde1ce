package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicboard/gatekeeper/internal/background"
	"github.com/clinicboard/gatekeeper/internal/cache"
	"github.com/clinicboard/gatekeeper/internal/config"
	"github.com/clinicboard/gatekeeper/internal/database"
	"github.com/clinicboard/gatekeeper/internal/handlers"
	middlewareCustom "github.com/clinicboard/gatekeeper/internal/middleware"
	"github.com/clinicboard/gatekeeper/internal/notify"
	"github.com/clinicboard/gatekeeper/internal/repositories"
	"github.com/clinicboard/gatekeeper/internal/routes"
	"github.com/clinicboard/gatekeeper/internal/services"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize redis
	redisClient, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize repositories and stores
	securityRecordRepo := repositories.NewSecurityRecordRepository(db)
	resetTokenRepo := repositories.NewResetTokenRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	captchaStore := cache.NewRedisCaptchaStore(redisClient)

	// Revocation broadcasts ride redis pub/sub so every instance sees them
	broker := notify.NewRedisBroker(redisClient, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ResetURLBase,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	lockoutService := services.NewLockoutService(securityRecordRepo, services.LockoutConfig{
		MaxFailedAttempts: cfg.Security.MaxLoginAttempts,
		LockoutDurations:  cfg.Security.LockoutDurations,
		FailMode:          cfg.Security.LockoutFailMode,
		RecordRetention:   cfg.Security.SecurityRecordRetention,
	}, logger, auditLogger)

	captchaService := services.NewCaptchaService(captchaStore, services.CaptchaConfig{
		GridSize: cfg.Security.CaptchaGridSize,
		Expiry:   cfg.Security.CaptchaExpiry,
	}, logger)

	resetTokenService := services.NewResetTokenService(
		resetTokenRepo,
		emailService,
		logger,
		auditLogger,
		cfg.Security.ResetTokenExpiry,
	)

	sessionService := services.NewSessionService(sessionRepo, broker, services.SessionConfig{
		IdleTimeout:     cfg.Security.SessionIdleTimeout,
		PollInterval:    cfg.Security.SessionPollInterval,
		ValidateTimeout: cfg.Security.SessionValidateTimeout,
	}, logger, auditLogger)

	// Credential checks go to the upstream identity provider
	identityClient := services.NewIdentityProviderClient(
		cfg.Identity.BaseURL,
		cfg.Identity.Timeout,
		logger,
	)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		resetTokenService,
		sessionService,
		lockoutService,
		logger,
		cfg.Security.CleanupInterval,
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(
		lockoutService,
		captchaService,
		sessionService,
		identityClient,
		cfg.Security.CaptchaRequiredAfter,
	)
	captchaHandler := handlers.NewCaptchaHandler(captchaService)
	resetHandler := handlers.NewResetHandler(resetTokenService, identityClient)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	adminHandler := handlers.NewAdminHandler(sessionService, lockoutService)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, captchaHandler, resetHandler, sessionHandler, adminHandler, sessionService)

	// Health check with database and redis
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","redis":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up","redis":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
