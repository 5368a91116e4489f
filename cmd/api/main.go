package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harborview/civicwatch/internal/auth"
	"github.com/harborview/civicwatch/internal/background"
	"github.com/harborview/civicwatch/internal/config"
	"github.com/harborview/civicwatch/internal/database"
	"github.com/harborview/civicwatch/internal/handlers"
	"github.com/harborview/civicwatch/internal/identity"
	middlewareCustom "github.com/harborview/civicwatch/internal/middleware"
	"github.com/harborview/civicwatch/internal/repositories"
	"github.com/harborview/civicwatch/internal/routes"
	"github.com/harborview/civicwatch/internal/services"
	"github.com/harborview/civicwatch/internal/store"
	pkghttp "github.com/harborview/civicwatch/pkg/http"
	pkglogger "github.com/harborview/civicwatch/pkg/logger"
	"github.com/redis/go-redis/v9"
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

	// Apply schema migrations
	if err := database.Migrate(&cfg.Database); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	revocationRepo := repositories.NewTokenRevocationRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	// Tracker store: single-process map by default, Redis when configured
	var trackerStore store.TrackerStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		trackerStore = store.NewRedisStore(client)
		logger.Info("tracker store: redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		trackerStore = store.NewMemoryStore()
		logger.Info("tracker store: in-memory")
	}

	// Alerting hook for high-severity events (optional)
	var alerter services.Alerter
	if cfg.Alert.Enabled {
		sesAlerter, err := services.NewAWSSESAlerter(cfg.Alert.AWSRegion, cfg.Alert.FromAddress, cfg.Alert.ToAddress, logger)
		if err != nil {
			logger.Error("failed to initialize alerter", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = sesAlerter
	}

	// Security event log: dual-write slog + database
	securityLogger := pkglogger.NewSecurityLogger(logger)
	eventService := services.NewSecurityEventService(eventRepo, securityLogger, alerter, logger)

	// Token service
	tokenService := auth.NewTokenService(
		cfg.Auth.JWTAccessSecret,
		cfg.Auth.JWTRefreshSecret,
		cfg.Auth.Issuer,
		cfg.Auth.Audience,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		revocationRepo,
	)

	// Core services
	sessionService := services.NewSessionService(sessionRepo, tokenService, eventService, logger, cfg.Auth.MaxSessionsPerUser)
	loginGuard := services.NewLoginGuard(trackerStore)
	abuseEngine := services.NewAbuseEngine(trackerStore, eventService)
	verificationManager := auth.NewVerificationManager(cfg.Auth.VerificationIssuer, auth.NewMemorySecretStore())
	verifier := identity.NewHTTPVerifier(cfg.Identity.VerifyURL, cfg.Identity.Timeout)

	authService := services.NewAuthService(verifier, loginGuard, tokenService, sessionService, verificationManager, eventService, logger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	eventHandler := handlers.NewEventHandler(eventService)

	// Background sweeps, each on its own timer
	sweepManager := background.NewSweepManager(logger,
		background.Sweep{
			Name:     "expired_sessions",
			Interval: cfg.Auth.SweepInterval,
			Run:      sessionService.SweepExpired,
		},
		background.Sweep{
			Name:     "revoked_tokens",
			Interval: cfg.Auth.SweepInterval,
			Run:      revocationRepo.CleanupExpired,
		},
		background.Sweep{
			Name:     "security_events",
			Interval: time.Hour,
			Run:      eventService.PruneExpired,
		},
		background.Sweep{
			Name:     "abuse_trackers",
			Interval: cfg.Auth.SweepInterval,
			Run: func(ctx context.Context) (int64, error) {
				n, err := trackerStore.SweepExpired(ctx)
				return int64(n), err
			},
		},
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.AbuseProtection(abuseEngine, ipConfig, logger))

	// Register routes
	routes.RegisterRoutes(router, authHandler, sessionHandler, eventHandler, sessionService)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweeps
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweepManager.Start(sweepCtx)

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

	sweepCancel()
	sweepManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
