package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coachly/coachly/internal"
	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/billing"
	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/handler"
	"github.com/coachly/coachly/internal/metrics"
	"github.com/coachly/coachly/internal/middleware"
	"github.com/coachly/coachly/internal/relay"
	"github.com/coachly/coachly/internal/repository"
	"github.com/coachly/coachly/internal/service"
	"github.com/coachly/coachly/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// Attachment storage
	files, err := storage.New(storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Stripe is optional in development
	var billingService billing.Service
	if cfg.BillingEnabled() {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			PremiumPriceID:      cfg.StripePremiumPriceID,
			SmartPremiumPriceID: cfg.StripeSmartPremiumPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, STRIPE_SECRET_KEY not set")
	}

	// Initialize services
	quotaService := service.NewQuotaService(store, logger)
	chatService := service.NewChatService(store, quotaService, logger)
	callService := service.NewCallService(store, quotaService, logger)
	subscriptionService := service.NewSubscriptionService(store, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	// Messaging relay
	eventLimiter := middleware.NewRateLimiter(cfg.WSEventsPerMinute, time.Minute, logger)
	defer eventLimiter.Stop()
	messageRelay := relay.New(chatService, relay.NewRegistry(), eventLimiter, logger)
	relayHandler := relay.NewHandler(messageRelay, verifier, subscriptionService, cfg.WSAllowedOrigins, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(verifier, subscriptionService, logger)
	quotaMw := middleware.NewQuotaMiddleware(quotaService, logger)
	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow, logger)
	defer apiLimiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(apiLimiter, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Websocket relay (authenticates itself before upgrading)
	mux.Handle("GET /ws", relayHandler)

	// Stripe webhook (public, signature verified)
	handler.NewWebhookHandler(billingService, subscriptionService, logger).RegisterRoutes(mux)

	// Create middleware stacks for protected routes
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser, rateLimitMw.Limit)
	requireMessage := quotaMw.RequireQuota(domain.ActionMessage)
	requireAttachment := quotaMw.RequireQuota(domain.ActionAttachment)
	callGuard := middleware.Stack(authMw.RequireRole(domain.RoleUser), quotaMw.RequireQuota(domain.ActionCall))

	handler.NewQuotaHandler(quotaService, logger).RegisterRoutes(mux, requireUser)
	handler.NewConversationHandler(chatService, logger).RegisterRoutes(mux, requireUser)
	handler.NewMessageHandler(messageRelay, chatService, quotaService, logger).RegisterRoutes(mux, requireUser, requireMessage)
	handler.NewAttachmentHandler(files, cfg.MaxAttachmentBytes, logger).
		RegisterRoutes(mux, requireUser, requireAttachment, cfg.StorageProvider == storage.ProviderLocal)
	handler.NewCallHandler(callService, logger).RegisterRoutes(mux, requireUser, callGuard)
	handler.NewNutritionHandler(quotaService, logger).RegisterRoutes(mux, requireUser)
	handler.NewBillingHandler(billingService, subscriptionService, cfg.BaseURL, logger).RegisterRoutes(mux, requireUser)

	// Outermost first
	root := middleware.Stack(loggingMw.Handler, securityMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not covered by server.Shutdown.
	messageRelay.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
