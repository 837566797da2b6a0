// Package main is the entry point for the tryon-api server.
// Merchant dashboards authenticate with JWTs; embedded widgets
// authenticate with X-Merchant-Key API keys.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/stylemirror/tryon-api/internal/auth"
	"github.com/stylemirror/tryon-api/internal/config"
	"github.com/stylemirror/tryon-api/internal/database"
	"github.com/stylemirror/tryon-api/internal/http/handlers"
	"github.com/stylemirror/tryon-api/internal/http/mw"
	"github.com/stylemirror/tryon-api/internal/logging"
	"github.com/stylemirror/tryon-api/internal/ratelimit"
	"github.com/stylemirror/tryon-api/internal/repository"
	"github.com/stylemirror/tryon-api/internal/service"
	"github.com/stylemirror/tryon-api/internal/version"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting tryon-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	provider := service.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	services, err := service.NewServices(cfg, repos, provider, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fixed-window limiter shared by the widget auth pipeline and the
	// dashboard login backoff. Start launches the sweep goroutine.
	limiter := ratelimit.New()
	limiter.Start(ctx)

	// Webhook dispatcher worker pool
	services.Webhook.Start(ctx)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	widgetAuth := mw.NewWidgetAuth(repos.Account, limiter, logger)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.SecurityHeaders(mw.SecurityHeadersConfig{
		Production:        cfg.IsProduction(),
		EmbedPathPrefixes: []string{"/widget/"},
	}))
	router.Use(mw.Cache(mw.DefaultCacheConfig()))
	router.Use(mw.SanitizeInput())

	// Request size limit (12MB) - sessions carry base64 images
	router.Use(middleware.RequestSize(12 * 1024 * 1024))

	// Global rate limit by IP (fallback for unauthenticated requests)
	// Widget traffic gets per-account and per-IP limits applied later
	router.Use(httprate.LimitByIP(300, time.Minute))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(200))

	// Huma API config for the dashboard with OpenAPI docs
	humaConfig := huma.DefaultConfig("StyleMirror API", v.Version)
	humaConfig.Info.Description = "Virtual try-on platform API. Embedded widgets create try-on sessions with merchant API keys; merchant dashboards manage keys, webhooks, domains, and usage."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Dashboard JWT authentication.",
		},
	}

	// Public health endpoint with docs
	api := humachi.New(router, humaConfig)
	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	// Kubernetes probes (plain handlers, hidden from docs)
	router.Get("/healthz", handlers.Livez)
	router.Get("/readyz", handlers.Readyz(db))

	// Stripe webhook (signature verified by handler, not user auth)
	if cfg.StripeWebhookSecret != "" {
		stripeWebhook := handlers.NewStripeWebhookHandler(cfg, repos.Account, services.Account, logger)
		router.Post("/api/v1/webhooks/stripe", stripeWebhook.HandleWebhook)
		logger.Info("stripe webhook endpoint enabled")
	}

	// Widget embed shell and bundle assets, frameable from merchant sites
	router.Group(func(r chi.Router) {
		r.Use(mw.IframeCSP())
		r.Get("/widget/embed", handlers.WidgetEmbed(cfg.BaseURL))
		if _, err := os.Stat(cfg.WidgetAssetsDir); err == nil {
			r.Handle("/widget/assets/*", handlers.WidgetAssets(cfg.WidgetAssetsDir))
		}
	})

	// Widget session API (X-Merchant-Key gated, raw JSON envelope)
	widgetHandler := handlers.NewWidgetHandler(services.Session, logger)
	router.Route("/api/v1/widget", func(r chi.Router) {
		r.Use(mw.WidgetCORS(repos.Account))

		r.Group(func(r chi.Router) {
			r.Use(widgetAuth.Require())
			r.Post("/sessions", widgetHandler.CreateSession)
			r.Get("/sessions/{id}", widgetHandler.GetSession)
			r.Delete("/sessions/{id}", widgetHandler.CancelSession)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireQuota())
				r.Post("/sessions/{id}/tryon", widgetHandler.SubmitTryOn)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(widgetAuth.Optional())
			r.Get("/config", widgetHandler.GetConfig)
		})
	})

	// Dashboard API (Bearer JWT, huma)
	router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(mw.DashboardAuth(verifier, limiter))

		dashboardConfig := huma.DefaultConfig("StyleMirror API", v.Version)
		dashboardConfig.Info.Description = humaConfig.Info.Description
		dashboardConfig.Servers = humaConfig.Servers
		dashboardConfig.DocsPath = ""
		dashboardConfig.OpenAPIPath = ""
		dashboardConfig.SchemasPath = ""

		dashboardAPI := humachi.New(r, dashboardConfig)
		handlers.RegisterDashboard(dashboardAPI, handlers.NewAccountHandler(services.Account, services.Webhook))
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		// Drain pending webhook deliveries, then stop the limiter sweep
		cancel()
		services.Webhook.Stop()
		limiter.Stop()
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
