// Incident intake server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/incident-intake/internal/api"
	"github.com/ashureev/incident-intake/internal/attachment"
	"github.com/ashureev/incident-intake/internal/config"
	"github.com/ashureev/incident-intake/internal/delivery"
	"github.com/ashureev/incident-intake/internal/identity"
	"github.com/ashureev/incident-intake/internal/intake"
	"github.com/ashureev/incident-intake/internal/metrics"
	"github.com/ashureev/incident-intake/internal/middleware"
	"github.com/ashureev/incident-intake/internal/session"
	"github.com/ashureev/incident-intake/internal/store"
	"github.com/ashureev/incident-intake/internal/transport"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "session_store", cfg.Session.Store)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	checks := map[string]api.Check{"database": repo.Ping}

	var sessions session.Store
	switch cfg.Session.Store {
	case config.SessionStoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("Failed to close redis client", "error", closeErr)
			}
		}()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("Redis health check failed", "error", err, "addr", cfg.Session.RedisAddr)
			os.Exit(1)
		}
		sessions = session.NewRedisStore(rdb, cfg.Session.RedisTTL)
		checks["sessions"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		slog.Info("Redis session store connected", "addr", cfg.Session.RedisAddr, "ttl", cfg.Session.RedisTTL)
	default:
		sessions = session.NewMemoryStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	intakeMetrics := metrics.NewIntakeMetrics(registry)

	// Initialize services.
	hub := transport.NewHub(cfg.ReplyQueueSize)

	var apiForwarder, smtpForwarder delivery.Forwarder
	if cfg.Delivery.APIURL != "" {
		apiForwarder = delivery.NewAPIForwarder(cfg.Delivery.APIURL, &http.Client{Timeout: cfg.Delivery.Timeout})
	}
	if cfg.Delivery.SMTPHost != "" {
		smtpForwarder = delivery.NewSMTPForwarder(cfg.Delivery.SMTPHost, cfg.Delivery.SMTPFrom, cfg.SMTPRecipients(), cfg.Delivery.Timeout)
	}
	slog.Info("Delivery channels configured", "api", apiForwarder != nil, "smtp", smtpForwarder != nil)

	dispatcher := delivery.NewDispatcher(delivery.Config{
		Repo:    repo,
		Replies: hub,
		API:     apiForwarder,
		SMTP:    smtpForwarder,
		Timeout: cfg.Delivery.Timeout,
		Metrics: intakeMetrics,
	})

	machine := intake.NewMachine(intake.Config{
		Sessions:   sessions,
		Files:      attachment.NewDownloader(cfg.DataDir, nil, cfg.MaxAttachmentBytes),
		Replies:    hub,
		Dispatcher: dispatcher,
		Users:      repo,
		Metrics:    intakeMetrics,
	})

	// Initialize handlers.
	handler := api.NewHandler(repo, machine, hub)
	healthHandler := api.NewHealthHandler(checks, 5*time.Second)
	// Base64 inflates attachments by a third.
	wsHandler := transport.NewWebSocketHandler(machine, hub, cfg.AllowedOrigin, cfg.IsDevelopment(), cfg.MaxAttachmentBytes*4/3+64<<10)

	allowedOrigins := []string{"*"}
	if cfg.AllowedOrigin != "" {
		allowedOrigins = []string{cfg.AllowedOrigin}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Intake routes need a remote party.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware())
		handler.RegisterRoutes(r)
		r.Get("/ws/intake", wsHandler.ServeHTTP)
	})

	// Note: websocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
