package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/croplink/croplink/pkg/audit"
	"github.com/croplink/croplink/pkg/auth"
	"github.com/croplink/croplink/pkg/config"
	"github.com/croplink/croplink/pkg/guard"
	"github.com/croplink/croplink/pkg/middleware"
	"github.com/croplink/croplink/pkg/observability"
	"github.com/croplink/croplink/pkg/orgs"
	"github.com/croplink/croplink/pkg/rbac"
	"github.com/croplink/croplink/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx := context.Background()

	// Database
	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: splitURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MaxIdle:     cfg.Database.MaxIdle,
		ConnTimeout: cfg.Database.ConnTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established")

	if err := rbac.RunMigrations(ctx, cm.Primary()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stores and resolver
	authStore := auth.NewStore(cm.Primary())
	tokenManager := auth.NewTokenManager(cm.Primary())
	store := rbac.NewStore(cm.Primary(), authStore)
	resolver := rbac.NewResolver(store)
	orgService := orgs.NewService(cm.Reader())

	if err := rbac.SeedCatalog(ctx, store); err != nil {
		log.Fatalf("Failed to seed permission catalog: %v", err)
	}
	if err := rbac.SeedPlatformAdminRole(ctx, store); err != nil {
		log.Fatalf("Failed to seed platform admin role: %v", err)
	}
	logger.Info("Permission catalog seeded")

	// Audit trail
	auditLogger, err := buildAuditLogger(cfg, cm)
	if err != nil {
		log.Fatalf("Failed to initialize audit logging: %v", err)
	}

	// Principal loading and the guard chain
	loader := guard.NewPrincipalLoader(
		tokenManager, authStore, resolver,
		cfg.Auth.PrincipalCacheSize, cfg.Auth.PrincipalCacheTTL,
		metrics,
	)
	guardMW := guard.NewMiddleware(auditLogger, metrics, loader, orgService, resolver)

	// Rate limiting, Redis-backed when configured
	limiter, redisClient, err := buildRateLimiter(ctx, cfg, orgService)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiting: %v", err)
	}
	if redisClient != nil {
		logger.Info("Distributed rate limiting enabled")
	}

	// Routes
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	admin := router.PathPrefix("/api/v1").Subrouter()
	admin.Use(guardMW.Require(rbac.ResourceRole, rbac.ActionManage))
	admin.Use(limiter.Handler)
	rbac.NewHandlers(store, resolver, auditLogger, loader).RegisterRoutes(admin)

	// Token cleanup on a schedule
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Auth.TokenCleanupCron, func() {
		deleted, err := tokenManager.CleanupExpiredTokens(context.Background())
		if err != nil {
			logger.WithError(err).Error("Token cleanup failed")
			return
		}
		if deleted > 0 {
			logger.Infof("Token cleanup removed %d expired tokens", deleted)
		}
	}); err != nil {
		log.Fatalf("Invalid token cleanup schedule %q: %v", cfg.Auth.TokenCleanupCron, err)
	}
	scheduler.Start()

	// Main API server
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      metrics.InstrumentHandler("api", router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	health := observability.NewHealthChecker(cm.Primary(), redisClient)
	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", health.LivenessHandler())
	healthMux.Handle("/readyz", health.ReadinessHandler())
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return auditLogger.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return cm.Close()
	})

	go func() {
		logger.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server failed: %v", err)
		}
	}()

	go func() {
		logger.Infof("CropLink API listening on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

// buildAuditLogger wires the database audit trail, with an optional file copy
func buildAuditLogger(cfg *config.Config, cm *postgres.ConnectionManager) (audit.Logger, error) {
	dbLogger, err := audit.NewDBLogger(cm.Primary())
	if err != nil {
		return nil, err
	}
	if cfg.Audit.FilePath == "" {
		return dbLogger, nil
	}

	fileLogger, err := audit.NewFileLogger(cfg.Audit.FilePath)
	if err != nil {
		dbLogger.Close()
		return nil, err
	}
	return audit.NewMultiLogger(dbLogger, fileLogger), nil
}

// buildRateLimiter picks the Redis-backed counter when Redis is enabled and
// falls back to a per-instance in-memory counter otherwise.
func buildRateLimiter(ctx context.Context, cfg *config.Config, quotas middleware.QuotaSource) (*middleware.RateLimiter, *redis.Client, error) {
	if !cfg.Redis.Enabled {
		counter := middleware.NewLocalCounter()
		counter.StartCleanup(ctx)
		return middleware.NewRateLimiter(counter, quotas), nil, nil
	}

	client, err := postgres.NewRedisClient(ctx, postgres.RedisConfig{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	counter := middleware.NewRedisCounter(client, "ratelimit")
	return middleware.NewRateLimiter(counter, quotas), client, nil
}

func splitURLs(urls string) []string {
	if urls == "" {
		return nil
	}
	return strings.Split(urls, ",")
}
