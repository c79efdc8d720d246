// Package api wires together all HTTP routes for the audit service.
//
// Route groups:
//   - /health and /ready are unauthenticated probes.
//   - /audit serves the audit query API and requires a bearer token whose role
//     is listed in auth.audit_roles; /audit/cleanup additionally requires one of
//     auth.admin_roles.
//   - /api/* is reverse proxied to server.upstream_url when configured, so the
//     audit middleware records the timesheet API's mutating traffic.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/timesheet-app/timesheet/internal/api/auditlogs"
	"github.com/timesheet-app/timesheet/internal/audit"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/jobs"
	"github.com/timesheet-app/timesheet/internal/middleware"
	"github.com/timesheet-app/timesheet/internal/safego"
	"github.com/timesheet-app/timesheet/internal/services"
	"github.com/timesheet-app/timesheet/internal/storage"
)

// readinessProbePath is a known-absent object used to exercise archive storage
// credentials and connectivity without creating state.
const readinessProbePath = ".readiness-probe"

// Dependencies are the connections the router wires into services and middleware.
// Only Store is required.
type Dependencies struct {
	Store   services.AuditStore
	Users   services.UserDirectory
	Redis   redis.UniversalClient
	Archive storage.Storage
	Shipper audit.Shipper
}

// BackgroundServices holds the goroutines and resources started by NewRouter.
// The caller is responsible for calling Shutdown after the HTTP server has
// stopped accepting requests.
type BackgroundServices struct {
	retentionJob *jobs.AuditRetentionJob
	limiters     []*middleware.MemoryLimiter
	tasks        *safego.Group
	shipper      audit.Shipper
}

// Shutdown stops the background jobs, waits for pending audit writes until ctx
// expires and closes the shippers.
func (bg *BackgroundServices) Shutdown(ctx context.Context) {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	for _, rl := range bg.limiters {
		rl.Stop()
	}
	if err := bg.tasks.Wait(ctx); err != nil {
		slog.Warn("pending audit writes abandoned", "error", err)
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router and starts the retention job.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{tasks: &safego.Group{}, shipper: deps.Shipper}

	auditService := services.NewAuditService(deps.Store, deps.Users, cfg.Audit.ExportLimit)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Server.IsProduction())))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins))
	router.Use(middleware.IdentityMiddleware())
	if cfg.Audit.Enabled {
		router.Use(middleware.AuditMiddleware(middleware.AuditOptions{
			Config:   &cfg.Audit,
			Recorder: auditService,
			Shipper:  deps.Shipper,
			Tasks:    bg.tasks,
		}))
	}

	router.GET("/health", healthCheckHandler(deps.Store))
	router.GET("/ready", readinessHandler(readinessChecks(deps)...))
	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.PrometheusPort == 0 {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	general, export := newLimiters(cfg, deps.Redis, bg)

	h := auditlogs.NewHandlers(auditService, cfg.Server.IsProduction())
	auditGroup := router.Group("/audit")
	if general != nil {
		auditGroup.Use(middleware.RateLimitMiddleware(general))
	}
	auditGroup.Use(middleware.RequireAuth(), middleware.RequireRole(cfg.Auth.AuditRoles...))
	{
		auditGroup.GET("", h.ListHandler())
		auditGroup.GET("/stats", h.StatsHandler())
		auditGroup.GET("/filters", h.FiltersHandler())
		if export != nil {
			auditGroup.GET("/export", middleware.RateLimitMiddleware(export), h.ExportHandler())
		} else {
			auditGroup.GET("/export", h.ExportHandler())
		}
		auditGroup.GET("/user/:userId", h.ListByUserHandler())
		auditGroup.GET("/resource/:resource", h.ListByResourceHandler())
		auditGroup.GET("/:id", h.GetHandler())
		auditGroup.DELETE("/cleanup", middleware.RequireRole(cfg.Auth.AdminRoles...), h.CleanupHandler())
	}

	if cfg.Server.UpstreamURL != "" {
		proxy, err := newUpstreamProxy(cfg.Server.UpstreamURL)
		if err != nil {
			return nil, nil, err
		}
		router.Any("/api/*path", gin.WrapH(proxy))
		slog.Info("proxying /api to upstream", "upstream", cfg.Server.UpstreamURL)
	}

	if cfg.Audit.RetentionDays > 0 {
		var archive storage.Storage
		if cfg.Audit.Archive.Enabled {
			archive = deps.Archive
		}
		bg.retentionJob = jobs.NewAuditRetentionJob(auditService, archive, &cfg.Audit)
		safego.Go(func() { bg.retentionJob.Start(context.Background()) })
	}

	return router, bg, nil
}

// newLimiters returns the general and export limiters for the /audit group, or
// nils when rate limiting is disabled. Redis backs both when a client is given.
func newLimiters(cfg *config.Config, rdb redis.UniversalClient, bg *BackgroundServices) (general, export middleware.Limiter) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil, nil
	}

	generalCfg := middleware.DefaultRateLimitConfig()
	if rl.RequestsPerMinute > 0 {
		generalCfg.RequestsPerMinute = rl.RequestsPerMinute
	}
	if rl.Burst > 0 {
		generalCfg.BurstSize = rl.Burst
	}
	exportCfg := middleware.ExportRateLimitConfig()

	if rdb != nil {
		return middleware.NewRedisLimiter(rdb, generalCfg, "ratelimit:audit"),
			middleware.NewRedisLimiter(rdb, exportCfg, "ratelimit:audit-export")
	}

	g := middleware.NewMemoryLimiter(generalCfg)
	e := middleware.NewMemoryLimiter(exportCfg)
	bg.limiters = append(bg.limiters, g, e)
	return g, e
}

// pinger is satisfied by the audit stores.
type pinger interface {
	Ping(ctx context.Context) error
}

// readinessCheck is one dependency probed by /ready
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func readinessChecks(deps Dependencies) []readinessCheck {
	checks := []readinessCheck{{name: "store", check: deps.Store.Ping}}
	if deps.Redis != nil {
		checks = append(checks, readinessCheck{name: "redis", check: func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}})
	}
	if deps.Archive != nil {
		checks = append(checks, readinessCheck{name: "storage", check: func(ctx context.Context) error {
			_, err := deps.Archive.Exists(ctx, readinessProbePath)
			return err
		}})
	}
	return checks
}

// healthCheckHandler is the liveness probe; it only checks the audit store.
func healthCheckHandler(store pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler runs every check in order and reports 503 naming the first
// one that fails.
func readinessHandler(checks ...readinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		results := gin.H{}
		for _, rc := range checks {
			if err := rc.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", rc.name, "error", err)
				results[rc.name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": results,
					"error":  rc.name + " not ready",
				})
				return
			}
			results[rc.name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
