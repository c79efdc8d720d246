// Command server runs the timesheet audit service.
//
// Usage:
//
//	server [serve]          start the HTTP server
//	server migrate up|down  apply or roll back the PostgreSQL schema
//	server cleanup [days]   delete audit records older than days (default 90)
//	server archive get|rm <path>
//	                        print or remove a retention archive object
//	server version          print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/timesheet-app/timesheet/internal/api"
	"github.com/timesheet-app/timesheet/internal/audit"
	"github.com/timesheet-app/timesheet/internal/auth"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/db"
	"github.com/timesheet-app/timesheet/internal/db/mongostore"
	"github.com/timesheet-app/timesheet/internal/db/repositories"
	"github.com/timesheet-app/timesheet/internal/services"
	"github.com/timesheet-app/timesheet/internal/storage"
	"github.com/timesheet-app/timesheet/internal/telemetry"

	// Archive backends register themselves with the storage factory
	_ "github.com/timesheet-app/timesheet/internal/storage/azure"
	_ "github.com/timesheet-app/timesheet/internal/storage/gcs"
	_ "github.com/timesheet-app/timesheet/internal/storage/local"
	_ "github.com/timesheet-app/timesheet/internal/storage/s3"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("Timesheet audit service v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "cleanup":
		days := services.DefaultRetentionDays
		if len(os.Args) > 2 {
			if days, err = strconv.Atoi(os.Args[2]); err != nil {
				return fmt.Errorf("usage: %s cleanup [days]: %w", os.Args[0], err)
			}
		}
		return runCleanup(cfg, days)
	case "archive":
		st, err := storage.NewStorage(cfg, cfg.ArchiveBackend())
		if err != nil {
			return fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		return runArchive(context.Background(), st, os.Args[2:], os.Stdout)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, cleanup, archive, version", command)
	}
}

// auditBackend is an opened audit store and its user directory.
type auditBackend struct {
	store services.AuditStore
	users services.UserDirectory
	close func()
}

// openStore connects the backend named by store.backend. Postgres migrations
// run here so a fresh database is usable immediately.
func openStore(ctx context.Context, cfg *config.Config) (*auditBackend, error) {
	switch cfg.Store.Backend {
	case "mongo":
		client, err := mongostore.Connect(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.Mongo.Database)
		auditColl := database.Collection(cfg.Mongo.AuditCollection)
		if err := mongostore.EnsureIndexes(ctx, auditColl); err != nil {
			slog.Warn("failed to ensure mongo indexes", "error", err)
		}
		slog.Info("connected to mongo", "database", cfg.Mongo.Database, "collection", cfg.Mongo.AuditCollection)
		return &auditBackend{
			store: mongostore.NewAuditStore(auditColl),
			users: mongostore.NewUserDirectory(database.Collection(cfg.Mongo.UsersCollection)),
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

		if err := db.RunMigrations(database, "up"); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if v, dirty, err := db.GetMigrationVersion(database); err != nil {
			slog.Warn("failed to get migration version", "error", err)
		} else {
			slog.Info("database schema version", "version", v, "dirty", dirty)
		}
		telemetry.StartDBStatsCollector(database)

		return &auditBackend{
			store: repositories.NewAuditRepository(sqlx.NewDb(database, "postgres")),
			users: repositories.NewUserRepository(database),
			close: func() { database.Close() },
		}, nil
	}
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	cfg.WatchLogLevel(telemetry.SetLevel)

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	backend, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	deps := api.Dependencies{Store: backend.store, Users: backend.users}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		deps.Redis = rdb
		slog.Info("redis rate limiting enabled", "addr", cfg.Redis.Addr)
	}

	if cfg.Audit.Archive.Enabled {
		archive, err := storage.NewStorage(cfg, cfg.ArchiveBackend())
		if err != nil {
			return fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		deps.Archive = archive
		slog.Info("audit archive enabled", "backend", cfg.ArchiveBackend(), "prefix", cfg.Audit.Archive.Prefix)
	}

	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	if shippers.Len() > 0 {
		deps.Shipper = shippers
		slog.Info("audit shipping enabled", "destinations", shippers.Len())
	}

	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.PrometheusPort > 0 {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	router, bgServices, err := api.NewRouter(cfg, deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress(),
			"environment", cfg.Server.Environment, "store", cfg.Store.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	bgServices.Shutdown(ctx)

	slog.Info("server stopped gracefully")
	return nil
}

func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Store.Backend == "mongo" {
		return fmt.Errorf("migrations apply to the postgres store only")
	}
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migrations completed", "version", v, "dirty", dirty)
	return nil
}

func runCleanup(cfg *config.Config, days int) error {
	if err := services.ValidateRetention(days); err != nil {
		return err
	}
	ctx := context.Background()
	backend, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	deleted, err := services.NewAuditService(backend.store, nil, 0).Cleanup(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Deleted %d audit logs older than %d days\n", deleted, days)
	return nil
}
