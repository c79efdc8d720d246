package config

import (
	"os"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "timesheet",
				Password: "secret",
				Name:     "timesheet",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=timesheet password=secret dbname=timesheet sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.internal",
				Port:    5433,
				User:    "audit",
				Name:    "audit",
				SSLMode: "disable",
			},
			want: "host=db.internal port=5433 user=audit password= dbname=audit sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	for env, want := range map[string]bool{
		"production":  true,
		"Production":  true,
		"development": false,
		"":            false,
	} {
		s := ServerConfig{Environment: env}
		if got := s.IsProduction(); got != want {
			t.Errorf("IsProduction(%q) = %v, want %v", env, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "timesheet",
			User: "timesheet",
		},
		Store: StoreConfig{Backend: "postgres"},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Local:          LocalStorageConfig{BasePath: "./archive"},
		},
		Audit: AuditConfig{
			RetentionDays:        90,
			CleanupIntervalHours: 24,
			ExportLimit:          10000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid minimal config passes", func(c *Config) {}, ""},
		{"invalid server port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"invalid server port 70000", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"unknown store backend", func(c *Config) { c.Store.Backend = "dynamo" }, "invalid store backend"},
		{
			"mongo store ignores database section",
			func(c *Config) {
				c.Store.Backend = "mongo"
				c.Database = DatabaseConfig{}
				c.Mongo = MongoConfig{URI: "mongodb://localhost:27017", Database: "timesheet"}
			},
			"",
		},
		{
			"mongo store requires uri",
			func(c *Config) {
				c.Store.Backend = "mongo"
				c.Mongo = MongoConfig{Database: "timesheet"}
			},
			"mongo.uri",
		},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true }, "redis.addr"},
		{"retention over a year", func(c *Config) { c.Audit.RetentionDays = 400 }, "retention_days"},
		{"negative retention", func(c *Config) { c.Audit.RetentionDays = -1 }, "retention_days"},
		{
			"retention disabled needs no interval",
			func(c *Config) {
				c.Audit.RetentionDays = 0
				c.Audit.CleanupIntervalHours = 0
			},
			"",
		},
		{"retention without interval", func(c *Config) { c.Audit.CleanupIntervalHours = 0 }, "cleanup_interval_hours"},
		{"zero export limit", func(c *Config) { c.Audit.ExportLimit = 0 }, "export_limit"},
		{
			"archive to s3 requires bucket",
			func(c *Config) {
				c.Audit.Archive = AuditArchiveConfig{Enabled: true, Backend: "s3"}
			},
			"storage.s3.bucket",
		},
		{
			"archive to unknown backend",
			func(c *Config) {
				c.Audit.Archive = AuditArchiveConfig{Enabled: true, Backend: "ftp"}
			},
			"invalid storage backend",
		},
		{
			"archive to local default backend",
			func(c *Config) { c.Audit.Archive.Enabled = true },
			"",
		},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestArchiveBackend(t *testing.T) {
	cfg := minimalValidConfig()
	if got := cfg.ArchiveBackend(); got != "local" {
		t.Errorf("ArchiveBackend() = %q, want local", got)
	}
	cfg.Audit.Archive.Backend = "gcs"
	if got := cfg.ArchiveBackend(); got != "gcs" {
		t.Errorf("ArchiveBackend() = %q, want gcs", got)
	}
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  environment: "production"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
audit:
  require_auth: false
  skip_paths: ["/health", "/internal"]
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if !cfg.Server.IsProduction() {
		t.Error("Server.IsProduction() = false, want true")
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Audit.RequireAuth {
		t.Error("Audit.RequireAuth = true, want false")
	}
	if len(cfg.Audit.SkipPaths) != 2 || cfg.Audit.SkipPaths[1] != "/internal" {
		t.Errorf("Audit.SkipPaths = %v, want [/health /internal]", cfg.Audit.SkipPaths)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("default Store.Backend = %q, want postgres", cfg.Store.Backend)
	}
	if !cfg.Audit.Enabled || !cfg.Audit.RequireAuth {
		t.Error("audit should be enabled and require auth by default")
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("default Audit.RetentionDays = %d, want 90", cfg.Audit.RetentionDays)
	}
	if cfg.Audit.ExportLimit != 10000 {
		t.Errorf("default Audit.ExportLimit = %d, want 10000", cfg.Audit.ExportLimit)
	}
	if cfg.Audit.MaxBodyCapture != 64*1024 {
		t.Errorf("default Audit.MaxBodyCapture = %d, want %d", cfg.Audit.MaxBodyCapture, 64*1024)
	}
	wantSkip := []string{"/health", "/ready", "/metrics", "/audit"}
	if strings.Join(cfg.Audit.SkipPaths, ",") != strings.Join(wantSkip, ",") {
		t.Errorf("default Audit.SkipPaths = %v, want %v", cfg.Audit.SkipPaths, wantSkip)
	}
	if len(cfg.Auth.AuditRoles) != 2 {
		t.Errorf("default Auth.AuditRoles = %v, want [admin manager]", cfg.Auth.AuditRoles)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TSH_STORE_BACKEND", "mongo")
	t.Setenv("TSH_MONGO_DATABASE", "audit_test")
	t.Setenv("TSH_AUDIT_RETENTION_DAYS", "30")

	path := writeTempConfig(t, "logging:\n  level: warn\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Backend != "mongo" {
		t.Errorf("Store.Backend = %q, want mongo", cfg.Store.Backend)
	}
	if cfg.Mongo.Database != "audit_test" {
		t.Errorf("Mongo.Database = %q, want audit_test", cfg.Mongo.Database)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("Audit.RetentionDays = %d, want 30", cfg.Audit.RetentionDays)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
database:
  password: "${TEST_DB_PASS}"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidValueRejected(t *testing.T) {
	path := writeTempConfig(t, "store:\n  backend: cassandra\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

func TestWatchLogLevel_NoFileIsNoop(t *testing.T) {
	cfg := minimalValidConfig()
	called := false
	cfg.WatchLogLevel(func(string) { called = true })
	if called {
		t.Error("apply callback should not run without a config file")
	}
}
