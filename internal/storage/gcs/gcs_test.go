package gcs

import (
	"testing"

	appconfig "github.com/timesheet-app/timesheet/internal/config"
)

func TestNew_MissingBucket(t *testing.T) {
	if _, err := New(&appconfig.GCSStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for missing bucket")
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      appconfig.GCSStorageConfig
		wantErr  bool
		wantOpts int
	}{
		{name: "default", cfg: appconfig.GCSStorageConfig{}, wantOpts: 0},
		{name: "workload identity", cfg: appconfig.GCSStorageConfig{AuthMethod: "workload_identity"}, wantOpts: 0},
		{name: "emulator endpoint", cfg: appconfig.GCSStorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}, wantOpts: 1},
		{name: "implicit service account", cfg: appconfig.GCSStorageConfig{CredentialsFile: "/etc/gcs.json"}, wantOpts: 1},
		{name: "service account json", cfg: appconfig.GCSStorageConfig{AuthMethod: "service_account", CredentialsJSON: `{}`}, wantOpts: 1},
		{name: "service account without credentials", cfg: appconfig.GCSStorageConfig{AuthMethod: "service_account"}, wantErr: true},
		{name: "unsupported", cfg: appconfig.GCSStorageConfig{AuthMethod: "not-a-valid-method"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := clientOptions(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("clientOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(opts) != tt.wantOpts {
				t.Errorf("clientOptions() returned %d options, want %d", len(opts), tt.wantOpts)
			}
		})
	}
}

func TestNew_UnsupportedAuthMethod(t *testing.T) {
	_, err := New(&appconfig.GCSStorageConfig{Bucket: "audit-archive", AuthMethod: "not-a-valid-method"})
	if err == nil {
		t.Error("New() = nil error, want error for unsupported auth_method")
	}
}
