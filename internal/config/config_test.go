package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.HTTPPort)
	assert.Equal(t, DriverPostgres, cfg.App.StorageDriver)
	assert.Equal(t, int64(1<<20), cfg.App.MaxBodyBytes)
	assert.Equal(t, 30, cfg.App.ShutdownTimeoutSeconds)
	assert.Equal(t, 25, cfg.DB.MaxOpenConns)
	assert.True(t, cfg.DB.AutoMigrate)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "user-crud-service", cfg.Logger.ServiceName)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := "HTTP_PORT=9090\nSTORAGE_DRIVER=SQLite\nSQLITE_PATH=/tmp/u.db\nAPP_ENV=production\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.HTTPPort)
	assert.Equal(t, DriverSQLite, cfg.App.StorageDriver)
	assert.Equal(t, "/tmp/u.db", cfg.SQLite.Path)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte("HTTP_PORT=9090\n"), 0o600))
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_SECOND", "2.5")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.App.HTTPPort)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.App.StorageDriver = "mongo" }, wantErr: "unknown STORAGE_DRIVER"},
		{name: "sqlite without path", mutate: func(c *Config) {
			c.App.StorageDriver = DriverSQLite
			c.SQLite.Path = ""
		}, wantErr: "SQLITE_PATH"},
		{name: "dynamodb without table", mutate: func(c *Config) {
			c.App.StorageDriver = DriverDynamoDB
			c.DynamoDB.Table = ""
		}, wantErr: "DYNAMODB_TABLE"},
		{name: "idle above open", mutate: func(c *Config) { c.DB.MaxIdleConns = 100 }, wantErr: "DB_MAX_IDLE_CONNS"},
		{name: "rate limit without redis", mutate: func(c *Config) { c.RateLimit.Enabled = true }, wantErr: "requires REDIS_ENABLED"},
		{name: "non-positive body limit", mutate: func(c *Config) { c.App.MaxBodyBytes = 0 }, wantErr: "HTTP_MAX_BODY_BYTES"},
		{name: "tracing without endpoint", mutate: func(c *Config) {
			c.Observability.TracingEnabled = true
			c.Observability.OTLPEndpoint = ""
		}, wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.App.HTTPPort = ""
	cfg.App.ShutdownTimeoutSeconds = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT_SECONDS")
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: "1", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h user=u password=p dbname=n port=1 sslmode=disable", db.DSN())
}
