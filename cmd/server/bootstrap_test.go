package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/internal/app"
	"github.com/charlesng35/coursehub/internal/database"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "coursehub.sqlite"),
		},
		Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "bootstrap-secret", Issuer: "test"}},
		Features: app.FeatureConfig{
			Messaging:       true,
			ExtendedProfile: true,
		},
		Maintenance: app.MaintenanceConfig{
			Enabled:              true,
			MessageSchedule:      "@daily",
			AuditSchedule:        "@daily",
			MessageRetentionDays: 30,
			AuditRetentionDays:   90,
		},
	}
}

func TestBootstrapRuntimePersistsGeneratedVaultKey(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Cleaner)
	require.NotEmpty(t, cfg.Vault.EncryptionKey)

	stored, err := database.GetSystemSetting(context.Background(), stack.DB, database.VaultEncryptionKeySetting)
	require.NoError(t, err)
	require.Equal(t, cfg.Vault.EncryptionKey, stored)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "maintenance")

	stack.Shutdown(context.Background(), zap.NewNop())

	// a restart without a configured key reuses the stored one
	restarted := testConfig(t)
	restarted.Database.Path = cfg.Database.Path
	again, err := bootstrapRuntime(context.Background(), restarted, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { again.Shutdown(context.Background(), zap.NewNop()) })
	require.Equal(t, cfg.Vault.EncryptionKey, restarted.Vault.EncryptionKey)
}

func TestBootstrapRuntimeRequiresJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWT.Secret = "  "

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, app.ErrJWTSecretMissing)
}

func TestBootstrapRuntimeWithoutMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })
	require.Nil(t, stack.Cleaner)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "maintenance")
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver: " PostgreSQL ",
		Postgres: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     5432,
			Database: "coursehub",
			Username: "app",
			Password: " secret ",
			Options:  map[string]string{"sslmode": "require"},
		},
	}}

	got := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", got.Driver)
	require.Equal(t, "db.internal", got.Host)
	require.Equal(t, 5432, got.Port)
	require.Equal(t, "coursehub", got.Name)
	require.Equal(t, "app", got.User)
	require.Equal(t, " secret ", got.Password)
	require.Equal(t, "require", got.Options["sslmode"])

	cfg.Database.Driver = "mariadb"
	cfg.Database.MySQL = app.DBAuthConfig{Host: "mysql", Database: "lms"}
	got = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", got.Driver)
	require.Equal(t, "lms", got.Name)

	cfg.Database.Driver = ""
	require.Equal(t, "sqlite", convertDatabaseConfig(cfg).Driver)

	cfg.Database.Driver = "oracle"
	require.Equal(t, "oracle", convertDatabaseConfig(cfg).Driver)
}

func TestLoadApplicationConfigRejectsMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
