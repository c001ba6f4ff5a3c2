package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/api"
	"github.com/charlesng35/coursehub/internal/app"
	"github.com/charlesng35/coursehub/internal/app/maintenance"
	iauth "github.com/charlesng35/coursehub/internal/auth"
	"github.com/charlesng35/coursehub/internal/database"
	"github.com/charlesng35/coursehub/internal/monitoring/checks"
	"github.com/charlesng35/coursehub/internal/services"
	"github.com/charlesng35/coursehub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime opens the database, settles runtime secrets, starts the
// maintenance scheduler and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	storedKey, err := database.GetSystemSetting(ctx, stack.DB, database.VaultEncryptionKeySetting)
	if err != nil {
		return nil, fmt.Errorf("read stored vault key: %w", err)
	}
	generated, err := app.ApplyRuntimeDefaults(cfg, storedKey)
	if err != nil {
		return nil, err
	}
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}
	if err := database.EnsureVaultEncryptionKey(ctx, stack.DB, cfg.Vault.EncryptionKey); err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	var jobs checks.JobReporter
	if cfg.Maintenance.Enabled {
		stack.Cleaner, err = newCleaner(stack.DB, cfg.Maintenance)
		if err != nil {
			return nil, err
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		jobs = stack.Cleaner
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, jobs)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func newCleaner(db *gorm.DB, cfg app.MaintenanceConfig) (*maintenance.Cleaner, error) {
	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	messageSvc, err := services.NewMessageService(db, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise message service: %w", err)
	}

	return maintenance.NewCleaner(messageSvc, auditSvc,
		maintenance.WithMessageSchedule(cfg.MessageSchedule),
		maintenance.WithAuditSchedule(cfg.AuditSchedule),
		maintenance.WithMessageRetentionDays(cfg.MessageRetentionDays),
		maintenance.WithAuditRetentionDays(cfg.AuditRetentionDays),
	), nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}
	if err := database.SeedDataWithFeatures(db, database.FeatureDefaults{
		Messaging:       cfg.Features.Messaging,
		Social:          cfg.Features.Social,
		ExtendedProfile: cfg.Features.ExtendedProfile,
	}); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("seed database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	dbCfg.Options = auth.Options
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
