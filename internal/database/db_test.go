package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/internal/permissions"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestOpenPostgresRequiresCredentials(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, table := range []string{"plugin_ims_lti_tool", "gradebook_evaluation", "messages", "courses", "audit_logs", "system_settings"} {
		require.True(t, migrator.HasTable(table), "expected table %s", table)
	}
	require.True(t, migrator.HasColumn(&models.LTITool{}, "c_id"))
	require.True(t, migrator.HasColumn(&models.LTITool{}, "gradebook_eval_id"))
	require.True(t, migrator.HasColumn(&models.LTITool{}, "parent_id"))
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrateAndSeed(db))
	require.NoError(t, SeedData(db), "seeding twice must not fail")

	var roleCount int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCount).Error)
	require.Equal(t, int64(3), roleCount)

	var permissionCount int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&permissionCount).Error)
	require.Equal(t, int64(len(permissions.All())), permissionCount)

	var student models.Role
	require.NoError(t, db.Preload("Permissions").First(&student, "id = ?", RoleStudent).Error)
	ids := make([]string, 0, len(student.Permissions))
	for _, p := range student.Permissions {
		ids = append(ids, p.ID)
	}
	require.Contains(t, ids, permissions.MessageDelete)
	require.NotContains(t, ids, permissions.ToolManage)

	value, err := GetSystemSetting(context.Background(), db, SettingMessageTool)
	require.NoError(t, err)
	require.Equal(t, "true", value)

	value, err = GetSystemSetting(context.Background(), db, SettingSocialTool)
	require.NoError(t, err)
	require.Equal(t, "false", value)
}

func TestSeedDataKeepsExistingSettings(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, UpsertSystemSetting(context.Background(), db, SettingSocialTool, "true"))

	require.NoError(t, SeedDataWithFeatures(db, FeatureDefaults{Messaging: false}))

	value, err := GetSystemSetting(context.Background(), db, SettingSocialTool)
	require.NoError(t, err)
	require.Equal(t, "true", value)

	value, err = GetSystemSetting(context.Background(), db, SettingMessageTool)
	require.NoError(t, err)
	require.Equal(t, "false", value)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
