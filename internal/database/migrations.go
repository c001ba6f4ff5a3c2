package database

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/internal/permissions"
)

// System role identifiers.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Feature setting keys stored in system_settings.
const (
	SettingMessageTool     = "message.allow_message_tool"
	SettingSocialTool      = "social.allow_social_tool"
	SettingExtendedProfile = "profile.extended_profile"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Course{},
		&models.GradebookEvaluation{},
		&models.LTITool{},
		&models.Message{},
		&models.SystemSetting{},
		&models.AuditLog{},
	)
}

// FeatureDefaults are the values seeded for feature settings on a fresh install.
type FeatureDefaults struct {
	Messaging       bool
	Social          bool
	ExtendedProfile bool
}

var defaultFeatures = FeatureDefaults{Messaging: true, ExtendedProfile: true}

// SeedData installs system roles, their permissions and the feature settings.
// Existing rows are left untouched.
func SeedData(db *gorm.DB) error {
	return SeedDataWithFeatures(db, defaultFeatures)
}

// SeedDataWithFeatures is SeedData with explicit feature defaults.
func SeedDataWithFeatures(db *gorm.DB, features FeatureDefaults) error {
	ctx := context.Background()

	if err := permissions.Sync(ctx, db); err != nil {
		return err
	}

	roles := []struct {
		role  models.Role
		perms []string
	}{
		{
			role:  models.Role{BaseModel: models.BaseModel{ID: RoleAdmin}, Name: "Administrator", Description: "Full platform access", IsSystem: true},
			perms: allPermissionIDs(),
		},
		{
			role: models.Role{BaseModel: models.BaseModel{ID: RoleTeacher}, Name: "Teacher", Description: "Manages courses and their tools", IsSystem: true},
			perms: []string{
				permissions.MessageView, permissions.MessageDelete,
				permissions.CourseView, permissions.CourseManage,
				permissions.ToolView, permissions.ToolLaunch, permissions.ToolManage,
			},
		},
		{
			role: models.Role{BaseModel: models.BaseModel{ID: RoleStudent}, Name: "Student", Description: "Follows courses", IsSystem: true},
			perms: []string{
				permissions.MessageView, permissions.MessageDelete,
				permissions.CourseView, permissions.ToolView, permissions.ToolLaunch,
			},
		},
	}

	for _, entry := range roles {
		role := entry.role
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
		if err := permissions.GrantToRole(ctx, db, role.ID, entry.perms...); err != nil {
			return err
		}
	}

	settings := map[string]bool{
		SettingMessageTool:     features.Messaging,
		SettingSocialTool:      features.Social,
		SettingExtendedProfile: features.ExtendedProfile,
	}
	for key, value := range settings {
		record := models.SystemSetting{Key: key, Value: strconv.FormatBool(value)}
		if err := db.Where(models.SystemSetting{Key: key}).Attrs(record).FirstOrCreate(&models.SystemSetting{}).Error; err != nil {
			return err
		}
	}

	return nil
}

func allPermissionIDs() []string {
	all := permissions.All()
	ids := make([]string, 0, len(all))
	for _, perm := range all {
		ids = append(ids, perm.ID)
	}
	return ids
}
