package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/coursehub/internal/models"
)

// Sync persists registered permissions to the backing database.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx := db.WithContext(ctx)
	for _, perm := range All() {
		depends, err := json.Marshal(perm.DependsOn)
		if err != nil {
			return fmt.Errorf("permission: marshal depends_on for %s: %w", perm.ID, err)
		}

		record := models.Permission{
			ID:          perm.ID,
			Module:      perm.Module,
			Description: perm.Description,
			DependsOn:   string(depends),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"module", "description", "depends_on", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("permission: sync %s: %w", perm.ID, err)
		}
	}
	return nil
}

// GrantToRole attaches the listed permissions to a role, skipping ones it already holds.
func GrantToRole(ctx context.Context, db *gorm.DB, roleID string, permissionIDs ...string) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx := db.WithContext(ctx)

	var role models.Role
	if err := tx.Preload("Permissions").First(&role, "id = ?", roleID).Error; err != nil {
		return fmt.Errorf("permission: load role %s: %w", roleID, err)
	}

	held := make(map[string]struct{}, len(role.Permissions))
	for _, perm := range role.Permissions {
		held[perm.ID] = struct{}{}
	}

	var perms []models.Permission
	if err := tx.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
		return fmt.Errorf("permission: load permissions: %w", err)
	}

	missing := make([]models.Permission, 0, len(perms))
	for _, perm := range perms {
		if _, ok := held[perm.ID]; !ok {
			missing = append(missing, perm)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return tx.Model(&role).Association("Permissions").Append(missing)
}
