package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
)

// Checker evaluates user permissions against the registry.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Check reports whether the user holds permissionID and everything it depends on.
// Root users hold every permission; deactivated users hold none.
func (c *Checker) Check(ctx context.Context, userID, permissionID string) (bool, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}

	user, err := c.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}
	if user.IsRoot {
		return true, nil
	}

	deps, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}

	granted := grantedSet(user)
	for _, id := range append(deps, permissionID) {
		if _, ok := granted[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Granted lists the permission ids held by the user in ascending order.
func (c *Checker) Granted(ctx context.Context, userID string) ([]string, error) {
	user, err := c.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	if !user.IsActive {
		return ids, nil
	}
	if user.IsRoot {
		for _, perm := range All() {
			ids = append(ids, perm.ID)
		}
		return ids, nil
	}

	for id := range grantedSet(user) {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Checker) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("permission checker: user id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).
		Preload("Roles.Permissions").
		First(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load user: %w", err)
	}
	return &user, nil
}

func grantedSet(user *models.User) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			set[perm.ID] = struct{}{}
		}
	}
	return set
}
