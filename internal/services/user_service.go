package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrRootUserImmutable ensures the root account cannot be deactivated.
	ErrRootUserImmutable = apperrors.New("USER_ROOT_IMMUTABLE", "Root user cannot perform this operation", http.StatusBadRequest)
)

const defaultUserRole = "student"

// CreateUserInput describes a platform profile. Credentials stay with the identity
// provider; the id should match the subject of the provider's tokens.
type CreateUserInput struct {
	ID        string   `json:"id" validate:"omitempty,uuid"`
	Username  string   `json:"username" validate:"required,max=100"`
	Email     string   `json:"email" validate:"required,email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Avatar    string   `json:"avatar" validate:"omitempty,url"`
	IsRoot    bool     `json:"is_root"`
	RoleIDs   []string `json:"role_ids"`
}

// UserService manages platform profiles and their role assignments.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, auditService: auditService}, nil
}

// Create stores a profile with the requested roles, or the student role when none are given.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	input.ID = strings.TrimSpace(input.ID)
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Avatar = strings.TrimSpace(input.Avatar)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	user := &models.User{
		BaseModel: models.BaseModel{ID: input.ID},
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Avatar:    input.Avatar,
		IsRoot:    input.IsRoot,
		IsActive:  true,
	}

	roleIDs := normaliseRoleIDs(input.RoleIDs)
	if len(roleIDs) == 0 {
		roleIDs = []string{defaultUserRole}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		roles, err := loadRoles(tx, roleIDs)
		if err != nil {
			return err
		}
		if err := tx.Model(user).Association("Roles").Append(roles); err != nil {
			return fmt.Errorf("user service: assign roles: %w", err)
		}
		user.Roles = roles
		return nil
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("username or email already exists")
		}
		return nil, serviceError(err, "user service: create user")
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.create",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{
			"username": user.Username,
			"is_root":  user.IsRoot,
			"role_ids": roleIDs,
		},
	})

	return user, nil
}

// GetByID loads a user with roles.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").First(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// SetRoles replaces the user's roles.
func (s *UserService) SetRoles(ctx context.Context, id string, roleIDs []string) (*models.User, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(id)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	cleanIDs := normaliseRoleIDs(roleIDs)

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		roles, err := loadRoles(tx, cleanIDs)
		if err != nil {
			return err
		}
		if err := tx.Model(&user).Association("Roles").Replace(roles); err != nil {
			return fmt.Errorf("user service: replace roles: %w", err)
		}
		return tx.Preload("Roles").First(&user, "id = ?", userID).Error
	})
	if err != nil {
		return nil, serviceError(err, "user service: set roles")
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.set_roles",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"role_ids": cleanIDs},
	})
	return &user, nil
}

// SetActive toggles the active state of an account. Root users stay active.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("user service: load user: %w", err)
	}
	if user.IsRoot && !active {
		return ErrRootUserImmutable
	}

	if err := s.db.WithContext(ctx).Model(&user).UpdateColumn("is_active", active).Error; err != nil {
		return fmt.Errorf("user service: update active state: %w", err)
	}

	action := "user.activate"
	if !active {
		action = "user.deactivate"
	}
	recordAudit(s.auditService, ctx, AuditEntry{Action: action, Resource: user.ID, Result: "success"})
	return nil
}

// RoleIDs lists the ids of the user's roles in ascending order.
func RoleIDs(user *models.User) []string {
	if user == nil {
		return nil
	}
	ids := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		ids = append(ids, role.ID)
	}
	sort.Strings(ids)
	return ids
}

func loadRoles(tx *gorm.DB, ids []string) ([]models.Role, error) {
	if len(ids) == 0 {
		return []models.Role{}, nil
	}
	var roles []models.Role
	if err := tx.Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("user service: load roles: %w", err)
	}
	if len(roles) != len(ids) {
		return nil, apperrors.NewBadRequest("one or more roles were not found")
	}
	return roles, nil
}

func normaliseRoleIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
