package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/coursehub/internal/lti"
	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/internal/vault"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/validator"
)

// ToolPrivacyDTO mirrors models.ToolPrivacy for API payloads.
type ToolPrivacyDTO struct {
	ShareName    bool `json:"share_name"`
	ShareEmail   bool `json:"share_email"`
	SharePicture bool `json:"share_picture"`
}

// LTIToolDTO is a tool configuration without its shared secret.
type LTIToolDTO struct {
	ID                uint            `json:"id"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	LaunchURL         string          `json:"launch_url"`
	ConsumerKey       string          `json:"consumer_key"`
	CustomParams      *string         `json:"custom_params,omitempty"`
	ActiveDeepLinking bool            `json:"active_deep_linking"`
	Privacy           *ToolPrivacyDTO `json:"privacy,omitempty"`
	CourseID          *uint           `json:"course_id,omitempty"`
	GradebookEvalID   *uint           `json:"gradebook_eval_id,omitempty"`
	ParentID          *uint           `json:"parent_id,omitempty"`
	IsGlobal          bool            `json:"is_global"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LTIToolNode is a tool with the tools linked below it.
type LTIToolNode struct {
	LTIToolDTO
	Children []LTIToolNode `json:"children,omitempty"`
}

// CreateLTIToolInput describes a new tool. ConsumerKey and SharedSecret may be
// omitted when ParentID is set: they are copied from the parent.
type CreateLTIToolInput struct {
	Name              string          `json:"name" validate:"required,max=255"`
	Description       *string         `json:"description"`
	LaunchURL         string          `json:"launch_url" validate:"required,launch_url"`
	ConsumerKey       string          `json:"consumer_key" validate:"required_without=ParentID"`
	SharedSecret      string          `json:"shared_secret" validate:"required_without=ParentID"`
	CustomParams      *string         `json:"custom_params"`
	ActiveDeepLinking bool            `json:"active_deep_linking"`
	Privacy           *ToolPrivacyDTO `json:"privacy"`
	CourseID          *uint           `json:"course_id"`
	GradebookEvalID   *uint           `json:"gradebook_eval_id"`
	ParentID          *uint           `json:"parent_id"`
}

// UpdateLTIToolInput describes mutable tool fields. A nil pointer leaves the field unchanged.
type UpdateLTIToolInput struct {
	Name              *string         `json:"name" validate:"omitempty,max=255"`
	Description       *string         `json:"description"`
	LaunchURL         *string         `json:"launch_url" validate:"omitempty,launch_url"`
	ConsumerKey       *string         `json:"consumer_key"`
	SharedSecret      *string         `json:"shared_secret"`
	CustomParams      *string         `json:"custom_params"`
	ActiveDeepLinking *bool           `json:"active_deep_linking"`
	Privacy           *ToolPrivacyDTO `json:"privacy"`
	CourseID          *uint           `json:"course_id"`
	ClearCourse       bool            `json:"clear_course"`
	GradebookEvalID   *uint           `json:"gradebook_eval_id"`
	ClearGradebook    bool            `json:"clear_gradebook_eval"`
}

// LTIToolFilter narrows List. CourseID with IncludeGlobal returns the tools
// available inside that course.
type LTIToolFilter struct {
	CourseID      *uint
	GlobalOnly    bool
	IncludeGlobal bool
}

// ToolCredentials is a tool with its shared secret in plain text, for launches.
type ToolCredentials struct {
	Tool   models.LTITool
	Secret string
}

// LTIToolService manages external tool configurations. Shared secrets are sealed
// with the vault cipher when one is configured.
type LTIToolService struct {
	db     *gorm.DB
	audit  *AuditService
	cipher *vault.SecretCipher
	log    *zap.Logger
}

// NewLTIToolService constructs an LTIToolService. cipher may be nil, in which
// case secrets are stored as given.
func NewLTIToolService(db *gorm.DB, audit *AuditService, cipher *vault.SecretCipher) (*LTIToolService, error) {
	if db == nil {
		return nil, errors.New("lti tool service: db is required")
	}
	return &LTIToolService{db: db, audit: audit, cipher: cipher, log: logger.WithModule("lti")}, nil
}

// Create stores a tool. With a parent, the parent's credentials and privacy are
// copied onto the new tool before it is written.
func (s *LTIToolService) Create(ctx context.Context, input CreateLTIToolInput) (*LTIToolDTO, error) {
	ctx = ensureContext(ctx)

	input.Name = strings.TrimSpace(input.Name)
	input.LaunchURL = strings.TrimSpace(input.LaunchURL)
	input.ConsumerKey = strings.TrimSpace(input.ConsumerKey)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	tool := models.LTITool{
		Name:              input.Name,
		Description:       trimmedPtr(input.Description),
		LaunchURL:         input.LaunchURL,
		ConsumerKey:       input.ConsumerKey,
		CustomParams:      input.CustomParams,
		ActiveDeepLinking: input.ActiveDeepLinking,
		CourseID:          input.CourseID,
		GradebookEvalID:   input.GradebookEvalID,
	}
	if input.Privacy != nil {
		tool.SetPrivacy(input.Privacy.ShareName, input.Privacy.ShareEmail, input.Privacy.SharePicture)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkToolScope(tx, tool.CourseID, tool.GradebookEvalID); err != nil {
			return err
		}

		if input.ParentID != nil {
			var parent models.LTITool
			if err := tx.First(&parent, *input.ParentID).Error; err != nil {
				return notFound(err, "parent tool not found")
			}
			tool.SetParent(&parent)
			tool.Parent = nil
		} else {
			sealed, err := s.seal(input.SharedSecret)
			if err != nil {
				return err
			}
			tool.SharedSecret = sealed
		}

		return tx.Omit(clause.Associations).Create(&tool).Error
	})
	if err != nil {
		return nil, serviceError(err, "lti tool service: create")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "lti.tool.create",
		Resource: toolResource(tool.ID),
		Result:   "success",
		Metadata: map[string]any{"name": tool.Name, "course_id": tool.CourseID, "parent_id": tool.ParentID},
	})

	dto := toLTIToolDTO(tool)
	return &dto, nil
}

// Get returns a tool without its secret.
func (s *LTIToolService) Get(ctx context.Context, id uint) (*LTIToolDTO, error) {
	tool, err := s.load(ensureContext(ctx), s.db, id)
	if err != nil {
		return nil, serviceError(err, "lti tool service: get")
	}
	dto := toLTIToolDTO(*tool)
	return &dto, nil
}

// Credentials returns a tool with its shared secret opened, for building a launch.
func (s *LTIToolService) Credentials(ctx context.Context, id uint) (*ToolCredentials, error) {
	tool, err := s.load(ensureContext(ctx), s.db, id)
	if err != nil {
		return nil, serviceError(err, "lti tool service: credentials")
	}
	secret := tool.SharedSecret
	if s.cipher != nil {
		if secret, err = s.cipher.Open(tool.SharedSecret); err != nil {
			return nil, fmt.Errorf("lti tool service: credentials: %w", err)
		}
	} else if vault.IsSealed(secret) {
		return nil, errors.New("lti tool service: credentials: secret is sealed and no vault key is configured")
	}
	return &ToolCredentials{Tool: *tool, Secret: secret}, nil
}

// List returns tools matching filter in ascending id order.
func (s *LTIToolService) List(ctx context.Context, filter LTIToolFilter) ([]LTIToolDTO, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.LTITool{})
	switch {
	case filter.GlobalOnly:
		query = query.Where("c_id IS NULL")
	case filter.CourseID != nil && filter.IncludeGlobal:
		query = query.Where("c_id = ? OR c_id IS NULL", *filter.CourseID)
	case filter.CourseID != nil:
		query = query.Where("c_id = ?", *filter.CourseID)
	}

	var tools []models.LTITool
	if err := query.Order("id").Find(&tools).Error; err != nil {
		return nil, fmt.Errorf("lti tool service: list: %w", err)
	}
	return toLTIToolDTOs(tools), nil
}

// Update applies the non-nil fields of input.
func (s *LTIToolService) Update(ctx context.Context, id uint, input UpdateLTIToolInput) (*LTIToolDTO, error) {
	ctx = ensureContext(ctx)

	if err := validateInput(input); err != nil {
		return nil, err
	}

	var tool models.LTITool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		tool = *loaded

		if input.Name != nil {
			tool.Name = *input.Name
		}
		if input.Description != nil {
			tool.Description = trimmedPtr(input.Description)
		}
		if input.LaunchURL != nil {
			if !validator.IsLaunchURL(*input.LaunchURL) {
				return apperrors.NewBadRequest("launch_url must be an absolute http(s) url")
			}
			tool.LaunchURL = strings.TrimSpace(*input.LaunchURL)
		}
		if input.ConsumerKey != nil {
			tool.ConsumerKey = *input.ConsumerKey
		}
		if input.SharedSecret != nil {
			if strings.TrimSpace(*input.SharedSecret) == "" {
				return apperrors.NewBadRequest("shared_secret cannot be empty")
			}
			sealed, err := s.seal(*input.SharedSecret)
			if err != nil {
				return err
			}
			tool.SharedSecret = sealed
		}
		if input.CustomParams != nil {
			tool.CustomParams = input.CustomParams
		}
		if input.ActiveDeepLinking != nil {
			tool.ActiveDeepLinking = *input.ActiveDeepLinking
		}
		if input.Privacy != nil {
			tool.SetPrivacy(input.Privacy.ShareName, input.Privacy.ShareEmail, input.Privacy.SharePicture)
		}
		switch {
		case input.ClearCourse:
			tool.CourseID = nil
			tool.GradebookEvalID = nil
		case input.CourseID != nil:
			tool.CourseID = input.CourseID
		}
		switch {
		case input.ClearGradebook:
			tool.GradebookEvalID = nil
		case input.GradebookEvalID != nil:
			tool.GradebookEvalID = input.GradebookEvalID
		}

		if strings.TrimSpace(tool.Name) == "" || strings.TrimSpace(tool.ConsumerKey) == "" {
			return apperrors.NewBadRequest("name and consumer_key cannot be empty")
		}
		if err := checkToolScope(tx, tool.CourseID, tool.GradebookEvalID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(&tool).Error
	})
	if err != nil {
		return nil, serviceError(err, "lti tool service: update")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "lti.tool.update",
		Resource: toolResource(tool.ID),
		Result:   "success",
		Metadata: map[string]any{"secret_changed": input.SharedSecret != nil},
	})

	dto := toLTIToolDTO(tool)
	return &dto, nil
}

// Delete removes a tool. Its children are detached and keep their copied credentials.
func (s *LTIToolService) Delete(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)

	var orphans int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(ctx, tx, id); err != nil {
			return err
		}
		result := tx.Model(&models.LTITool{}).Where("parent_id = ?", id).UpdateColumn("parent_id", nil)
		if result.Error != nil {
			return result.Error
		}
		orphans = result.RowsAffected
		return tx.Delete(&models.LTITool{}, id).Error
	})
	if err != nil {
		return serviceError(err, "lti tool service: delete")
	}

	s.log.Info("lti tool deleted", zap.Uint("tool_id", id), zap.Int64("detached_children", orphans))
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "lti.tool.delete",
		Resource: toolResource(id),
		Result:   "success",
		Metadata: map[string]any{"detached_children": orphans},
	})
	return nil
}

// SetParent links the tool under parentID, copying the parent's consumer key,
// shared secret and privacy at this moment. A nil parentID detaches the tool.
// Links that would create a cycle are rejected.
func (s *LTIToolService) SetParent(ctx context.Context, id uint, parentID *uint) (*LTIToolDTO, error) {
	ctx = ensureContext(ctx)

	var tool models.LTITool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		arena, err := s.arena(tx)
		if err != nil {
			return err
		}

		if parentID == nil {
			err = arena.Unlink(id)
		} else {
			err = arena.Link(id, *parentID)
		}
		switch {
		case errors.Is(err, lti.ErrUnknownTool):
			return apperrors.ErrNotFound.WithMessage("tool not found").WithInternal(err)
		case errors.Is(err, lti.ErrCycle):
			return apperrors.NewBadRequest("a tool cannot be linked below itself or its descendants").WithInternal(err)
		case err != nil:
			return err
		}

		tool, _ = arena.Get(id)
		return tx.Model(&tool).Updates(map[string]any{
			"parent_id":     tool.ParentID,
			"consumer_key":  tool.ConsumerKey,
			"shared_secret": tool.SharedSecret,
			"privacy":       tool.Privacy,
		}).Error
	})
	if err != nil {
		return nil, serviceError(err, "lti tool service: set parent")
	}

	s.log.Info("lti tool relinked", zap.Uint("tool_id", id), zap.Any("parent_id", tool.ParentID))
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "lti.tool.set_parent",
		Resource: toolResource(id),
		Result:   "success",
		Metadata: map[string]any{"parent_id": tool.ParentID},
	})

	dto := toLTIToolDTO(tool)
	return &dto, nil
}

// Children lists the tools linked directly below id in ascending id order.
func (s *LTIToolService) Children(ctx context.Context, id uint) ([]LTIToolDTO, error) {
	ctx = ensureContext(ctx)

	if _, err := s.load(ctx, s.db, id); err != nil {
		return nil, serviceError(err, "lti tool service: children")
	}
	var children []models.LTITool
	if err := s.db.WithContext(ctx).Where("parent_id = ?", id).Order("id").Find(&children).Error; err != nil {
		return nil, fmt.Errorf("lti tool service: children: %w", err)
	}
	return toLTIToolDTOs(children), nil
}

// Tree returns every tool arranged under its root.
func (s *LTIToolService) Tree(ctx context.Context) ([]LTIToolNode, error) {
	arena, err := s.arena(s.db.WithContext(ensureContext(ctx)))
	if err != nil {
		return nil, fmt.Errorf("lti tool service: tree: %w", err)
	}
	return toLTIToolNodes(arena.Tree()), nil
}

func (s *LTIToolService) arena(tx *gorm.DB) (*lti.Arena, error) {
	var tools []models.LTITool
	if err := tx.Order("id").Find(&tools).Error; err != nil {
		return nil, err
	}
	return lti.NewArena(tools...)
}

func (s *LTIToolService) load(ctx context.Context, tx *gorm.DB, id uint) (*models.LTITool, error) {
	var tool models.LTITool
	if err := tx.WithContext(ctx).First(&tool, id).Error; err != nil {
		return nil, notFound(err, "tool not found")
	}
	return &tool, nil
}

func (s *LTIToolService) seal(secret string) (string, error) {
	if s.cipher == nil {
		return secret, nil
	}
	return s.cipher.Seal(secret)
}

// checkToolScope verifies the course exists and the evaluation belongs to it.
func checkToolScope(tx *gorm.DB, courseID, evalID *uint) error {
	if courseID != nil {
		var course models.Course
		if err := tx.Select("id").First(&course, *courseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBadRequest("course does not exist")
			}
			return err
		}
	}
	if evalID == nil {
		return nil
	}
	if courseID == nil {
		return apperrors.NewBadRequest("a gradebook evaluation requires a course")
	}
	var eval models.GradebookEvaluation
	if err := tx.Select("id", "c_id").First(&eval, *evalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewBadRequest("gradebook evaluation does not exist")
		}
		return err
	}
	if eval.CourseID != *courseID {
		return apperrors.NewBadRequest("gradebook evaluation belongs to another course")
	}
	return nil
}

func toolResource(id uint) string {
	return fmt.Sprintf("lti_tool:%d", id)
}

func toLTIToolDTO(tool models.LTITool) LTIToolDTO {
	dto := LTIToolDTO{
		ID:                tool.ID,
		Name:              tool.Name,
		Description:       tool.Description,
		LaunchURL:         tool.LaunchURL,
		ConsumerKey:       tool.ConsumerKey,
		CustomParams:      tool.CustomParams,
		ActiveDeepLinking: tool.ActiveDeepLinking,
		CourseID:          tool.CourseID,
		GradebookEvalID:   tool.GradebookEvalID,
		ParentID:          tool.ParentID,
		IsGlobal:          tool.IsGlobal(),
		CreatedAt:         tool.CreatedAt,
		UpdatedAt:         tool.UpdatedAt,
	}
	if privacy, err := tool.UnserializePrivacy(); err == nil {
		dto.Privacy = &ToolPrivacyDTO{
			ShareName:    privacy.ShareName,
			ShareEmail:   privacy.ShareEmail,
			SharePicture: privacy.SharePicture,
		}
	}
	return dto
}

func toLTIToolDTOs(tools []models.LTITool) []LTIToolDTO {
	out := make([]LTIToolDTO, 0, len(tools))
	for _, tool := range tools {
		out = append(out, toLTIToolDTO(tool))
	}
	return out
}

func toLTIToolNodes(nodes []lti.Node) []LTIToolNode {
	out := make([]LTIToolNode, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, LTIToolNode{
			LTIToolDTO: toLTIToolDTO(node.Tool),
			Children:   toLTIToolNodes(node.Children),
		})
	}
	return out
}
