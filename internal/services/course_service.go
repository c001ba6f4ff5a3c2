package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
)

// CreateCourseInput describes a new course.
type CreateCourseInput struct {
	Code        string `json:"code" validate:"required,max=40"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

// CreateEvaluationInput describes a new gradebook evaluation.
type CreateEvaluationInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Weight   float64 `json:"weight" validate:"gte=0"`
	MaxScore float64 `json:"max_score" validate:"gte=0"`
	Visible  *bool   `json:"visible"`
}

// CourseService manages courses and their gradebook evaluations.
type CourseService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewCourseService constructs a CourseService.
func NewCourseService(db *gorm.DB, audit *AuditService) (*CourseService, error) {
	if db == nil {
		return nil, errors.New("course service: db is required")
	}
	return &CourseService{db: db, audit: audit}, nil
}

// Create stores a course. Codes are unique regardless of case.
func (s *CourseService) Create(ctx context.Context, input CreateCourseInput) (*models.Course, error) {
	ctx = ensureContext(ctx)

	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	course := models.Course{
		Code:        input.Code,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict(fmt.Sprintf("course code %s already exists", course.Code))
		}
		return nil, fmt.Errorf("course service: create: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "course.create",
		Resource: fmt.Sprintf("course:%d", course.ID),
		Result:   "success",
		Metadata: map[string]any{"code": course.Code},
	})
	return &course, nil
}

// Get loads a course with its evaluations.
func (s *CourseService) Get(ctx context.Context, id uint) (*models.Course, error) {
	ctx = ensureContext(ctx)

	var course models.Course
	err := s.db.WithContext(ctx).
		Preload("Evaluations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&course, id).Error
	if err != nil {
		return nil, serviceError(notFound(err, "course not found"), "course service: get")
	}
	return &course, nil
}

// List returns every course ordered by code.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	ctx = ensureContext(ctx)

	var courses []models.Course
	if err := s.db.WithContext(ctx).Order("code").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("course service: list: %w", err)
	}
	return courses, nil
}

// Delete removes a course with its evaluations and course tools. Tools elsewhere
// that were linked to a removed tool are detached and keep their copied credentials.
func (s *CourseService) Delete(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.Select("id").First(&course, id).Error; err != nil {
			return notFound(err, "course not found")
		}

		var toolIDs []uint
		if err := tx.Model(&models.LTITool{}).Where("c_id = ?", id).Pluck("id", &toolIDs).Error; err != nil {
			return err
		}
		if len(toolIDs) > 0 {
			if err := tx.Model(&models.LTITool{}).
				Where("parent_id IN ?", toolIDs).
				Where("c_id IS NULL OR c_id <> ?", id).
				UpdateColumn("parent_id", nil).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("c_id = ?", id).Delete(&models.LTITool{}).Error; err != nil {
			return err
		}
		if err := tx.Where("c_id = ?", id).Delete(&models.GradebookEvaluation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Course{}, id).Error
	})
	if err != nil {
		return serviceError(err, "course service: delete")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "course.delete",
		Resource: fmt.Sprintf("course:%d", id),
		Result:   "success",
	})
	return nil
}

// CreateEvaluation adds a gradebook evaluation to a course.
func (s *CourseService) CreateEvaluation(ctx context.Context, courseID uint, input CreateEvaluationInput) (*models.GradebookEvaluation, error) {
	ctx = ensureContext(ctx)

	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var course models.Course
	if err := s.db.WithContext(ctx).Select("id").First(&course, courseID).Error; err != nil {
		return nil, serviceError(notFound(err, "course not found"), "course service: create evaluation")
	}

	eval := models.GradebookEvaluation{
		CourseID: course.ID,
		Name:     input.Name,
		Weight:   input.Weight,
		MaxScore: input.MaxScore,
		Visible:  true,
	}
	if eval.MaxScore == 0 {
		eval.MaxScore = 100
	}
	if input.Visible != nil {
		eval.Visible = *input.Visible
	}

	if err := s.db.WithContext(ctx).Select("*").Omit("ID").Create(&eval).Error; err != nil {
		return nil, fmt.Errorf("course service: create evaluation: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "gradebook.evaluation.create",
		Resource: fmt.Sprintf("evaluation:%d", eval.ID),
		Result:   "success",
		Metadata: map[string]any{"course_id": course.ID},
	})
	return &eval, nil
}

// DeleteEvaluation removes an evaluation. Tools reporting into it keep existing
// with no evaluation.
func (s *CourseService) DeleteEvaluation(ctx context.Context, id uint) error {
	ctx = ensureContext(ctx)

	var detached int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var eval models.GradebookEvaluation
		if err := tx.Select("id").First(&eval, id).Error; err != nil {
			return notFound(err, "evaluation not found")
		}
		result := tx.Model(&models.LTITool{}).
			Where("gradebook_eval_id = ?", id).
			UpdateColumn("gradebook_eval_id", nil)
		if result.Error != nil {
			return result.Error
		}
		detached = result.RowsAffected
		return tx.Delete(&models.GradebookEvaluation{}, id).Error
	})
	if err != nil {
		return serviceError(err, "course service: delete evaluation")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "gradebook.evaluation.delete",
		Resource: fmt.Sprintf("evaluation:%d", id),
		Result:   "success",
		Metadata: map[string]any{"detached_tools": detached},
	})
	return nil
}
