package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Course is a teaching space. Tools attached to a course are course scoped.
type Course struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"uniqueIndex;size:40;not null" json:"code"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Evaluations []GradebookEvaluation `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"evaluations,omitempty"`
}

// BeforeSave normalises the course code and title.
func (c *Course) BeforeSave(tx *gorm.DB) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Title = strings.TrimSpace(c.Title)
	if c.Code == "" {
		return errors.New("course: code is required")
	}
	if c.Title == "" {
		return errors.New("course: title is required")
	}
	return nil
}

// GradebookEvaluation is a graded item of a course that a tool may report into.
type GradebookEvaluation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"column:c_id;not null;index" json:"course_id"`
	Course    *Course   `gorm:"foreignKey:CourseID" json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Weight    float64   `gorm:"not null;default:0" json:"weight"`
	MaxScore  float64   `gorm:"not null;default:100" json:"max_score"`
	Visible   bool      `gorm:"not null" json:"visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the gradebook naming used by the course tables.
func (GradebookEvaluation) TableName() string { return "gradebook_evaluation" }
