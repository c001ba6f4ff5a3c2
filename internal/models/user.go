package models

import (
	"strings"

	"gorm.io/gorm"
)

// User is a platform account. Credentials live with the identity provider that
// issues access tokens; only profile fields are stored here.
type User struct {
	BaseModel

	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`

	IsRoot   bool `gorm:"default:false" json:"is_root"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FullName joins first and last name, falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Username
	}
	return name
}
