package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/models"
)

func seedUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: username,
		LastName:  "Tester",
		IsActive:  true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func ptr[T any](v T) *T { return &v }
