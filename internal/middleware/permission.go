package middleware

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/permissions"
	"github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/metrics"
	"github.com/charlesng35/coursehub/pkg/response"
)

// PermissionChecker is satisfied by *permissions.Checker.
type PermissionChecker interface {
	Check(ctx context.Context, userID, permissionID string) (bool, error)
}

var _ PermissionChecker = (*permissions.Checker)(nil)

// RequirePermission checks that the authenticated user has the provided permission ID
// and answers with JSON errors.
func RequirePermission(checker PermissionChecker, permissionID string) gin.HandlerFunc {
	return requirePermission(checker, permissionID, response.Error)
}

// RequirePagePermission is RequirePermission for server rendered routes.
func RequirePagePermission(checker PermissionChecker, permissionID string) gin.HandlerFunc {
	return requirePermission(checker, permissionID, response.ErrorPage)
}

func requirePermission(checker PermissionChecker, permissionID string, fail func(*gin.Context, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Authorize(c, checker, permissionID, fail) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// Authorize checks permissionID for the authenticated user and writes the failure
// through fail. It reports whether the request may proceed.
func Authorize(c *gin.Context, checker PermissionChecker, permissionID string, fail func(*gin.Context, error)) bool {
	userID := c.GetString(CtxUserIDKey)
	if userID == "" {
		fail(c, errors.ErrUnauthorized)
		return false
	}

	allowed, err := checker.Check(c.Request.Context(), userID, permissionID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
			fail(c, errors.ErrUnauthorized)
			return false
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
		logger.WithModule("http").Error("permission check failed",
			zap.String("permission", permissionID),
			zap.Error(err),
		)
		fail(c, errors.ErrInternalServer.WithInternal(err))
		return false
	}
	if !allowed {
		metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
		fail(c, errors.ErrForbidden)
		return false
	}
	metrics.PermissionChecks.WithLabelValues(permissionID, "allowed").Inc()
	return true
}
