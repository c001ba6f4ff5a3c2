package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the id resolved by middleware.Identify, or "" for anonymous callers.
func currentUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
}

// parseUintParam reads a positive integer path parameter.
func parseUintParam(c *gin.Context, key string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(key)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
