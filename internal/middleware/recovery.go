package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/response"
)

// Recovery converts panics into a 500. API routes get the JSON envelope, pages
// get the error template.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", r),
					zap.ByteString("stack", debug.Stack()),
				)
				respondError(c, errors.ErrInternalServer)
				c.Abort()
			}
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes in the format the caller expects.
func NotFoundHandler(c *gin.Context) {
	respondError(c, errors.ErrNotFound)
}

func respondError(c *gin.Context, err error) {
	if wantsJSON(c.Request) {
		response.Error(c, err)
		return
	}
	response.ErrorPage(c, err)
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
