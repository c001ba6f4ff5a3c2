package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/auditctx"
	iauth "github.com/charlesng35/coursehub/internal/auth"
	"github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"

	// AccessTokenCookie carries the access token for server rendered pages.
	AccessTokenCookie = "access_token"
)

// Identify resolves the caller from a bearer token or the access token cookie.
// Requests without a valid token continue anonymously.
func Identify(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(AccessTokenCookie)
		}
		if token == "" || jwt == nil {
			c.Next()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Next()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    claims.UserID,
			Username:  claims.Username,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))

		c.Next()
	}
}

// RequireAuth rejects anonymous requests with a JSON 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Claims returns the validated claims of the caller, if any.
func Claims(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok && claims != nil
}

func bearerToken(header string) string {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
