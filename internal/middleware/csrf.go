package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/pkg/crypto"
	"github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
)

const (
	// CSRFCookieName is the cookie used to transport the CSRF token to clients.
	CSRFCookieName = "coursehub_csrf"
	// CSRFHeaderName is the header scripted clients present for unsafe methods.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the hidden form field used by server rendered forms.
	CSRFFormField = "csrf_token"
	// CtxCSRFTokenKey exposes the current token to templates.
	CtxCSRFTokenKey = "csrfToken"

	csrfTokenBytes   = 24
	csrfCookieMaxAge = 12 * 60 * 60
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRF implements the double-submit-cookie pattern for cookie authenticated pages.
// Unsafe methods must echo the cookie value in the X-CSRF-Token header or the
// csrf_token form field.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		token, issued, err := ensureCSRFCookie(c)
		if err != nil {
			respondError(c, errors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}
		c.Set(CtxCSRFTokenKey, token)

		if isUnsafeMethod(method) {
			submitted := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
			if submitted == "" {
				submitted = strings.TrimSpace(c.PostForm(CSRFFormField))
			}
			if !constantTimeEqual(token, submitted) {
				logger.WithModule("csrf").Warn("csrf validation failed",
					zap.String("method", method),
					zap.String("path", c.FullPath()),
					zap.Bool("cookie_issued", issued),
				)
				respondError(c, errors.ErrCSRFInvalid)
				c.Abort()
				return
			}
		} else {
			c.Header(CSRFHeaderName, token)
		}

		c.Next()
	}
}

func ensureCSRFCookie(c *gin.Context) (string, bool, error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		return existing, false, nil
	}

	token, err := crypto.RandomHex(csrfTokenBytes)
	if err != nil {
		return "", false, err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecureRequest(c.Request),
		HttpOnly: true,
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
	return token, true, nil
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}

func constantTimeEqual(a, b string) bool {
	if a == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
