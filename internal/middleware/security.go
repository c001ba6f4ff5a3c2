package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/pkg/crypto"
)

// CtxCSPNonceKey exposes the per-request script nonce to templates.
const CtxCSPNonceKey = "cspNonce"

// SecurityHeaders hardens server rendered pages. Inline scripts run only when they
// carry the per-request nonce; forms may post to external tool endpoints.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := crypto.RandomHex(16)
		if err != nil {
			nonce = ""
		}
		c.Set(CtxCSPNonceKey, nonce)

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", contentSecurityPolicy(nonce))
		c.Next()
	}
}

func contentSecurityPolicy(nonce string) string {
	script := "script-src 'self'"
	if nonce != "" {
		script += " 'nonce-" + nonce + "'"
	}
	return "default-src 'self'; " + script + "; form-action 'self' https: http:; frame-ancestors 'self'"
}
