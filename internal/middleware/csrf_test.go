package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func csrfEngine() *gin.Engine {
	r := newTestEngine()
	r.Use(CSRF())
	r.GET("/form", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxCSRFTokenKey)) })
	r.POST("/form", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func issueCSRF(t *testing.T, r *gin.Engine) (*http.Cookie, string) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := w.Result()
	defer resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == CSRFCookieName {
			require.Equal(t, c.Value, w.Body.String())
			require.Equal(t, c.Value, resp.Header.Get(CSRFHeaderName))
			return c, c.Value
		}
	}
	t.Fatal("csrf cookie not issued")
	return nil, ""
}

func TestCSRFAcceptsHeaderAndFormField(t *testing.T) {
	r := csrfEngine()
	cookie, token := issueCSRF(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	form := url.Values{CSRFFormField: {token}}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCSRFRejectsMissingOrWrongToken(t *testing.T) {
	r := csrfEngine()
	cookie, _ := issueCSRF(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/form", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, "forged")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "CSRF")
}

func TestCSRFAnswersAPIRoutesWithJSON(t *testing.T) {
	r := newTestEngine()
	r.Use(CSRF())
	r.DELETE("/api/things/1", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/things/1", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")
	require.Contains(t, w.Body.String(), `"success":false`)
}
