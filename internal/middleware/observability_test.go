package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/coursehub/pkg/logger"
)

func TestLoggerAssignsRequestIDAndLogsLevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	previous := logger.Logger()
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(previous) })

	r := newTestEngine()
	r.Use(Logger())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	r.ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.ErrorLevel, entries[1].Level)
	require.Equal(t, "req-42", entries[1].ContextMap()["request_id"])
}

func TestRecoveryAnswersByRouteKind(t *testing.T) {
	r := newTestEngine()
	r.Use(Recovery())
	r.GET("/api/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/page", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/panic", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"INTERNAL_SERVER_ERROR"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.True(t, strings.HasPrefix(w.Body.String(), "500 "))
}

func TestNotFoundHandler(t *testing.T) {
	r := newTestEngine()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"NOT_FOUND"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, "404 Resource not found", w.Body.String())
}

func TestSecurityHeadersCarryNonce(t *testing.T) {
	r := newTestEngine()
	r.Use(SecurityHeaders())
	r.GET("/page", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxCSPNonceKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))

	nonce := w.Body.String()
	require.Len(t, nonce, 32)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Contains(t, w.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	r := newTestEngine()
	r.Use(Metrics())
	r.GET("/tools/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tools/7", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
}
