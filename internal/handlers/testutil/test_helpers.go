package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/api"
	"github.com/charlesng35/coursehub/internal/app"
	iauth "github.com/charlesng35/coursehub/internal/auth"
	"github.com/charlesng35/coursehub/internal/database"
	sharedtestutil "github.com/charlesng35/coursehub/internal/database/testutil"
	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/pkg/response"
)

const jwtSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Config     *app.Config
	csrfToken  string
	csrfCookie *http.Cookie
}

// Option adjusts the configuration before the router is built.
type Option func(*app.Config)

// WithFeatures overrides the seeded feature defaults.
func WithFeatures(messaging, social, extendedProfile bool) Option {
	return func(cfg *app.Config) {
		cfg.Features = app.FeatureConfig{Messaging: messaging, Social: social, ExtendedProfile: extendedProfile}
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Vault: app.VaultConfig{
			EncryptionKey: "0123456789abcdef0123456789abcdef",
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Features: app.FeatureConfig{Messaging: true, ExtendedProfile: true},
		LTI: app.LTIConfig{
			InstanceGUID: "coursehub.test",
			InstanceName: "coursehub test",
			Locale:       "en",
			ReturnURL:    "https://lms.example.com/lti/return",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// seeded settings win over config defaults, so store the requested switches
	ctx := context.Background()
	for key, enabled := range map[string]bool{
		database.SettingMessageTool:     cfg.Features.Messaging,
		database.SettingSocialTool:      cfg.Features.Social,
		database.SettingExtendedProfile: cfg.Features.ExtendedProfile,
	} {
		require.NoError(t, database.UpsertSystemSetting(ctx, db, key, strconv.FormatBool(enabled)))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, nil)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Config: cfg,
	}
}

// CreateUser inserts an active user holding the given role ids.
func (e *Env) CreateUser(roleIDs ...string) *models.User {
	e.T.Helper()

	username := "user-" + uuid.NewString()
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		IsActive:  true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	if len(roleIDs) > 0 {
		var roles []models.Role
		require.NoError(e.T, e.DB.Where("id IN ?", roleIDs).Find(&roles).Error)
		require.Len(e.T, roles, len(roleIDs))
		require.NoError(e.T, e.DB.Model(user).Association("Roles").Append(&roles))
	}
	return user
}

// CreateRootUser inserts an active root user without roles.
func (e *Env) CreateRootUser() *models.User {
	e.T.Helper()

	user := e.CreateUser()
	require.NoError(e.T, e.DB.Model(user).UpdateColumn("is_root", true).Error)
	user.IsRoot = true
	return user
}

// Token issues an access token for user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
		Locale:   "en",
	})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.do(req, token, true)
}

// PostForm submits a urlencoded form the way a browser posts a server rendered
// page. The CSRF token travels in the form field, not the header.
func (e *Env) PostForm(path string, form url.Values, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	e.ensureCSRFToken()
	values := url.Values{}
	for key, vals := range form {
		values[key] = append([]string(nil), vals...)
	}
	if values.Get(middleware.CSRFFormField) == "" {
		values.Set(middleware.CSRFFormField, e.csrfToken)
	}

	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if e.csrfCookie != nil {
		req.AddCookie(e.csrfCookie)
	}
	return e.do(req, token, false)
}

// RequestWithoutCSRF sends an unsafe request with no CSRF attestation.
func (e *Env) RequestWithoutCSRF(method, path string, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(e.T, err)
	return e.do(req, token, false)
}

func (e *Env) do(req *http.Request, token string, attest bool) *httptest.ResponseRecorder {
	e.T.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if attest && requiresCSRFAttestation(req.Method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(e.T, err)
	resp := e.do(req, "", false)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			e.csrfCookie = &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path}
			break
		}
	}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
