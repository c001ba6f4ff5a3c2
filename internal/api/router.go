package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/app"
	iauth "github.com/charlesng35/coursehub/internal/auth"
	"github.com/charlesng35/coursehub/internal/database"
	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/monitoring/checks"
	"github.com/charlesng35/coursehub/internal/permissions"
	"github.com/charlesng35/coursehub/internal/services"
	"github.com/charlesng35/coursehub/internal/vault"
	"github.com/charlesng35/coursehub/web"
)

// serviceSet groups the domain services shared by the route groups.
type serviceSet struct {
	audit    *services.AuditService
	users    *services.UserService
	features *services.FeatureService
	messages *services.MessageService
	courses  *services.CourseService
	tools    *services.LTIToolService
}

// NewRouter builds the Gin engine, wires middleware and registers the page, API
// and health routes. jobs may be nil when scheduled maintenance is disabled.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, jobs checks.JobReporter) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	svc, err := newServiceSet(db, cfg)
	if err != nil {
		return nil, err
	}

	templates, err := web.Templates(cfg.Server.Templates)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.SetHTMLTemplate(templates)

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CSRF())
	r.Use(middleware.Identify(jwt))

	registerHealthRoutes(r, db, jobs)

	checker, err := permissions.NewChecker(db)
	if err != nil {
		return nil, err
	}

	if err := registerPageRoutes(r, svc, checker, cfg); err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.Use(middleware.RequireAuth())
	if err := registerAPIRoutes(api, svc, checker); err != nil {
		return nil, err
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func newServiceSet(db *gorm.DB, cfg *app.Config) (*serviceSet, error) {
	masterKey, err := app.DecodeKey(cfg.Vault.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("vault encryption key: %w", err)
	}
	cipher, err := vault.NewSecretCipher(masterKey)
	if err != nil {
		return nil, err
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	users, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	features, err := services.NewFeatureService(db, audit, database.FeatureDefaults{
		Messaging:       cfg.Features.Messaging,
		Social:          cfg.Features.Social,
		ExtendedProfile: cfg.Features.ExtendedProfile,
	})
	if err != nil {
		return nil, err
	}
	messages, err := services.NewMessageService(db, audit)
	if err != nil {
		return nil, err
	}
	courses, err := services.NewCourseService(db, audit)
	if err != nil {
		return nil, err
	}
	tools, err := services.NewLTIToolService(db, audit, cipher)
	if err != nil {
		return nil, err
	}

	return &serviceSet{
		audit:    audit,
		users:    users,
		features: features,
		messages: messages,
		courses:  courses,
		tools:    tools,
	}, nil
}
