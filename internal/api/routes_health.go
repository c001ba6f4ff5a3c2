package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/coursehub/internal/handlers"
	"github.com/charlesng35/coursehub/internal/monitoring"
	"github.com/charlesng35/coursehub/internal/monitoring/checks"
)

const databaseProbeTimeout = 2 * time.Second

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, jobs checks.JobReporter) {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Database(db, databaseProbeTimeout))
	if jobs != nil {
		manager.RegisterReadiness(checks.Maintenance(jobs, 0, nil))
	}

	health := handlers.NewHealthHandler(manager)
	r.GET("/health", health.Summary)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}
