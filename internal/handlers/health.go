package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/monitoring"
)

// HealthHandler serves liveness and readiness reports.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler wraps manager. A nil manager reports healthy with no checks.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager}
}

// GET /health
func (h *HealthHandler) Summary(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(reportStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": report.CheckedAt,
	})
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	report := h.manager.EvaluateLiveness(requestContext(c))
	c.JSON(reportStatus(report), report)
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(reportStatus(report), report)
}

func reportStatus(report monitoring.HealthReport) int {
	if report.Success {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
