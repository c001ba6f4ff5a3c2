package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/services"
	"github.com/charlesng35/coursehub/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	per := parseIntQuery(c, "per_page", 50)

	filters := services.AuditFilters{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
		Resource: c.Query("resource"),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(page, per, total))
}
