package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/services"
	"github.com/charlesng35/coursehub/pkg/response"
)

// FeatureHandler reads and toggles platform tool switches.
type FeatureHandler struct {
	svc *services.FeatureService
}

// NewFeatureHandler constructs a FeatureHandler.
func NewFeatureHandler(svc *services.FeatureService) (*FeatureHandler, error) {
	if svc == nil {
		return nil, errors.New("feature handler: service is required")
	}
	return &FeatureHandler{svc: svc}, nil
}

type setFeatureRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// GET /api/features
func (h *FeatureHandler) List(c *gin.Context) {
	features, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, features)
}

// PUT /api/features/:name
func (h *FeatureHandler) Set(c *gin.Context) {
	var body setFeatureRequest
	if !bindAndValidate(c, &body) {
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	if err := h.svc.Set(requestContext(c), name, *body.Enabled); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, services.FeatureDTO{Name: name, Enabled: *body.Enabled, Stored: true})
}
