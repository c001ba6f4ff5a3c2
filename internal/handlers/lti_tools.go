package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
)

// LTIToolHandler manages external tool configurations.
type LTIToolHandler struct {
	svc *services.LTIToolService
}

// NewLTIToolHandler constructs an LTIToolHandler.
func NewLTIToolHandler(svc *services.LTIToolService) (*LTIToolHandler, error) {
	if svc == nil {
		return nil, errors.New("lti tool handler: service is required")
	}
	return &LTIToolHandler{svc: svc}, nil
}

type setParentRequest struct {
	ParentID *uint `json:"parent_id"`
}

// GET /api/lti/tools
func (h *LTIToolHandler) List(c *gin.Context) {
	var filter services.LTIToolFilter
	if raw := strings.TrimSpace(c.Query("course_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			response.Error(c, apperrors.NewBadRequest("course_id must be a positive integer"))
			return
		}
		courseID := uint(id)
		filter.CourseID = &courseID
	}
	filter.GlobalOnly = c.Query("global") == "true"
	filter.IncludeGlobal = c.Query("include_global") == "true"

	tools, err := h.svc.List(requestContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tools)
}

// GET /api/lti/tools/tree
func (h *LTIToolHandler) Tree(c *gin.Context) {
	nodes, err := h.svc.Tree(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nodes)
}

// GET /api/lti/tools/:id
func (h *LTIToolHandler) Get(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}
	tool, err := h.svc.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tool)
}

// POST /api/lti/tools
func (h *LTIToolHandler) Create(c *gin.Context) {
	var body services.CreateLTIToolInput
	if !bindAndValidate(c, &body) {
		return
	}

	tool, err := h.svc.Create(requestContext(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, tool)
}

// PATCH /api/lti/tools/:id
func (h *LTIToolHandler) Update(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}
	var body services.UpdateLTIToolInput
	if !bindAndValidate(c, &body) {
		return
	}

	tool, err := h.svc.Update(requestContext(c), id, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tool)
}

// DELETE /api/lti/tools/:id
func (h *LTIToolHandler) Delete(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// PUT /api/lti/tools/:id/parent
func (h *LTIToolHandler) SetParent(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}
	var body setParentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid JSON payload"))
		return
	}

	tool, err := h.svc.SetParent(requestContext(c), id, body.ParentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tool)
}

// GET /api/lti/tools/:id/children
func (h *LTIToolHandler) Children(c *gin.Context) {
	id, ok := toolID(c)
	if !ok {
		return
	}
	children, err := h.svc.Children(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, children)
}

func toolID(c *gin.Context) (uint, bool) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		response.Error(c, apperrors.NewBadRequest("tool id must be a positive integer"))
	}
	return id, ok
}
