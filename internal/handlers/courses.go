package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
)

// CourseHandler manages courses and gradebook evaluations.
type CourseHandler struct {
	svc *services.CourseService
}

// NewCourseHandler constructs a CourseHandler.
func NewCourseHandler(svc *services.CourseService) (*CourseHandler, error) {
	if svc == nil {
		return nil, errors.New("course handler: service is required")
	}
	return &CourseHandler{svc: svc}, nil
}

// GET /api/courses
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, courses)
}

// GET /api/courses/:id
func (h *CourseHandler) Get(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	course, err := h.svc.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, course)
}

// POST /api/courses
func (h *CourseHandler) Create(c *gin.Context) {
	var body services.CreateCourseInput
	if !bindAndValidate(c, &body) {
		return
	}
	course, err := h.svc.Create(requestContext(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, course)
}

// DELETE /api/courses/:id
func (h *CourseHandler) Delete(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/courses/:id/evaluations
func (h *CourseHandler) CreateEvaluation(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	var body services.CreateEvaluationInput
	if !bindAndValidate(c, &body) {
		return
	}
	evaluation, err := h.svc.CreateEvaluation(requestContext(c), id, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, evaluation)
}

// DELETE /api/evaluations/:id
func (h *CourseHandler) DeleteEvaluation(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		response.Error(c, apperrors.NewBadRequest("evaluation id must be a positive integer"))
		return
	}
	if err := h.svc.DeleteEvaluation(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func courseID(c *gin.Context) (uint, bool) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		response.Error(c, apperrors.NewBadRequest("course id must be a positive integer"))
	}
	return id, ok
}
