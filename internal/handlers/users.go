package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
)

// GrantLister is satisfied by *permissions.Checker.
type GrantLister interface {
	Granted(ctx context.Context, userID string) ([]string, error)
}

// UserHandler manages platform profiles.
type UserHandler struct {
	svc    *services.UserService
	grants GrantLister
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *services.UserService, grants GrantLister) (*UserHandler, error) {
	if svc == nil || grants == nil {
		return nil, errors.New("user handler: service and grant lister are required")
	}
	return &UserHandler{svc: svc, grants: grants}, nil
}

type userResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	FullName  string   `json:"full_name"`
	Avatar    string   `json:"avatar,omitempty"`
	IsRoot    bool     `json:"is_root"`
	IsActive  bool     `json:"is_active"`
	Roles     []string `json:"roles"`
}

type meResponse struct {
	userResponse
	Permissions []string `json:"permissions"`
}

type setRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// GET /api/me
func (h *UserHandler) Me(c *gin.Context) {
	ctx := requestContext(c)
	user, err := h.svc.GetByID(ctx, currentUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}
	granted, err := h.grants.Granted(ctx, user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if granted == nil {
		granted = []string{}
	}
	response.Success(c, http.StatusOK, meResponse{userResponse: mapUser(user), Permissions: granted})
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var body services.CreateUserInput
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.svc.Create(requestContext(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, mapUser(user))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.GetByID(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, mapUser(user))
}

// PUT /api/users/:id/roles
func (h *UserHandler) SetRoles(c *gin.Context) {
	var body setRolesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid JSON payload"))
		return
	}
	user, err := h.svc.SetRoles(requestContext(c), strings.TrimSpace(c.Param("id")), body.RoleIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, mapUser(user))
}

// PUT /api/users/:id/active
func (h *UserHandler) SetActive(c *gin.Context) {
	var body setActiveRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.svc.SetActive(requestContext(c), strings.TrimSpace(c.Param("id")), *body.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": *body.Active})
}

func mapUser(user *models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		FullName:  user.FullName(),
		Avatar:    user.Avatar,
		IsRoot:    user.IsRoot,
		IsActive:  user.IsActive,
		Roles:     services.RoleIDs(user),
	}
}
