package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/internal/lti"
	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/models"
	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/metrics"
	"github.com/charlesng35/coursehub/pkg/response"
)

const templateLaunch = "lti_launch.html"

// ErrLaunchUnavailable is rendered when a tool's configuration cannot produce a launch.
var ErrLaunchUnavailable = apperrors.New("LTI_LAUNCH_UNAVAILABLE", "This tool cannot be launched", http.StatusUnprocessableEntity)

// LaunchHandlerDeps bundles the collaborators of LTILaunchHandler.
type LaunchHandlerDeps struct {
	Tools    *services.LTIToolService
	Courses  *services.CourseService
	Users    *services.UserService
	Audit    *services.AuditService
	Consumer lti.Consumer
}

// LTILaunchHandler renders signed, auto-submitting launch forms.
type LTILaunchHandler struct {
	deps LaunchHandlerDeps
	log  *zap.Logger
}

// NewLTILaunchHandler constructs an LTILaunchHandler.
func NewLTILaunchHandler(deps LaunchHandlerDeps) (*LTILaunchHandler, error) {
	if deps.Tools == nil || deps.Courses == nil || deps.Users == nil {
		return nil, errors.New("lti launch handler: tool, course and user services are required")
	}
	return &LTILaunchHandler{deps: deps, log: logger.WithModule("lti")}, nil
}

// GET /lti/tools/:id/launch
func (h *LTILaunchHandler) Launch(c *gin.Context) {
	ctx := requestContext(c)

	id, ok := parseUintParam(c, "id")
	if !ok {
		response.ErrorPage(c, apperrors.NewBadRequest("tool id must be a positive integer"))
		return
	}

	creds, err := h.deps.Tools.Credentials(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.deps.Users.GetByID(ctx, currentUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			err = apperrors.ErrUnauthorized
		}
		h.fail(c, err)
		return
	}

	launchCtx, err := h.launchContext(c, creds.Tool)
	if err != nil {
		h.fail(c, err)
		return
	}

	input := lti.LaunchInput{
		Tool:     creds.Tool,
		Secret:   creds.Secret,
		User:     launchUser(c, user),
		Context:  launchCtx,
		Consumer: h.deps.Consumer,
	}
	launch, err := lti.BuildLaunch(input)
	if err != nil {
		h.log.Warn("tool launch rejected", zap.Uint("tool_id", id), zap.Error(err))
		h.fail(c, ErrLaunchUnavailable.WithInternal(err))
		return
	}

	metrics.ToolLaunches.WithLabelValues(launch.MessageType).Inc()
	if h.deps.Audit != nil {
		if err := h.deps.Audit.Log(ctx, services.AuditEntry{
			Action:   "lti.tool.launch",
			Resource: "lti_tool:" + strconv.FormatUint(uint64(id), 10),
			Result:   "success",
			Metadata: map[string]any{"message_type": launch.MessageType},
		}); err != nil {
			h.log.Warn("failed to record launch audit", zap.Error(err))
		}
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, templateLaunch, gin.H{
		"Launch":   launch,
		"ToolName": creds.Tool.Name,
		"Nonce":    c.GetString(middleware.CtxCSPNonceKey),
	})
}

// launchContext resolves the course of a launch. Course tools always launch in
// their course; global tools take an optional course_id query parameter.
func (h *LTILaunchHandler) launchContext(c *gin.Context, tool models.LTITool) (*lti.LaunchContext, error) {
	var courseID uint
	switch {
	case tool.CourseID != nil:
		courseID = *tool.CourseID
	case strings.TrimSpace(c.Query("course_id")) != "":
		parsed, err := strconv.ParseUint(strings.TrimSpace(c.Query("course_id")), 10, 64)
		if err != nil || parsed == 0 {
			return nil, apperrors.NewBadRequest("course_id must be a positive integer")
		}
		courseID = uint(parsed)
	default:
		return nil, nil
	}

	course, err := h.deps.Courses.Get(requestContext(c), courseID)
	if err != nil {
		return nil, err
	}
	return &lti.LaunchContext{
		ID:    strconv.FormatUint(uint64(course.ID), 10),
		Title: course.Title,
		Label: course.Code,
	}, nil
}

func (h *LTILaunchHandler) fail(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("tool launch failed", zap.Error(err))
	}
	response.ErrorPage(c, appErr)
}

func launchUser(c *gin.Context, user *models.User) lti.LaunchUser {
	out := lti.LaunchUser{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Avatar:    user.Avatar,
		Roles:     services.RoleIDs(user),
	}
	if user.IsRoot {
		out.Roles = append(out.Roles, "admin")
	}
	if claims, ok := middleware.Claims(c); ok {
		out.Locale = claims.Locale
	}
	return out
}
