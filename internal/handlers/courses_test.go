package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/coursehub/internal/database"
	"github.com/charlesng35/coursehub/internal/handlers/testutil"
	"github.com/charlesng35/coursehub/internal/models"
)

func TestCourseLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.CreateUser(database.RoleTeacher))

	courseID := createCourse(t, env, token, "CHEM1")

	w := env.Request(http.MethodPost, "/api/courses", map[string]any{"code": "CHEM1", "title": "Again"}, token)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, fmt.Sprintf("/api/courses/%d/evaluations", courseID), map[string]any{
		"name": "Midterm", "weight": 40, "max_score": 100,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var evaluation struct {
		ID       uint `json:"id"`
		CourseID uint `json:"course_id"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &evaluation)
	require.Equal(t, courseID, evaluation.CourseID)

	w = env.Request(http.MethodPost, fmt.Sprintf("/api/courses/%d/evaluations", courseID), map[string]any{
		"name": "Bad", "weight": -1,
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "weight must be at least 0")

	createTool(t, env, token, map[string]any{
		"name": "Graded", "launch_url": "https://tool.example.com/g", "consumer_key": "k", "shared_secret": "s",
		"course_id": courseID, "gradebook_eval_id": evaluation.ID,
	})

	w = env.Request(http.MethodGet, fmt.Sprintf("/api/courses/%d", courseID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodDelete, fmt.Sprintf("/api/courses/%d", courseID), nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tools int64
	require.NoError(t, env.DB.Model(&models.LTITool{}).Count(&tools).Error)
	require.Zero(t, tools)

	w = env.Request(http.MethodGet, fmt.Sprintf("/api/courses/%d", courseID), nil, token)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCourseDeleteEvaluationKeepsTool(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.CreateUser(database.RoleTeacher))
	courseID := createCourse(t, env, token, "PHY1")

	w := env.Request(http.MethodPost, fmt.Sprintf("/api/courses/%d/evaluations", courseID), map[string]any{"name": "Lab"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var evaluation struct {
		ID uint `json:"id"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &evaluation)

	tool := createTool(t, env, token, map[string]any{
		"name": "Graded", "launch_url": "https://tool.example.com/g", "consumer_key": "k", "shared_secret": "s",
		"course_id": courseID, "gradebook_eval_id": evaluation.ID,
	})

	w = env.Request(http.MethodDelete, fmt.Sprintf("/api/evaluations/%d", evaluation.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, fmt.Sprintf("/api/lti/tools/%d", tool.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var reloaded struct {
		GradebookEvalID *uint `json:"gradebook_eval_id"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &reloaded)
	require.Nil(t, reloaded.GradebookEvalID)
}

func TestCourseManageRequiresPermission(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.CreateUser(database.RoleStudent))

	w := env.Request(http.MethodGet, "/api/courses", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodPost, "/api/courses", map[string]any{"code": "X", "title": "X"}, token)
	require.Equal(t, http.StatusForbidden, w.Code)
}
