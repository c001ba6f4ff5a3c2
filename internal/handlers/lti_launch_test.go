package handlers_test

import (
	"fmt"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/coursehub/internal/database"
	"github.com/charlesng35/coursehub/internal/handlers/testutil"
	"github.com/charlesng35/coursehub/internal/models"
)

var cspNonce = regexp.MustCompile(`'nonce-([0-9a-f]+)'`)

func TestLTILaunchRendersSignedForm(t *testing.T) {
	env := testutil.NewEnv(t)
	teacherToken := env.Token(env.CreateUser(database.RoleTeacher))
	student := env.CreateUser(database.RoleStudent)

	courseID := createCourse(t, env, teacherToken, "BIO200")
	tool := createTool(t, env, teacherToken, map[string]any{
		"name":          "Lab",
		"launch_url":    "https://tool.example.com/launch",
		"consumer_key":  "lab-key",
		"shared_secret": "lab-secret",
		"course_id":     courseID,
		"privacy":       map[string]any{"share_name": true},
	})

	w := env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch", tool.ID), nil, env.Token(student))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	require.Contains(t, body, `action="https://tool.example.com/launch"`)
	require.Contains(t, body, `name="oauth_consumer_key" value="lab-key"`)
	require.Contains(t, body, `name="oauth_signature"`)
	require.Contains(t, body, `name="roles" value="Learner"`)
	require.Contains(t, body, fmt.Sprintf(`name="context_id" value="%d"`, courseID))
	require.Contains(t, body, `name="lis_person_name_given" value="Test"`)
	require.NotContains(t, body, "lis_person_contact_email_primary")
	require.NotContains(t, body, "lab-secret")

	match := cspNonce.FindStringSubmatch(w.Header().Get("Content-Security-Policy"))
	require.Len(t, match, 2)
	require.Contains(t, body, fmt.Sprintf(`nonce="%s"`, match[1]))

	var audits int64
	require.NoError(t, env.DB.Model(&models.AuditLog{}).Where("action = ?", "lti.tool.launch").Count(&audits).Error)
	require.EqualValues(t, 1, audits)
}

func TestLTILaunchGlobalToolTakesCourseFromQuery(t *testing.T) {
	env := testutil.NewEnv(t)
	teacherToken := env.Token(env.CreateUser(database.RoleTeacher))

	courseID := createCourse(t, env, teacherToken, "HIS300")
	tool := createTool(t, env, teacherToken, map[string]any{
		"name": "Global", "launch_url": "https://tool.example.com/g", "consumer_key": "k", "shared_secret": "s",
	})

	w := env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch", tool.ID), nil, teacherToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "context_id")

	w = env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch?course_id=%d", tool.ID, courseID), nil, teacherToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `name="context_label" value="HIS300"`)
	require.Contains(t, w.Body.String(), `name="roles" value="Instructor"`)

	w = env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch?course_id=9999", tool.ID), nil, teacherToken)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLTILaunchDeepLinkingWithoutReturnURL(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.CreateUser(database.RoleTeacher))

	tool := createTool(t, env, token, map[string]any{
		"name": "Picker", "launch_url": "https://tool.example.com/pick", "consumer_key": "k", "shared_secret": "s",
		"active_deep_linking": true,
	})

	w := env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch", tool.ID), nil, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, w.Body.String(), "LTI_LAUNCH_UNAVAILABLE")
}

func TestLTILaunchRequiresPermission(t *testing.T) {
	env := testutil.NewEnv(t)
	teacherToken := env.Token(env.CreateUser(database.RoleTeacher))
	tool := createTool(t, env, teacherToken, map[string]any{
		"name": "Lab", "launch_url": "https://tool.example.com/launch", "consumer_key": "k", "shared_secret": "s",
	})

	w := env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch", tool.ID), nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")

	w = env.Request(http.MethodGet, fmt.Sprintf("/lti/tools/%d/launch", tool.ID), nil, env.Token(env.CreateUser()))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/lti/tools/999/launch", nil, teacherToken)
	require.Equal(t, http.StatusNotFound, w.Code)
}
