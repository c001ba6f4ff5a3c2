package handlers_test

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/coursehub/internal/database"
	"github.com/charlesng35/coursehub/internal/handlers/testutil"
)

type messagePayload struct {
	ID           uint   `json:"id"`
	ReceiverID   string `json:"receiver_id"`
	ReceiverName string `json:"receiver_name"`
	Title        string `json:"title"`
}

func TestMessageAPIRequiresAuthentication(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/messages/outbox", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestMessageAPIListOutboxPaginates(t *testing.T) {
	env := testutil.NewEnv(t)
	sender := env.CreateUser(database.RoleStudent)
	receiver := env.CreateUser(database.RoleTeacher)
	token := env.Token(sender)

	for i := 0; i < 3; i++ {
		sendMessage(t, env, token, receiver, "message "+strconv.Itoa(i))
	}

	w := env.Request(http.MethodGet, "/api/messages/outbox?page=2&per_page=2", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 3, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.TotalPages)

	var messages []messagePayload
	testutil.DecodeInto(t, resp.Data, &messages)
	require.Len(t, messages, 1)
	require.Equal(t, "message 0", messages[0].Title)
	require.Equal(t, receiver.ID, messages[0].ReceiverID)
	require.Equal(t, "Test User", messages[0].ReceiverName)
}

func TestMessageAPISendValidatesPayload(t *testing.T) {
	env := testutil.NewEnv(t)
	sender := env.CreateUser(database.RoleStudent)
	token := env.Token(sender)

	w := env.Request(http.MethodPost, "/api/messages", map[string]any{"title": "no receiver"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Contains(t, resp.Error.Message, "receiver id is required")

	w = env.Request(http.MethodPost, "/api/messages", map[string]any{
		"receiver_id": "missing-user",
		"title":       "hello",
	}, token)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestMessageAPIDeleteOutbox(t *testing.T) {
	env := testutil.NewEnv(t)
	sender := env.CreateUser(database.RoleStudent)
	receiver := env.CreateUser(database.RoleStudent)
	token := env.Token(sender)

	id := sendMessage(t, env, token, receiver, "bye")

	w := env.Request(http.MethodDelete, "/api/messages/outbox/"+strconv.FormatUint(uint64(id), 10), nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Zero(t, outboxCount(t, env, sender.ID))

	w = env.Request(http.MethodDelete, "/api/messages/outbox/abc", nil, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageAPIRejectsDisabledMessaging(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithFeatures(false, false, false))
	sender := env.CreateUser(database.RoleStudent)

	w := env.Request(http.MethodGet, "/api/messages/outbox", nil, env.Token(sender))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FEATURE_DISABLED", testutil.DecodeResponse(t, w).Error.Code)
}

func TestMessageAPIRequiresMessagePermission(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser()

	w := env.Request(http.MethodGet, "/api/messages/outbox", nil, env.Token(user))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", testutil.DecodeResponse(t, w).Error.Code)
}
