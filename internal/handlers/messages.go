package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/response"
)

// MessageHandler exposes the sender's outbox as JSON.
type MessageHandler struct {
	svc      *services.MessageService
	features FeatureReader
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(svc *services.MessageService, features FeatureReader) (*MessageHandler, error) {
	if svc == nil || features == nil {
		return nil, errors.New("message handler: service and feature reader are required")
	}
	return &MessageHandler{svc: svc, features: features}, nil
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Title      string `json:"title" validate:"required,max=255"`
	Content    string `json:"content"`
}

// POST /api/messages
func (h *MessageHandler) Send(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if !h.messagingEnabled(c) {
		return
	}

	var body sendMessageRequest
	if !bindAndValidate(c, &body) {
		return
	}

	message, err := h.svc.Send(requestContext(c), services.SendMessageInput{
		SenderID:   userID,
		ReceiverID: body.ReceiverID,
		Title:      body.Title,
		Content:    body.Content,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, message)
}

// GET /api/messages/outbox
func (h *MessageHandler) ListOutbox(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if !h.messagingEnabled(c) {
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	messages, total, err := h.svc.ListOutbox(requestContext(c), services.ListOutboxInput{
		SenderID: userID,
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, messages, response.NewMeta(page, perPage, total))
}

// DELETE /api/messages/outbox/:id
func (h *MessageHandler) DeleteOutbox(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if !h.messagingEnabled(c) {
		return
	}

	id, ok := parseUintParam(c, "id")
	if !ok {
		response.Error(c, apperrors.NewBadRequest("message id must be a positive integer"))
		return
	}

	if err := h.svc.DeleteBySender(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *MessageHandler) messagingEnabled(c *gin.Context) bool {
	set, err := h.features.Snapshot(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !set.Messaging {
		response.Error(c, apperrors.ErrFeatureDisabled)
		return false
	}
	return true
}
