package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/outbox"
	"github.com/charlesng35/coursehub/internal/permissions"
	"github.com/charlesng35/coursehub/internal/services"
	apperrors "github.com/charlesng35/coursehub/pkg/errors"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/response"
)

// Outbox page templates.
const (
	templateOutboxPage         = "outbox_page.html"
	templateOutboxContent      = "outbox_content.html"
	templateOutboxConfirmation = "outbox_confirmation.html"
)

// FeatureReader is satisfied by *services.FeatureService.
type FeatureReader interface {
	Snapshot(ctx context.Context) (services.FeatureSet, error)
}

// OutboxHandler adapts outbox.Controller to the server rendered /messages/outbox page.
type OutboxHandler struct {
	controller *outbox.Controller
	features   FeatureReader
	checker    middleware.PermissionChecker
	log        *zap.Logger
}

// NewOutboxHandler wires the outbox controller to the message store and feature switches.
func NewOutboxHandler(store outbox.MessageStore, features FeatureReader, checker middleware.PermissionChecker, opts ...outbox.Option) (*OutboxHandler, error) {
	if features == nil {
		return nil, errors.New("outbox handler: feature reader is required")
	}
	if checker == nil {
		return nil, errors.New("outbox handler: permission checker is required")
	}
	controller, err := outbox.NewController(store, opts...)
	if err != nil {
		return nil, err
	}
	return &OutboxHandler{controller: controller, features: features, checker: checker, log: logger.WithModule("outbox")}, nil
}

// GET|POST /messages/outbox
func (h *OutboxHandler) Handle(c *gin.Context) {
	ctx := requestContext(c)
	scope := outbox.Scope{UserID: currentUserID(c)}
	scope.Anonymous = scope.UserID == ""
	req := outboxRequest(c)

	if !scope.Anonymous {
		if !middleware.Authorize(c, h.checker, permissions.MessageView, response.ErrorPage) {
			return
		}
		if req.Deletes() && !middleware.Authorize(c, h.checker, permissions.MessageDelete, response.ErrorPage) {
			return
		}
		set, err := h.features.Snapshot(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		scope.Features = outbox.Features{
			Messaging:       set.Messaging,
			Social:          set.Social,
			ExtendedProfile: set.ExtendedProfile,
		}
	}

	result, err := h.controller.Handle(ctx, scope, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	data := gin.H{
		"Result":    result,
		"Filter":    req.Filter,
		"CSRFToken": c.GetString(middleware.CtxCSRFTokenKey),
		"CSRFField": middleware.CSRFFormField,
		"Nonce":     c.GetString(middleware.CtxCSPNonceKey),
		"OutboxURL": outbox.OutboxPath,
	}

	switch result.View {
	case outbox.ViewRedirect:
		c.Redirect(http.StatusFound, result.RedirectURL)
	case outbox.ViewConfirmation:
		c.HTML(http.StatusOK, templateOutboxConfirmation, data)
	case outbox.ViewPage, outbox.ViewContent:
		if listing := result.Listing; listing != nil {
			if listing.Page > 1 {
				data["PrevURL"] = pagerURL(listing.Page-1, req.Filter)
			}
			if listing.Page < listing.Pages {
				data["NextURL"] = pagerURL(listing.Page+1, req.Filter)
			}
		}
		name := templateOutboxContent
		if result.View == outbox.ViewPage {
			name = templateOutboxPage
		}
		c.HTML(http.StatusOK, name, data)
	default:
		h.fail(c, errors.New("outbox handler: unknown view"))
	}
}

func (h *OutboxHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, outbox.ErrAnonymous):
		response.ErrorPage(c, apperrors.ErrUnauthorized)
	case errors.Is(err, outbox.ErrMessagingDisabled):
		response.ErrorPage(c, apperrors.ErrFeatureDisabled)
	default:
		h.log.Error("outbox request failed", zap.String("user_id", currentUserID(c)), zap.Error(err))
		response.ErrorPage(c, apperrors.ErrInternalServer.WithInternal(err))
	}
}

// outboxRequest collects the outbox parameters. Deletions are only honoured on
// POST, where the CSRF middleware has checked the form token.
func outboxRequest(c *gin.Context) outbox.Request {
	req := outbox.Request{
		MessagesPageNr: c.Query("messages_page_nr"),
		Filter:         formOrQuery(c, "f"),
		Page:           parseIntQuery(c, "pager", 1),
	}
	if c.Request.Method != http.MethodPost {
		return req
	}

	req.DeleteForm = formOrQuery(c, "form_delete_outbox")
	req.Action = formOrQuery(c, "action")
	req.ID = formOrQuery(c, "id")
	req.Selected = c.PostFormArray("out[]")
	req.IDs = c.PostFormArray("id[]")
	return req
}

func formOrQuery(c *gin.Context, key string) string {
	if value, ok := c.GetPostForm(key); ok {
		return value
	}
	return c.Query(key)
}

func pagerURL(page int, filter string) string {
	q := url.Values{}
	q.Set("pager", strconv.Itoa(page))
	if filter == outbox.FilterSocial {
		q.Set("f", outbox.FilterSocial)
	}
	return outbox.OutboxPath + "?" + q.Encode()
}
