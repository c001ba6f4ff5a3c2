// Package outbox decides what a sender's outbox request does: redirect, delete
// messages, or render the listing. Request state is passed in explicitly through
// Scope and Request so the controller can be driven from any transport.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/internal/services"
	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/metrics"
)

// Paths used in redirects and links.
const (
	OutboxPath     = "/messages/outbox"
	InboxPath      = "/messages/inbox"
	ComposePath    = "/messages/new"
	SharedProfile  = "/social/profile"
	FilterSocial   = "social"
	deleteFormVerb = "delete"

	// ConfirmationText is shown after a form_delete_outbox request.
	ConfirmationText = "Selected messages deleted"
)

var (
	// ErrAnonymous is returned for requests without an authenticated user.
	ErrAnonymous = errors.New("outbox: anonymous users are not allowed")
	// ErrMessagingDisabled is returned when the message tool is switched off.
	ErrMessagingDisabled = errors.New("outbox: messaging is disabled")
)

// Features are the platform settings that shape an outbox request.
type Features struct {
	Messaging       bool
	Social          bool
	ExtendedProfile bool
}

// Scope identifies who is asking and under which settings.
type Scope struct {
	UserID    string
	Anonymous bool
	Features  Features
}

// Request holds the raw outbox parameters.
type Request struct {
	MessagesPageNr string   // messages_page_nr, legacy pager parameter
	Filter         string   // f
	DeleteForm     string   // form_delete_outbox, "delete,<id>,<id>..."
	Action         string   // action: delete | deleteone
	ID             string   // id, used by deleteone
	Selected       []string // out[]
	IDs            []string // id[]
	Page           int      // pager
}

// Deletes reports whether the request asks to remove messages.
func (r Request) Deletes() bool {
	if _, ok := parseDeleteForm(r.DeleteForm); ok {
		return true
	}
	return r.Action == "delete" || r.Action == "deleteone"
}

// View tells the transport how to present a Result.
type View int

const (
	ViewRedirect View = iota + 1
	ViewConfirmation
	ViewPage
	ViewContent
)

// Link is a labelled navigation target.
type Link struct {
	Label string
	URL   string
}

// Listing is one page of the sender's outbox.
type Listing struct {
	Messages []services.MessageDTO
	Total    int64
	Page     int
	PerPage  int
	Pages    int
}

// Result describes the outcome of a request.
type Result struct {
	View        View
	RedirectURL string
	Message     string
	BackURL     string
	Deleted     int64
	Section     string
	Breadcrumbs []Link
	Actions     []Link
	Listing     *Listing
}

// MessageStore is the message persistence the controller needs.
type MessageStore interface {
	DeleteManyBySender(ctx context.Context, senderID string, ids []uint) (int64, error)
	ListOutbox(ctx context.Context, input services.ListOutboxInput) ([]services.MessageDTO, int64, error)
}

// Option customises a Controller.
type Option func(*Controller)

// WithPerPage sets the listing page size.
func WithPerPage(perPage int) Option {
	return func(c *Controller) {
		if perPage > 0 {
			c.perPage = perPage
		}
	}
}

// Controller handles outbox requests.
type Controller struct {
	store   MessageStore
	perPage int
	log     *zap.Logger
}

// NewController builds a controller backed by store.
func NewController(store MessageStore, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("outbox: message store is required")
	}
	c := &Controller{store: store, perPage: 20, log: logger.WithModule("outbox")}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle evaluates req for the user in scope. Anonymous requests are rejected
// before the store is touched.
func (c *Controller) Handle(ctx context.Context, scope Scope, req Request) (*Result, error) {
	if scope.Anonymous || strings.TrimSpace(scope.UserID) == "" {
		metrics.OutboxRejections.WithLabelValues("anonymous").Inc()
		return nil, ErrAnonymous
	}
	features := scope.Features

	if req.MessagesPageNr != "" && features.Social && features.Messaging {
		return &Result{View: ViewRedirect, RedirectURL: pagerRedirect(req)}, nil
	}

	if !features.Messaging {
		metrics.OutboxRejections.WithLabelValues("messaging_disabled").Inc()
		return nil, ErrMessagingDisabled
	}

	if ids, ok := parseDeleteForm(req.DeleteForm); ok {
		deleted, err := c.deleteMany(ctx, scope.UserID, ids, "form")
		if err != nil {
			return nil, err
		}
		return &Result{
			View:    ViewConfirmation,
			Message: ConfirmationText,
			BackURL: OutboxPath,
			Deleted: deleted,
		}, nil
	}

	var deleted int64
	switch req.Action {
	case "delete":
		raw := req.Selected
		if len(req.IDs) > 0 {
			raw = req.IDs
		}
		n, err := c.deleteMany(ctx, scope.UserID, parseIDs(raw), "batch")
		if err != nil {
			return nil, err
		}
		deleted = n
	case "deleteone":
		if id, ok := parseID(req.ID); ok {
			n, err := c.deleteMany(ctx, scope.UserID, []uint{id}, "single")
			if err != nil {
				return nil, err
			}
			deleted = n
		}
	}

	listing, err := c.listing(ctx, scope.UserID, req.Page)
	if err != nil {
		return nil, err
	}

	result := &Result{Deleted: deleted, Listing: listing}
	decorate(result, features, req.Filter)
	return result, nil
}

func (c *Controller) deleteMany(ctx context.Context, senderID string, ids []uint, mode string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := c.store.DeleteManyBySender(ctx, senderID, ids)
	if err != nil {
		metrics.OutboxDeletions.WithLabelValues(mode, "error").Inc()
		return 0, fmt.Errorf("outbox: delete messages: %w", err)
	}
	metrics.OutboxDeletions.WithLabelValues(mode, "requested").Add(float64(len(ids)))
	metrics.OutboxDeletions.WithLabelValues(mode, "removed").Add(float64(removed))
	c.log.Debug("outbox messages deleted",
		zap.String("mode", mode),
		zap.Int("requested", len(ids)),
		zap.Int64("removed", removed),
	)
	return removed, nil
}

func (c *Controller) listing(ctx context.Context, senderID string, page int) (*Listing, error) {
	if page <= 0 {
		page = 1
	}
	messages, total, err := c.store.ListOutbox(ctx, services.ListOutboxInput{
		SenderID: senderID,
		Page:     page,
		PerPage:  c.perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: list messages: %w", err)
	}
	pages := int((total + int64(c.perPage) - 1) / int64(c.perPage))
	return &Listing{Messages: messages, Total: total, Page: page, PerPage: c.perPage, Pages: pages}, nil
}

func decorate(result *Result, features Features, filter string) {
	if filter == FilterSocial {
		result.Section = "social"
		result.Breadcrumbs = []Link{{Label: "Social", URL: "/social"}, {Label: "Outbox"}}
	} else {
		result.Section = "profile"
		result.Breadcrumbs = []Link{{Label: "Profile", URL: "/profile"}, {Label: "Outbox"}}
	}

	if features.Social {
		result.View = ViewPage
		result.Actions = []Link{{Label: "Back", URL: InboxPath + "?f=social"}}
		return
	}

	result.View = ViewContent
	if !features.ExtendedProfile {
		return
	}
	result.Actions = []Link{
		{Label: "Compose message", URL: ComposePath},
		{Label: "Inbox", URL: InboxPath},
		{Label: "Outbox", URL: OutboxPath},
	}
}

func pagerRedirect(req Request) string {
	q := url.Values{}
	q.Set("pager", digitsOnly(req.MessagesPageNr))
	if req.Filter == FilterSocial {
		q.Set("f", FilterSocial)
	}
	return OutboxPath + "?" + q.Encode()
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "1"
	}
	return b.String()
}

// parseDeleteForm reads "delete,<id>,<id>...". The second result is false when
// the value does not start with the delete verb.
func parseDeleteForm(value string) ([]uint, bool) {
	if value == "" {
		return nil, false
	}
	parts := strings.Split(value, ",")
	if strings.TrimSpace(parts[0]) != deleteFormVerb {
		return nil, false
	}
	return parseIDs(parts[1:]), true
}

func parseIDs(values []string) []uint {
	ids := make([]uint, 0, len(values))
	for _, value := range values {
		if id, ok := parseID(value); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseID(value string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
