package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/coursehub/internal/services"
)

type fakeStore struct {
	owned   map[uint]string
	deleted []uint
	listed  int
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{owned: map[uint]string{1: "alice", 2: "alice", 3: "bob"}}
}

func (f *fakeStore) DeleteBySender(_ context.Context, senderID string, id uint) error {
	if f.owned[id] == senderID {
		delete(f.owned, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

func (f *fakeStore) DeleteManyBySender(ctx context.Context, senderID string, ids []uint) (int64, error) {
	var n int64
	for _, id := range ids {
		before := len(f.deleted)
		_ = f.DeleteBySender(ctx, senderID, id)
		if len(f.deleted) > before {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListOutbox(_ context.Context, in services.ListOutboxInput) ([]services.MessageDTO, int64, error) {
	f.listed++
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []services.MessageDTO
	for id, sender := range f.owned {
		if sender == in.SenderID {
			out = append(out, services.MessageDTO{ID: id, SenderID: sender})
		}
	}
	return out, int64(len(out)), nil
}

func aliceScope(features Features) Scope {
	return Scope{UserID: "alice", Features: features}
}

var allOn = Features{Messaging: true, Social: true, ExtendedProfile: true}

func newTestController(t *testing.T, store MessageStore) *Controller {
	t.Helper()
	c, err := NewController(store, WithPerPage(10))
	require.NoError(t, err)
	return c
}

func TestHandleRejectsAnonymousBeforeStoreAccess(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	_, err := c.Handle(context.Background(), Scope{Anonymous: true, Features: allOn}, Request{Action: "deleteone", ID: "1"})
	require.ErrorIs(t, err, ErrAnonymous)

	_, err = c.Handle(context.Background(), Scope{Features: allOn}, Request{})
	require.ErrorIs(t, err, ErrAnonymous)

	require.Zero(t, store.listed)
	require.Empty(t, store.deleted)
}

func TestHandlePagerRedirect(t *testing.T) {
	c := newTestController(t, newFakeStore())

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{MessagesPageNr: "3<script>", Filter: "social"})
	require.NoError(t, err)
	require.Equal(t, ViewRedirect, res.View)
	require.Equal(t, "/messages/outbox?f=social&pager=3", res.RedirectURL)

	res, err = c.Handle(context.Background(), aliceScope(allOn), Request{MessagesPageNr: "x"})
	require.NoError(t, err)
	require.Equal(t, "/messages/outbox?pager=1", res.RedirectURL)
}

func TestHandlePagerIgnoredWithoutSocial(t *testing.T) {
	c := newTestController(t, newFakeStore())

	res, err := c.Handle(context.Background(), aliceScope(Features{Messaging: true}), Request{MessagesPageNr: "2"})
	require.NoError(t, err)
	require.Equal(t, ViewContent, res.View)
}

func TestHandleMessagingDisabled(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	_, err := c.Handle(context.Background(), aliceScope(Features{Social: true}), Request{MessagesPageNr: "2"})
	require.ErrorIs(t, err, ErrMessagingDisabled)
	require.Zero(t, store.listed)
}

func TestHandleDeleteFormReturnsConfirmation(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{DeleteForm: "delete,1,3,abc,0"})
	require.NoError(t, err)
	require.Equal(t, ViewConfirmation, res.View)
	require.Equal(t, ConfirmationText, res.Message)
	require.Equal(t, OutboxPath, res.BackURL)
	require.Equal(t, int64(1), res.Deleted)
	require.Equal(t, []uint{1}, store.deleted)
	require.Contains(t, store.owned, uint(3), "bob's message survives")
	require.Zero(t, store.listed)
}

func TestHandleDeleteFormWithoutVerbRendersListing(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{DeleteForm: "remove,1"})
	require.NoError(t, err)
	require.Equal(t, ViewPage, res.View)
	require.Empty(t, store.deleted)
}

func TestHandleBatchDeletePrefersIDList(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{
		Action:   "delete",
		Selected: []string{"1"},
		IDs:      []string{"2", "3"},
	})
	require.NoError(t, err)
	require.Equal(t, []uint{2}, store.deleted)
	require.Equal(t, int64(1), res.Deleted)
	require.Equal(t, ViewPage, res.View)
	require.NotNil(t, res.Listing)
	require.Equal(t, int64(1), res.Listing.Total)
}

func TestHandleDeleteOneIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store)

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{Action: "deleteone", ID: "2"})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Deleted)

	res, err = c.Handle(context.Background(), aliceScope(allOn), Request{Action: "deleteone", ID: "2"})
	require.NoError(t, err)
	require.Zero(t, res.Deleted, "already removed")
	require.Equal(t, []uint{2}, store.deleted)

	res, err = c.Handle(context.Background(), aliceScope(allOn), Request{Action: "deleteone", ID: "3"})
	require.NoError(t, err)
	require.Zero(t, res.Deleted, "bob's message is not alice's to remove")
	require.Contains(t, store.owned, uint(3))

	res, err = c.Handle(context.Background(), aliceScope(allOn), Request{Action: "deleteone", ID: "nope"})
	require.NoError(t, err)
	require.Zero(t, res.Deleted)
}

func TestRequestDeletes(t *testing.T) {
	require.True(t, Request{Action: "delete"}.Deletes())
	require.True(t, Request{Action: "deleteone", ID: "1"}.Deletes())
	require.True(t, Request{DeleteForm: "delete,4"}.Deletes())
	require.False(t, Request{DeleteForm: "remove,4"}.Deletes())
	require.False(t, Request{Filter: "social"}.Deletes())
}

func TestHandleRenderingModes(t *testing.T) {
	c := newTestController(t, newFakeStore())

	res, err := c.Handle(context.Background(), aliceScope(allOn), Request{Filter: "social"})
	require.NoError(t, err)
	require.Equal(t, ViewPage, res.View)
	require.Equal(t, "social", res.Section)
	require.Equal(t, "Social", res.Breadcrumbs[0].Label)

	res, err = c.Handle(context.Background(), aliceScope(Features{Messaging: true, ExtendedProfile: true}), Request{})
	require.NoError(t, err)
	require.Equal(t, ViewContent, res.View)
	require.Equal(t, "profile", res.Section)
	require.Len(t, res.Actions, 3)
	require.Equal(t, 1, res.Listing.Pages)

	res, err = c.Handle(context.Background(), aliceScope(Features{Messaging: true}), Request{})
	require.NoError(t, err)
	require.Empty(t, res.Actions)
}

func TestHandleListingError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	c := newTestController(t, store)

	_, err := c.Handle(context.Background(), aliceScope(allOn), Request{})
	require.ErrorContains(t, err, "db down")
}

func TestNewControllerRequiresStore(t *testing.T) {
	_, err := NewController(nil)
	require.Error(t, err)
}
