package credentials

import (
	"context"

	"github.com/pkg/errors"
)

// ErrStoreUnavailable indicates the durable storage behind a Store could not
// be reached. It is distinct from an absent session, which Get reports as a
// nil Session with no error.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Store is the single writer of persisted auth state.
//
// Get returns nil when no session is present. Set and Clear are the only
// mutators; both must leave memory and durable storage in agreement from the
// caller's point of view.
type Store interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, session Session) error
	Clear(ctx context.Context) error
}

// Publisher is the notification side of the session-change broadcast,
// satisfied by notify.Notifier.
type Publisher interface {
	Publish()
}

// NotifyingStore wraps a Store and publishes a session-change notification
// after every successful mutation. The notification never fires before the
// underlying store is updated.
type NotifyingStore struct {
	inner    Store
	notifier Publisher
}

// NewNotifyingStore wires a Store to a Publisher.
func NewNotifyingStore(inner Store, notifier Publisher) *NotifyingStore {
	return &NotifyingStore{inner: inner, notifier: notifier}
}

// Get reads through to the wrapped store.
func (s *NotifyingStore) Get(ctx context.Context) (*Session, error) {
	return s.inner.Get(ctx)
}

// Set persists the session and then publishes.
func (s *NotifyingStore) Set(ctx context.Context, session Session) error {
	if err := s.inner.Set(ctx, session); err != nil {
		return errors.Wrap(err, "[NotifyingStore.Set] inner.Set")
	}
	s.notifier.Publish()
	return nil
}

// Clear removes the session and then publishes.
func (s *NotifyingStore) Clear(ctx context.Context) error {
	if err := s.inner.Clear(ctx); err != nil {
		return errors.Wrap(err, "[NotifyingStore.Clear] inner.Clear")
	}
	s.notifier.Publish()
	return nil
}
