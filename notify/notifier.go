// Package notify provides the process-wide session-change broadcast.
//
// Subscribers receive no payload: multiple rapid mutations must not be lost or
// reordered relative to store state, so a handler re-reads the credential
// store instead of trusting a snapshot carried on the event.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Notifier is a fan-out broadcast for session changes. The zero value is not
// usable; create one with New. Safe for concurrent use.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]func()
	nextID int
	log    zerolog.Logger
}

// NotifierOption defines a function type to modify the Notifier instance.
type NotifierOption func(*Notifier)

// WithLogger sets the logger used to report panicking subscribers.
func WithLogger(log zerolog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.log = log
	}
}

// New creates a Notifier with no subscribers.
func New(options ...NotifierOption) *Notifier {
	n := &Notifier{
		subs: make(map[int]func()),
		log:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(n)
	}
	return n
}

// Subscribe registers handler and returns a function that removes it.
// Unsubscribing more than once is a no-op.
func (n *Notifier) Subscribe(handler func()) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = handler
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Publish invokes every subscribed handler. Fire-and-forget: a panicking
// handler is recovered and logged so the remaining subscribers still run.
func (n *Notifier) Publish() {
	n.mu.RLock()
	handlers := make([]func(), 0, len(n.subs))
	for _, h := range n.subs {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		n.invoke(h)
	}
}

func (n *Notifier) invoke(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Interface("panic", r).Msg("session change subscriber panicked")
		}
	}()
	handler()
}
