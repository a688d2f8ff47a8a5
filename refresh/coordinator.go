// Package refresh owns the single source of truth for "is a token refresh in
// flight". Any number of callers may ask for a refresh at once; exactly one
// backend call is made and every caller receives its outcome.
package refresh

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-auth-client/credentials"
)

// ErrSessionExpired means the session could not be renewed: the credential
// store has been cleared and the user must log in again.
var ErrSessionExpired = errors.New("session expired")

const refreshKey = "refresh"

// Backend is the refresh endpoint dependency. The returned identity is nil
// when the backend did not include one.
type Backend interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.TokenPair, *credentials.Identity, error)
}

// Coordinator deduplicates concurrent refresh calls. Safe for concurrent use.
type Coordinator struct {
	store   credentials.Store
	backend Backend
	group   singleflight.Group
	log     zerolog.Logger
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// NewCoordinator initializes a Coordinator with required dependencies.
func NewCoordinator(store credentials.Store, backend Backend, options ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	if backend == nil {
		return nil, errors.New("[NewCoordinator] backend is required")
	}

	c := &Coordinator{
		store:   store,
		backend: backend,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Refresh renews the token pair. If a refresh is already in flight the caller
// joins it and receives the same outcome instead of starting a second backend
// call. On success the store holds the new tokens (identity preserved unless
// the backend returned a new one) and the pair is returned. On failure the
// store is cleared and ErrSessionExpired is returned.
func (c *Coordinator) Refresh(ctx context.Context) (credentials.TokenPair, error) {
	// The outcome is shared by every joined caller and is applied to the
	// store even if the initiating caller goes away, so the backend call must
	// outlive any single caller's cancellation.
	callCtx := context.WithoutCancel(ctx)

	result, err, _ := c.group.Do(refreshKey, func() (any, error) {
		return c.doRefresh(callCtx)
	})
	if err != nil {
		return credentials.TokenPair{}, err
	}
	return result.(credentials.TokenPair), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (credentials.TokenPair, error) {
	session, err := c.store.Get(ctx)
	if err != nil {
		return credentials.TokenPair{}, errors.Wrap(err, "[Coordinator.Refresh] store.Get")
	}
	if session == nil {
		return credentials.TokenPair{}, errors.Wrap(ErrSessionExpired, "no session to refresh")
	}

	pair, identity, err := c.backend.Refresh(ctx, session.Tokens.RefreshToken)
	if err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed, clearing session")
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.log.Err(clearErr).Msg("failed to clear session after refresh failure")
		}
		return credentials.TokenPair{}, errors.Wrap(ErrSessionExpired, err.Error())
	}

	updated := credentials.Session{Identity: session.Identity, Tokens: pair}
	if identity != nil {
		updated.Identity = *identity
	}
	if err := c.store.Set(ctx, updated); err != nil {
		return credentials.TokenPair{}, errors.Wrap(err, "[Coordinator.Refresh] store.Set")
	}
	return pair, nil
}
