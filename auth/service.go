// Package auth is the public session gateway: login, logout, profile
// retrieval and social code exchange, composed over the credential store and
// the token refresh coordinator.
package auth

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
)

// API is the unauthenticated backend surface the gateway drives.
type API interface {
	Login(ctx context.Context, email, password string) (*credentials.Session, error)
	ExchangeSocialCode(ctx context.Context, provider, code string, opts backend.ExchangeOptions) (*credentials.Session, error)
	Logout(ctx context.Context, refreshToken string) error
}

// ProfileAPI is the bearer-authenticated backend surface. Wire it with a
// transport.BearerTransport so a 401 becomes a transparent refresh-and-retry.
type ProfileAPI interface {
	Profile(ctx context.Context) (*credentials.Identity, error)
}

// Deps holds all dependencies for the Service.
type Deps struct {
	Store   credentials.Store // session persistence, usually a NotifyingStore
	API     API               // plain backend client
	Profile ProfileAPI        // backend client behind the authenticated wrapper
}

// Service is the session gateway. Safe for concurrent use.
type Service struct {
	deps Deps
	log  zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService initializes a Service with required dependencies.
func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.API == nil {
		return nil, errors.New("[NewService] API is required")
	}
	if deps.Profile == nil {
		return nil, errors.New("[NewService] Profile API is required")
	}

	s := &Service{
		deps: deps,
		log:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login authenticates with email and password, persists the session and fires
// a change notification. When the backend signals an unverified email, the
// returned error is *backend.EmailVerificationRequiredError; any token pair
// it carried is still persisted so a later verified login can resume, but the
// caller must not treat the session as fully authenticated.
func (s *Service) Login(ctx context.Context, email, password string) (*credentials.Session, error) {
	session, err := s.deps.API.Login(ctx, email, password)
	if err != nil {
		var verr *backend.EmailVerificationRequiredError
		if errors.As(err, &verr) && verr.Tokens != nil && verr.Identity != nil {
			partial := credentials.Session{Identity: *verr.Identity, Tokens: *verr.Tokens}
			if storeErr := s.deps.Store.Set(ctx, partial); storeErr != nil {
				s.log.Err(storeErr).Msg("failed to persist pre-verification session")
			}
		}
		return nil, err
	}

	if err := s.deps.Store.Set(ctx, *session); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] store.Set")
	}
	s.log.Info().Str("user_id", session.Identity.ID).Msg("logged in")
	return session, nil
}

// Logout clears the local session and fires a change notification. It is a
// purely local state transition and succeeds even with no network reachable;
// backend-side revocation of the refresh token is best-effort.
func (s *Service) Logout(ctx context.Context) error {
	session, err := s.deps.Store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "[Service.Logout] store.Get")
	}

	if err := s.deps.Store.Clear(ctx); err != nil {
		return errors.Wrap(err, "[Service.Logout] store.Clear")
	}

	if session != nil {
		if err := s.deps.API.Logout(ctx, session.Tokens.RefreshToken); err != nil {
			s.log.Warn().Err(err).Msg("best-effort token revocation failed")
		}
	}
	return nil
}

// Profile returns the current identity via the authenticated wrapper, so an
// expired access token is refreshed and the call retried before any failure
// reaches the caller.
func (s *Service) Profile(ctx context.Context) (*credentials.Identity, error) {
	identity, err := s.deps.Profile.Profile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Profile]")
	}
	return identity, nil
}

// ExchangeSocialCode trades a provider authorization code for a session, with
// the same persistence and notification behaviour as Login. Used by the
// social login broker after callback validation.
func (s *Service) ExchangeSocialCode(ctx context.Context, provider, code string, opts backend.ExchangeOptions) (*credentials.Session, error) {
	session, err := s.deps.API.ExchangeSocialCode(ctx, provider, code, opts)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ExchangeSocialCode]")
	}

	if err := s.deps.Store.Set(ctx, *session); err != nil {
		return nil, errors.Wrap(err, "[Service.ExchangeSocialCode] store.Set")
	}
	s.log.Info().Str("user_id", session.Identity.ID).Str("provider", provider).Msg("social login completed")
	return session, nil
}
