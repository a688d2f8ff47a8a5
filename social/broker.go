// Package social drives the redirect-based OAuth flow for third-party
// logins: PKCE and state nonce lifecycle, callback validation, and exchange
// of the provider's authorization code for this application's own token pair
// through the session gateway.
package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/pkce"
	"github.com/jrsteele09/go-auth-client/social/attemptrepo"
)

const defaultAttemptTTL = 10 * time.Minute

// Exchanger is the session gateway surface the broker needs, satisfied by
// auth.Service.
type Exchanger interface {
	ExchangeSocialCode(ctx context.Context, provider, code string, opts backend.ExchangeOptions) (*credentials.Session, error)
}

// Callback carries what the provider delivered on redirect. Either Code and
// State are set directly, or Payload holds the provider's encoded form which
// is decoded first.
type Callback struct {
	Provider  string // provider-reported name, mapped before validation
	Code      string
	State     string
	DeviceID  string // echoed by providers that issued one
	Payload   string // provider-specific base64url JSON, optional
	ErrorCode string // provider error parameter, when authorization failed
	ErrorDesc string
}

// Broker manages social-login attempts. One attempt may be outstanding per
// provider; starting a new one supersedes the previous nonce so a late
// callback from an abandoned attempt is always rejected. Safe for concurrent
// use.
type Broker struct {
	providers  map[ProviderID]ProviderConfig
	attempts   attemptrepo.Repo
	exchanger  Exchanger
	attemptTTL time.Duration
	log        zerolog.Logger
	nowTime    func() time.Time
}

// BrokerOption defines a function type to modify the Broker instance.
type BrokerOption func(*Broker)

// WithAttemptTTL bounds how long a started attempt remains exchangeable.
func WithAttemptTTL(ttl time.Duration) BrokerOption {
	return func(b *Broker) {
		b.attemptTTL = ttl
	}
}

// WithLogger sets the broker logger.
func WithLogger(log zerolog.Logger) BrokerOption {
	return func(b *Broker) {
		b.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) BrokerOption {
	return func(b *Broker) {
		b.nowTime = nowFunc
	}
}

// NewBroker initializes a Broker with required dependencies.
func NewBroker(providers map[ProviderID]ProviderConfig, attempts attemptrepo.Repo, exchanger Exchanger, options ...BrokerOption) (*Broker, error) {
	if len(providers) == 0 {
		return nil, errors.New("[NewBroker] at least one provider is required")
	}
	if attempts == nil {
		return nil, errors.New("[NewBroker] attempt repo is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewBroker] exchanger is required")
	}

	b := &Broker{
		providers:  providers,
		attempts:   attempts,
		exchanger:  exchanger,
		attemptTTL: defaultAttemptTTL,
		log:        zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Start begins an authorization attempt: fresh state nonce and PKCE verifier,
// persisted keyed to the provider (superseding any outstanding attempt), and
// the provider authorization URL carrying client id, redirect URI, scope,
// state, and the S256 code challenge. The verifier never leaves the process.
func (b *Broker) Start(_ context.Context, provider ProviderID) (authURL string, err error) {
	cfg, ok := b.providers[provider]
	if !ok {
		return "", errors.Wrapf(ErrUnknownProvider, "%q", provider)
	}

	verifier, err := pkce.NewVerifier()
	if err != nil {
		return "", errors.Wrap(err, "[Broker.Start]")
	}
	state, err := pkce.NewStateNonce()
	if err != nil {
		return "", errors.Wrap(err, "[Broker.Start]")
	}

	attempt := &attemptrepo.Attempt{
		ID:        uuid.New().String(),
		Provider:  string(provider),
		State:     state,
		Verifier:  verifier,
		CreatedAt: b.nowTime(),
	}
	if cfg.ExchangeNeedsDeviceID {
		attempt.DeviceID = uuid.New().String()
	}
	if err := b.attempts.Upsert(string(provider), attempt); err != nil {
		return "", errors.Wrap(err, "[Broker.Start] attempts.Upsert")
	}

	oauthCfg := oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
		Endpoint:    cfg.Endpoint,
	}
	url := oauthCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	b.log.Debug().Str("provider", string(provider)).Msg("social login attempt started")
	return url, nil
}

// HandleCallback validates the provider callback and, only if validation
// passes, exchanges the authorization code through the session gateway.
// Validation short-circuits: a state mismatch means a forged or stale
// callback and the code is never exchanged. Once a callback matches the
// current attempt, the attempt record is cleared regardless of the exchange
// outcome so the code and verifier cannot be replayed.
func (b *Broker) HandleCallback(ctx context.Context, cb Callback) (*credentials.Session, error) {
	if cb.Payload != "" {
		decoded, err := decodeCallbackPayload(cb.Payload)
		if err != nil {
			return nil, err
		}
		if decoded.Code != "" {
			cb.Code = decoded.Code
		}
		if decoded.State != "" {
			cb.State = decoded.State
		}
		if decoded.Provider != "" {
			cb.Provider = decoded.Provider
		}
		if decoded.DeviceID != "" {
			cb.DeviceID = decoded.DeviceID
		}
	}

	if cb.ErrorCode != "" {
		return nil, &ProviderError{Code: cb.ErrorCode, Detail: cb.ErrorDesc}
	}

	provider, err := MapProviderName(cb.Provider)
	if err != nil {
		return nil, err
	}
	cfg, ok := b.providers[provider]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%q not configured", provider)
	}

	if cb.Code == "" || cb.State == "" {
		return nil, errors.Wrap(ErrMissingCallbackData, "[Broker.HandleCallback]")
	}

	attempt, err := b.attempts.Get(string(provider))
	if err != nil {
		return nil, errors.Wrap(err, "[Broker.HandleCallback] attempts.Get")
	}
	if attempt == nil || attempt.State != cb.State {
		// The current attempt's nonce (if any) stays put: it may belong to a
		// newer attempt whose own callback is still due.
		b.log.Warn().Str("provider", string(provider)).Msg("callback state did not match current attempt")
		return nil, errors.Wrap(ErrStateMismatch, "[Broker.HandleCallback]")
	}
	if b.nowTime().Sub(attempt.CreatedAt) > b.attemptTTL {
		_ = b.attempts.Delete(string(provider))
		return nil, errors.Wrap(ErrStateMismatch, "[Broker.HandleCallback] attempt expired")
	}

	// Consumed: clear before exchanging so neither the nonce nor the verifier
	// survives this attempt, whatever the outcome.
	if err := b.attempts.Delete(string(provider)); err != nil {
		return nil, errors.Wrap(err, "[Broker.HandleCallback] attempts.Delete")
	}

	opts := backend.ExchangeOptions{}
	if cfg.ExchangeNeedsVerifier {
		opts.CodeVerifier = attempt.Verifier
	}
	if cfg.ExchangeNeedsDeviceID {
		opts.DeviceID = attempt.DeviceID
		if cb.DeviceID != "" {
			opts.DeviceID = cb.DeviceID
		}
	}

	session, err := b.exchanger.ExchangeSocialCode(ctx, string(provider), cb.Code, opts)
	if err != nil {
		b.log.Err(err).Str("provider", string(provider)).Msg("social code exchange failed")
		return nil, errors.Wrap(ErrExchangeFailed, err.Error())
	}
	return session, nil
}
