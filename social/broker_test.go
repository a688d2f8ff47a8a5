package social_test

import (
	"context"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/social"
	"github.com/jrsteele09/go-auth-client/social/attemptrepo"
)

type fakeExchanger struct {
	calls    int
	provider string
	code     string
	opts     backend.ExchangeOptions
	session  *credentials.Session
	err      error
}

func (f *fakeExchanger) ExchangeSocialCode(_ context.Context, provider, code string, opts backend.ExchangeOptions) (*credentials.Session, error) {
	f.calls++
	f.provider = provider
	f.code = code
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type brokerFixture struct {
	broker    *social.Broker
	attempts  *attemptrepo.InMemoryRepo
	exchanger *fakeExchanger
}

func testProviders() map[social.ProviderID]social.ProviderConfig {
	endpoint := oauth2.Endpoint{
		AuthURL:  "https://provider.example/oauth/authorize",
		TokenURL: "https://provider.example/oauth/token",
	}
	return map[social.ProviderID]social.ProviderConfig{
		social.ProviderGoogle: {
			ID:          social.ProviderGoogle,
			ClientID:    "google-client",
			RedirectURL: "https://app.example/callback",
			Scopes:      []string{"openid", "email"},
			Endpoint:    endpoint,
		},
		social.ProviderGitHub: {
			ID:          social.ProviderGitHub,
			ClientID:    "github-client",
			RedirectURL: "https://app.example/callback",
			Scopes:      []string{"user:email"},
			Endpoint:    endpoint,
		},
		social.ProviderVK: {
			ID:                    social.ProviderVK,
			ClientID:              "vk-client",
			RedirectURL:           "https://app.example/callback",
			Scopes:                []string{"email"},
			Endpoint:              endpoint,
			ExchangeNeedsVerifier: true,
			ExchangeNeedsDeviceID: true,
		},
	}
}

func setupBroker(t *testing.T, options ...social.BrokerOption) *brokerFixture {
	t.Helper()

	f := &brokerFixture{
		attempts: attemptrepo.NewInMemoryRepo(),
		exchanger: &fakeExchanger{
			session: &credentials.Session{
				Identity: credentials.Identity{ID: "user-1", Username: "johndoe", Email: "john.doe@example.com"},
				Tokens:   credentials.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"},
			},
		},
	}

	broker, err := social.NewBroker(testProviders(), f.attempts, f.exchanger, options...)
	require.NoError(t, err)
	f.broker = broker

	return f
}

func (f *brokerFixture) currentAttempt(t *testing.T, provider social.ProviderID) *attemptrepo.Attempt {
	t.Helper()

	attempt, err := f.attempts.Get(string(provider))
	require.NoError(t, err)
	require.NotNil(t, attempt)
	return attempt
}

func TestStartBuildsAuthorizationURL(t *testing.T) {
	f := setupBroker(t)

	authURL, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	query := parsed.Query()

	attempt := f.currentAttempt(t, social.ProviderGoogle)
	require.Equal(t, "google-client", query.Get("client_id"))
	require.Equal(t, "https://app.example/callback", query.Get("redirect_uri"))
	require.Equal(t, "openid email", query.Get("scope"))
	require.Equal(t, attempt.State, query.Get("state"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.NotEmpty(t, query.Get("code_challenge"))

	// The verifier is retained client-side and never sent to the provider.
	require.NotContains(t, authURL, attempt.Verifier)
}

func TestCallbackExchangesCode(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)
	attempt := f.currentAttempt(t, social.ProviderGoogle)

	session, err := f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "provider-code",
		State:    attempt.State,
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", session.Identity.ID)

	require.Equal(t, 1, f.exchanger.calls)
	require.Equal(t, "google", f.exchanger.provider)
	require.Equal(t, "provider-code", f.exchanger.code)
	require.Empty(t, f.exchanger.opts.CodeVerifier, "google's backend does not need the verifier")

	cleared, err := f.attempts.Get("google")
	require.NoError(t, err)
	require.Nil(t, cleared, "attempt cleared once its callback is consumed")
}

func TestCallbackPassesVerifierAndDeviceForVK(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderVK)
	require.NoError(t, err)
	attempt := f.currentAttempt(t, social.ProviderVK)
	require.NotEmpty(t, attempt.DeviceID)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "vkontakte",
		Code:     "provider-code",
		State:    attempt.State,
	})
	require.NoError(t, err)

	require.Equal(t, "vk", f.exchanger.provider, "provider name mapped to internal id")
	require.Equal(t, attempt.Verifier, f.exchanger.opts.CodeVerifier,
		"verifier generated at authorization time is the one sent at exchange time")
	require.Equal(t, attempt.DeviceID, f.exchanger.opts.DeviceID)
}

func TestStateMismatchNeverReachesExchange(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "attacker-code",
		State:    "forged-state",
	})
	require.ErrorIs(t, err, social.ErrStateMismatch)
	require.Zero(t, f.exchanger.calls, "forged callback must not reach the code exchange")

	// The outstanding attempt is untouched and its own callback still works.
	attempt := f.currentAttempt(t, social.ProviderGoogle)
	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "provider-code",
		State:    attempt.State,
	})
	require.NoError(t, err)
}

func TestSupersededAttemptCallbackIsRejected(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)
	firstState := f.currentAttempt(t, social.ProviderGoogle).State

	// Starting a second attempt invalidates the first attempt's nonce.
	_, err = f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)
	secondState := f.currentAttempt(t, social.ProviderGoogle).State
	require.NotEqual(t, firstState, secondState)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "late-code",
		State:    firstState,
	})
	require.ErrorIs(t, err, social.ErrStateMismatch)
	require.Zero(t, f.exchanger.calls)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "fresh-code",
		State:    secondState,
	})
	require.NoError(t, err)
}

func TestMissingCallbackData(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		State:    "some-state",
	})
	require.ErrorIs(t, err, social.ErrMissingCallbackData)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "some-code",
	})
	require.ErrorIs(t, err, social.ErrMissingCallbackData)
	require.Zero(t, f.exchanger.calls)
}

func TestProviderReportedError(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.HandleCallback(context.Background(), social.Callback{
		Provider:  "google",
		ErrorCode: "access_denied",
		ErrorDesc: "user cancelled",
	})

	var perr *social.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "access_denied", perr.Code)
	require.Zero(t, f.exchanger.calls)
}

func TestUnknownProvider(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderID("myspace"))
	require.ErrorIs(t, err, social.ErrUnknownProvider)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "myspace",
		Code:     "c",
		State:    "s",
	})
	require.ErrorIs(t, err, social.ErrUnknownProvider)
}

func TestEncodedPayloadCallback(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.Start(context.Background(), social.ProviderVK)
	require.NoError(t, err)
	attempt := f.currentAttempt(t, social.ProviderVK)

	payload := base64.RawURLEncoding.EncodeToString([]byte(
		`{"code":"payload-code","state":"` + attempt.State + `","provider":"vkid"}`,
	))

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{Payload: payload})
	require.NoError(t, err)
	require.Equal(t, "vk", f.exchanger.provider)
	require.Equal(t, "payload-code", f.exchanger.code)
}

func TestUndecodablePayload(t *testing.T) {
	f := setupBroker(t)

	_, err := f.broker.HandleCallback(context.Background(), social.Callback{Payload: "%%%not-base64%%%"})
	require.ErrorIs(t, err, social.ErrMissingCallbackData)
}

func TestExpiredAttemptIsStale(t *testing.T) {
	started := time.Now()
	current := started
	f := setupBroker(t,
		social.WithAttemptTTL(10*time.Minute),
		social.WithNowTime(func() time.Time { return current }),
	)

	_, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)
	attempt := f.currentAttempt(t, social.ProviderGoogle)

	current = started.Add(11 * time.Minute)
	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "late-code",
		State:    attempt.State,
	})
	require.ErrorIs(t, err, social.ErrStateMismatch)
	require.Zero(t, f.exchanger.calls)
}

func TestFailedExchangeStillClearsAttempt(t *testing.T) {
	f := setupBroker(t)
	f.exchanger.err = errors.New("backend rejected the code")

	_, err := f.broker.Start(context.Background(), social.ProviderGoogle)
	require.NoError(t, err)
	attempt := f.currentAttempt(t, social.ProviderGoogle)

	_, err = f.broker.HandleCallback(context.Background(), social.Callback{
		Provider: "google",
		Code:     "provider-code",
		State:    attempt.State,
	})
	require.ErrorIs(t, err, social.ErrExchangeFailed)

	cleared, getErr := f.attempts.Get("google")
	require.NoError(t, getErr)
	require.Nil(t, cleared, "nonce and verifier cleared regardless of outcome")
}
