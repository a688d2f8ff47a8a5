// Package backend is the typed HTTP client for the token-issuing backend:
// login, refresh, profile fetch, social code exchange and best-effort logout.
// It maps wire failures onto the client error taxonomy and knows nothing
// about persistence or retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-client/credentials"
)

const (
	loginPath    = "/api/auth/login"
	refreshPath  = "/api/auth/refresh"
	profilePath  = "/api/auth/profile"
	logoutPath   = "/api/auth/logout"
	socialPath   = "/api/auth/social/" // + provider
	contentJSON  = "application/json"
	maxErrorBody = 64 * 1024

	verificationRequiredCode = "email_verification_required"
)

// ExchangeOptions carries the provider-specific extras of a social code
// exchange. DeviceID and CodeVerifier are required by providers whose backend
// performs the code/verifier check server-side.
type ExchangeOptions struct {
	DeviceID     string
	CodeVerifier string
}

// Client talks to the backend over an injectable *http.Client. Endpoints that
// require a bearer credential (Profile) use whatever transport the client was
// built with; wiring a transport.BearerTransport there gives transparent
// refresh-and-retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a backend client for baseURL.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type sessionPayload struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	User         *credentials.Identity `json:"user"`
}

type errorPayload struct {
	Code         string                `json:"code"`
	Detail       string                `json:"detail"`
	Email        string                `json:"email"`
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	User         *credentials.Identity `json:"user"`
}

// Login posts credentials and returns the established session. A backend
// signal that the account's email is unverified surfaces as
// *EmailVerificationRequiredError carrying any token pair the backend
// included. Bad credentials surface as ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (*credentials.Session, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.postJSON(ctx, c.baseURL+loginPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusOK {
		return decodeSession(resp.Body)
	}

	wireErr := decodeError(resp)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity {
		if verr, ok := wireErr.(*EmailVerificationRequiredError); ok {
			return nil, verr
		}
		return nil, errors.Wrap(ErrInvalidCredentials, "[Client.Login]")
	}
	return nil, wireErr
}

// Refresh exchanges the refresh token for a new token pair. The backend may
// include an updated identity; when it does not, identity is nil and the
// caller keeps the stored one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credentials.TokenPair, *credentials.Identity, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.postJSON(ctx, c.baseURL+refreshPath, body)
	if err != nil {
		return credentials.TokenPair{}, nil, errors.Wrap(err, "[Client.Refresh]")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			return credentials.TokenPair{}, nil, errors.Wrap(ErrUnauthorized, "[Client.Refresh] refresh token rejected")
		}
		return credentials.TokenPair{}, nil, decodeError(resp)
	}

	var payload sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return credentials.TokenPair{}, nil, errors.Wrap(err, "[Client.Refresh] decode response")
	}
	pair := credentials.TokenPair{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return credentials.TokenPair{}, nil, errors.New("[Client.Refresh] incomplete token pair in response")
	}
	return pair, payload.User, nil
}

// Profile fetches the current identity. The request goes out with whatever
// transport the client carries; route it through the authenticated wrapper so
// a 401 triggers refresh-and-retry instead of surfacing here.
func (c *Client) Profile(ctx context.Context) (*credentials.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Profile] build request")
	}
	req.Header.Set("Accept", contentJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportErr(err, "[Client.Profile]")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.Wrap(ErrUnauthorized, "[Client.Profile]")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var identity credentials.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, errors.Wrap(err, "[Client.Profile] decode response")
	}
	return &identity, nil
}

// ExchangeSocialCode trades a provider authorization code for this
// application's own token pair. Options carry the device id and PKCE verifier
// for providers whose backend checks them.
func (c *Client) ExchangeSocialCode(ctx context.Context, provider, code string, opts ExchangeOptions) (*credentials.Session, error) {
	body := map[string]string{"code": code}
	if opts.DeviceID != "" {
		body["device_id"] = opts.DeviceID
	}
	if opts.CodeVerifier != "" {
		body["code_verifier"] = opts.CodeVerifier
	}

	resp, err := c.postJSON(ctx, c.baseURL+socialPath+provider, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeSocialCode]")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return decodeSession(resp.Body)
}

// Logout tells the backend to revoke the refresh token. Best-effort: callers
// treat any failure as advisory, the local session is already gone.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.postJSON(ctx, c.baseURL+logoutPath, body)
	if err != nil {
		return errors.Wrap(err, "[Client.Logout]")
	}
	drainAndClose(resp.Body)
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentJSON)
	req.Header.Set("Accept", contentJSON)

	c.log.Debug().Str("url", url).Msg("backend request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportErr(err, "")
	}
	return resp, nil
}

func decodeSession(body io.Reader) (*credentials.Session, error) {
	var payload sessionPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode session response")
	}
	if payload.User == nil {
		return nil, errors.New("session response missing user")
	}
	session := &credentials.Session{
		Identity: *payload.User,
		Tokens: credentials.TokenPair{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
		},
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	return session, nil
}

// decodeError turns a non-200 response into the richest error the body
// supports: the email-verification payload, a structured server error, or a
// bare status.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Code == verificationRequiredCode {
			verr := &EmailVerificationRequiredError{Email: payload.Email, Identity: payload.User}
			if payload.AccessToken != "" && payload.RefreshToken != "" {
				verr.Tokens = &credentials.TokenPair{
					AccessToken:  payload.AccessToken,
					RefreshToken: payload.RefreshToken,
				}
			}
			return verr
		}
		if payload.Detail != "" {
			return &ServerError{Status: resp.StatusCode, Detail: payload.Detail}
		}
	}
	return &ServerError{Status: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
}

func wrapTransportErr(err error, prefix string) error {
	if prefix == "" {
		return errors.Wrap(ErrNetwork, err.Error())
	}
	return errors.Wrap(ErrNetwork, prefix+" "+err.Error())
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
