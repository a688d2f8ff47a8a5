// Package transport wraps outbound API calls with bearer authentication and
// the refresh-and-retry-once policy for authorization failures.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/token"
)

// Refresher is the coordinator dependency, satisfied by refresh.Coordinator.
type Refresher interface {
	Refresh(ctx context.Context) (credentials.TokenPair, error)
}

// BearerTransport is an http.RoundTripper that attaches the current access
// token to each request. On a 401 it refreshes through the coordinator and
// replays the request exactly once with the new token; a second 401, or a
// refresh failure, surfaces as refresh.ErrSessionExpired. Any non-401
// response passes through unchanged. The retry bound is a hard invariant:
// a backend that rejects tokens for reasons other than expiry must not cause
// a refresh loop.
type BearerTransport struct {
	base      http.RoundTripper
	store     credentials.Store
	refresher Refresher

	// refreshSkew, when positive, refreshes proactively if the access token's
	// exp claim is closer than the skew, avoiding a guaranteed 401 round
	// trip. Zero disables the check.
	refreshSkew time.Duration
	nowTime     func() time.Time
}

// TransportOption defines a function type to modify the BearerTransport instance.
type TransportOption func(*BearerTransport)

// WithBase sets the wrapped RoundTripper (http.DefaultTransport otherwise).
func WithBase(base http.RoundTripper) TransportOption {
	return func(t *BearerTransport) {
		t.base = base
	}
}

// WithRefreshSkew enables proactive refresh ahead of token expiry.
func WithRefreshSkew(skew time.Duration) TransportOption {
	return func(t *BearerTransport) {
		t.refreshSkew = skew
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) TransportOption {
	return func(t *BearerTransport) {
		t.nowTime = nowFunc
	}
}

// New initializes a BearerTransport with required dependencies.
func New(store credentials.Store, refresher Refresher, options ...TransportOption) (*BearerTransport, error) {
	if store == nil {
		return nil, errors.New("[transport.New] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[transport.New] refresher is required")
	}

	t := &BearerTransport{
		base:      http.DefaultTransport,
		store:     store,
		refresher: refresher,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper. The original request is never
// mutated; each attempt goes out on a clone with a rewound body.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	getBody, err := bodySource(req)
	if err != nil {
		return nil, errors.Wrap(err, "[BearerTransport.RoundTrip] buffer request body")
	}

	access, err := t.currentAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, getBody, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// First 401 for this logical call: refresh once, replay once.
	drainAndClose(resp.Body)

	pair, err := t.refresher.Refresh(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[BearerTransport.RoundTrip] refresh after 401")
	}

	retryResp, err := t.send(req, getBody, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusUnauthorized {
		drainAndClose(retryResp.Body)
		return nil, errors.Wrap(refresh.ErrSessionExpired, "[BearerTransport.RoundTrip] replay rejected")
	}
	return retryResp, nil
}

func (t *BearerTransport) currentAccessToken(ctx context.Context) (string, error) {
	session, err := t.store.Get(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[BearerTransport] store.Get")
	}
	if session == nil {
		return "", nil
	}
	access := session.Tokens.AccessToken

	if t.refreshSkew > 0 {
		if exp, ok := token.ExpiresAt(access); ok && exp.Sub(t.nowTime()) < t.refreshSkew {
			// Best effort: if the proactive refresh fails, attempt the call
			// with the stale token and let the 401 path decide.
			if pair, err := t.refresher.Refresh(ctx); err == nil {
				access = pair.AccessToken
			}
		}
	}
	return access, nil
}

func (t *BearerTransport) send(req *http.Request, getBody func() (io.ReadCloser, error), access string) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, errors.Wrap(err, "[BearerTransport] rewind request body")
		}
		attempt.Body = body
		attempt.GetBody = getBody
	}
	if access != "" {
		attempt.Header.Set("Authorization", "Bearer "+access)
	}
	return t.base.RoundTrip(attempt)
}

// bodySource returns a rewindable body factory so the replay is
// byte-identical to the first attempt.
func bodySource(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
