// Package credentials holds the current user identity and token pair and
// persists them across restarts. It contains no network or validation logic
// beyond the all-or-nothing session invariant.
package credentials

import "github.com/pkg/errors"

// ErrPartialSession is returned when a session missing either its identity or
// its token pair is offered for persistence. A session is stored whole or not
// at all.
var ErrPartialSession = errors.New("partial session")

// Identity describes the authenticated user as reported by the backend.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// TokenPair carries the opaque backend tokens. The access token is sent as a
// bearer credential on protected calls; the refresh token goes only to the
// refresh endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session is the unit of persistence: identity plus tokens, together.
type Session struct {
	Identity Identity  `json:"identity"`
	Tokens   TokenPair `json:"tokens"`
}

// Validate rejects sessions that would violate the all-or-nothing invariant.
func (s Session) Validate() error {
	if s.Identity.ID == "" {
		return errors.Wrap(ErrPartialSession, "missing identity")
	}
	if s.Tokens.AccessToken == "" || s.Tokens.RefreshToken == "" {
		return errors.Wrap(ErrPartialSession, "missing tokens")
	}
	return nil
}
