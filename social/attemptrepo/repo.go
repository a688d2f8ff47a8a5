// Package attemptrepo stores the per-provider pending social-login attempt:
// the state nonce and PKCE verifier generated at authorization time, kept
// until the callback for that attempt is consumed.
package attemptrepo

import "time"

// Attempt is the client-side record of one outstanding authorization attempt.
// Only one attempt may be outstanding per provider; upserting supersedes the
// prior one, so a late callback from an abandoned attempt always fails the
// state check.
type Attempt struct {
	ID        string
	Provider  string
	State     string
	Verifier  string
	DeviceID  string
	CreatedAt time.Time
}

// Repo is the attempt store interface.
type Repo interface {
	Upsert(provider string, attempt *Attempt) error
	Get(provider string) (*Attempt, error)
	Delete(provider string) error
}
