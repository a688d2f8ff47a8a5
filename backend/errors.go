package backend

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-client/credentials"
)

var (
	// ErrNetwork indicates the backend could not be reached at all (no
	// response), as opposed to a structured rejection. The UI uses the
	// distinction for "offline" versus "rejected" messaging.
	ErrNetwork = errors.New("network error")

	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a protected call is rejected with 401.
	ErrUnauthorized = errors.New("unauthorized")
)

// ServerError carries a structured error body reported by the backend.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Detail)
}

// EmailVerificationRequiredError signals that the account exists but its
// email address is unverified. The backend may still include a token pair so
// a later verified login can resume; when present it is carried here together
// with the unverified identity.
type EmailVerificationRequiredError struct {
	Email    string
	Identity *credentials.Identity
	Tokens   *credentials.TokenPair
}

func (e *EmailVerificationRequiredError) Error() string {
	return "email verification required for " + e.Email
}
