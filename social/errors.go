package social

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStateMismatch means the callback's state does not match the one
	// generated for the current attempt: a forged or stale callback. Always
	// fatal to the attempt and never retried, the code is not exchanged.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrMissingCallbackData means the callback lacked a code or state.
	ErrMissingCallbackData = errors.New("missing callback data")

	// ErrExchangeFailed means callback validation passed but the code
	// exchange with the backend did not produce a session.
	ErrExchangeFailed = errors.New("code exchange failed")

	// ErrUnknownProvider means the callback named a provider this broker does
	// not support.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ProviderError carries an error the provider reported on the callback.
type ProviderError struct {
	Code   string
	Detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %q: %s", e.Code, e.Detail)
}
