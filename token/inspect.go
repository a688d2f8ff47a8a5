// Package token inspects bearer tokens issued by the backend. The client has
// no key material, so claims are read without signature verification and are
// used only for scheduling (refresh ahead of expiry) and diagnostics, never
// for authorization decisions.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reports the exp claim of raw. ok is false when raw is not a JWT
// or carries no expiry, in which case callers should treat the token as
// opaque and rely on the backend's 401.
func ExpiresAt(raw string) (expiry time.Time, ok bool) {
	claims := parse(raw)
	if claims == nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Subject reports the sub claim of raw.
func Subject(raw string) (subject string, ok bool) {
	claims := parse(raw)
	if claims == nil {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

func parse(raw string) jwt.Claims {
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	return parsed.Claims
}
