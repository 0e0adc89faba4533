// Package tokenexp extracts the expiry instant from a JWT without
// verifying its signature. Client code holds tokens it cannot verify
// (the signing key lives on the server); the embedded exp claim is
// still useful as a local scheduling hint.
package tokenexp

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry returns the exp claim of the given token.
// The second return value is false when the token is not a parseable JWT
// or carries no exp claim; callers are expected to fall back to a
// conservative horizon in that case.
func Expiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()

	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
