package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// parser only decodes; the signature is verified by the backend.
var parser = jwt.NewParser()

// TokenExpiry decodes the exp claim of a JWT without verifying it.
// It returns the zero time when the token has no exp claim.
func TokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
