// Package auth supplies fresh bearer tokens for the real-time channels.
//
// Two session modes exist. In identity-provider mode a token is acquired
// silently for the active external account. In local mode a cached JWT is read
// from session storage, its exp claim decoded, and the token refreshed through
// the REST API when expired.
package auth

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how a session obtains its bearer token.
type Mode uint8

const (
	// ModeLocal uses a cached access token refreshed with a stored refresh token.
	ModeLocal Mode = iota
	// ModeIdentityProvider acquires tokens silently from an external identity provider.
	ModeIdentityProvider
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeIdentityProvider:
		return "identity_provider"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a stored mode flag. An empty string means ModeLocal.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "local":
		return ModeLocal, nil
	case "identity_provider", "idp":
		return ModeIdentityProvider, nil
	default:
		return ModeLocal, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Errors returned by GetFreshToken.
var (
	ErrNoCredential  = errors.New("no credential available")
	ErrRefreshFailed = errors.New("credential refresh failed")
	ErrUnknownMode   = errors.New("unknown auth mode")
)

// Credential is a bearer token plus the mode it was obtained under.
type Credential struct {
	Token     string
	Mode      Mode
	ExpiresAt time.Time // zero when the token carries no expiry
}

// HasExpiry reports whether the expiry of the token is known.
func (c Credential) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Expired reports whether the token is past its expiry at now.
// Tokens without a known expiry never expire.
func (c Credential) Expired(now time.Time) bool {
	return c.HasExpiry() && !c.ExpiresAt.After(now)
}
