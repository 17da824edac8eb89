package api

import (
	"context"
	"errors"
	"fmt"
)

// TokenPair is the refresh endpoint response. Refresh is empty when the
// backend does not rotate refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshToken exchanges a refresh token for a new access token. It makes a
// single attempt. A 401 or 403 response is reported as an *APIError; see
// IsUnauthorized.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (*TokenPair, error) {
	if refresh == "" {
		return nil, errors.New("refresh token is empty")
	}

	var pair TokenPair
	if err := c.post(ctx, c.refreshPath, refreshRequest{Refresh: refresh}, &pair); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if pair.Access == "" {
		return nil, errors.New("refresh token: response missing access token")
	}
	return &pair, nil
}
