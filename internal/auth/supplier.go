package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/notifystream/internal/api"
	"github.com/rickgao/notifystream/internal/events"
	"go.uber.org/zap"
)

// IdentityProvider is the external identity provider session.
type IdentityProvider interface {
	// ActiveAccount returns the signed-in account, if any.
	ActiveAccount() (string, bool)
	// AcquireTokenSilent returns a token for account without user interaction.
	AcquireTokenSilent(ctx context.Context, account string, scopes []string) (token string, expiresAt time.Time, err error)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	RefreshToken(ctx context.Context, refresh string) (*api.TokenPair, error)
}

// TokenStore is the session storage holding local-mode tokens.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	// SaveAccessToken persists a refreshed access token. An empty refresh
	// keeps the stored refresh token.
	SaveAccessToken(access, refresh string) error
}

// Supplier returns currently-valid bearer tokens. It is safe for concurrent
// use; refreshes are serialized so that both channels reuse one refresh.
type Supplier struct {
	store     TokenStore
	idp       IdentityProvider
	refresher Refresher
	publisher events.Publisher
	scopes    []string
	now       func() time.Time
	logger    *zap.Logger

	mu sync.Mutex
}

// Option configures a Supplier.
type Option func(*Supplier)

// WithIdentityProvider sets the provider used in ModeIdentityProvider.
func WithIdentityProvider(idp IdentityProvider) Option {
	return func(s *Supplier) { s.idp = idp }
}

// WithRefresher sets the refresh endpoint client used in ModeLocal.
func WithRefresher(r Refresher) Option {
	return func(s *Supplier) { s.refresher = r }
}

// WithPublisher sets where TokenRefreshed and SessionExpired events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Supplier) { s.publisher = p }
}

// WithScopes sets the permission set requested from the identity provider.
func WithScopes(scopes []string) Option {
	return func(s *Supplier) { s.scopes = append([]string(nil), scopes...) }
}

// WithNow overrides the time source used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(s *Supplier) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supplier) {
		if logger != nil {
			s.logger = logger.Named("token_supplier")
		}
	}
}

// NewSupplier creates a Supplier reading local tokens from store.
func NewSupplier(store TokenStore, opts ...Option) *Supplier {
	s := &Supplier{
		store:  store,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFreshToken returns a valid credential for mode. Failures wrap
// ErrNoCredential or ErrRefreshFailed and are never retried here.
func (s *Supplier) GetFreshToken(ctx context.Context, mode Mode) (Credential, error) {
	switch mode {
	case ModeIdentityProvider:
		return s.acquireSilent(ctx)
	case ModeLocal:
		return s.localToken(ctx)
	default:
		return Credential{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

func (s *Supplier) acquireSilent(ctx context.Context) (Credential, error) {
	if s.idp == nil {
		return Credential{}, fmt.Errorf("%w: identity provider not configured", ErrNoCredential)
	}
	account, ok := s.idp.ActiveAccount()
	if !ok {
		return Credential{}, fmt.Errorf("%w: no active account", ErrNoCredential)
	}

	token, expiresAt, err := s.idp.AcquireTokenSilent(ctx, account, s.scopes)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: acquire token silently: %w", ErrRefreshFailed, err)
	}
	if token == "" {
		return Credential{}, fmt.Errorf("%w: identity provider returned empty token", ErrRefreshFailed)
	}
	return Credential{Token: token, Mode: ModeIdentityProvider, ExpiresAt: expiresAt}, nil
}

func (s *Supplier) localToken(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return Credential{}, fmt.Errorf("%w: no session store", ErrNoCredential)
	}
	token := s.store.AccessToken()
	if token == "" {
		return Credential{}, fmt.Errorf("%w: no cached token", ErrNoCredential)
	}

	cred := Credential{Token: token, Mode: ModeLocal}
	exp, err := TokenExpiry(token)
	if err != nil {
		// Undecodable tokens are treated as expired.
		s.logger.Warn("cached token unreadable, refreshing", zap.Error(err))
		return s.refresh(ctx)
	}
	cred.ExpiresAt = exp
	if !cred.Expired(s.now()) {
		return cred, nil
	}

	s.logger.Debug("cached token expired", zap.Time("expired_at", exp))
	return s.refresh(ctx)
}

// refresh must be called with s.mu held.
func (s *Supplier) refresh(ctx context.Context) (Credential, error) {
	if s.refresher == nil {
		return Credential{}, fmt.Errorf("%w: refresh endpoint not configured", ErrRefreshFailed)
	}
	refreshToken := s.store.RefreshToken()
	if refreshToken == "" {
		return Credential{}, fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	pair, err := s.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.publish(events.NewExpiredEvent("refresh token rejected", s.now()))
		}
		return Credential{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if err := s.store.SaveAccessToken(pair.Access, pair.Refresh); err != nil {
		s.logger.Warn("persist refreshed token", zap.Error(err))
	}

	exp, err := TokenExpiry(pair.Access)
	if err != nil {
		s.logger.Warn("refreshed token unreadable", zap.Error(err))
		exp = time.Time{}
	}

	s.logger.Info("token refreshed", zap.Time("expires_at", exp))
	s.publish(events.NewTokenEvent(ModeLocal.String(), exp, s.now()))

	return Credential{Token: pair.Access, Mode: ModeLocal, ExpiresAt: exp}, nil
}

func (s *Supplier) publish(e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(e); err != nil {
		s.logger.Warn("publish session event",
			zap.String("event_type", string(e.Type())),
			zap.Error(err))
	}
}
