package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/events"
)

type sessionEnder interface {
	Logout()
}

type sessionClearer interface {
	Clear() error
}

// SessionStats reports token lifecycle activity.
type SessionStats struct {
	Refreshes     int64     `json:"refreshes"`
	LastRefreshAt time.Time `json:"last_refresh_at,omitzero"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	Expirations   int64     `json:"expirations"`
	LastExpiry    string    `json:"last_expiry,omitempty"`
}

// sessionWatch reacts to auth-layer events: a refresh is recorded, an
// expired session is torn down and cleared.
type sessionWatch struct {
	manager sessionEnder
	store   sessionClearer
	logger  *zap.Logger

	mu    sync.Mutex
	stats SessionStats
}

func newSessionWatch(manager sessionEnder, store sessionClearer, logger *zap.Logger) *sessionWatch {
	return &sessionWatch{manager: manager, store: store, logger: logger}
}

func (w *sessionWatch) subscribe(bus *events.Bus) []events.Subscription {
	return []events.Subscription{
		bus.SubscribeFunc(events.TokenRefreshed, w.onRefreshed),
		bus.SubscribeFunc(events.SessionExpired, w.onExpired),
	}
}

func (w *sessionWatch) onRefreshed(_ context.Context, ev events.Event) error {
	te, ok := ev.(events.TokenEvent)
	if !ok {
		return nil
	}
	w.mu.Lock()
	w.stats.Refreshes++
	w.stats.LastRefreshAt = te.Timestamp()
	w.stats.ExpiresAt = te.ExpiresAt
	w.mu.Unlock()

	w.logger.Info("session token refreshed",
		zap.String("mode", te.Mode),
		zap.Time("expires_at", te.ExpiresAt),
	)
	return nil
}

// A rejected refresh ends the session; the user has to log in again.
func (w *sessionWatch) onExpired(_ context.Context, ev events.Event) error {
	reason := ""
	if ee, ok := ev.(events.ExpiredEvent); ok {
		reason = ee.Reason
	}
	w.mu.Lock()
	w.stats.Expirations++
	w.stats.LastExpiry = reason
	w.stats.ExpiresAt = time.Time{}
	w.mu.Unlock()

	w.logger.Warn("session expired, logging out", zap.String("reason", reason))
	w.manager.Logout()
	return w.store.Clear()
}

// Stats returns a copy of the counters.
func (w *sessionWatch) Stats() SessionStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
