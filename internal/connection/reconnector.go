package connection

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HealthChecker probes backend liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Reconnector resumes channels on demand, gated by a health probe so that a
// dead backend is not hammered with reconnects.
type Reconnector struct {
	manager *Manager
	health  HealthChecker
	timeout time.Duration
	logger  *zap.Logger
}

// NewReconnector creates a Reconnector. timeout bounds the health probe.
func NewReconnector(manager *Manager, health HealthChecker, timeout time.Duration, logger *zap.Logger) *Reconnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Reconnector{
		manager: manager,
		health:  health,
		timeout: timeout,
		logger:  logger.Named("reconnector"),
	}
}

// MaybeReconnect restarts both channels with zeroed counters when the session
// is authenticated, both channels are Closed and the health probe succeeds.
// It reports whether a reconnect was performed.
func (r *Reconnector) MaybeReconnect(ctx context.Context) bool {
	if !r.manager.allClosed() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.health.Health(probeCtx)
	cancel()
	if err != nil {
		r.logger.Info("health probe failed, not reconnecting", zap.Error(err))
		return false
	}

	// The session may have ended or a channel recovered during the probe.
	if !r.manager.allClosed() {
		return false
	}
	if err := r.manager.restartAll(); err != nil {
		r.logger.Warn("reconnect failed", zap.Error(err))
		return false
	}

	r.logger.Info("backend healthy, channels restarted")
	return true
}

// ForceReconnect closes and restarts both channels with counters reset,
// without probing.
func (r *Reconnector) ForceReconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.manager.restartAll(); err != nil {
		return err
	}
	r.logger.Info("channels force-restarted")
	return nil
}
