package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reconnector is the health-gated recovery hook.
type Reconnector interface {
	MaybeReconnect(ctx context.Context) bool
}

// Config holds watchdog configuration.
type Config struct {
	Interval time.Duration // Tick interval; zero disables the watchdog
}

// Stats contains watchdog counters.
type Stats struct {
	Checks     int64 `json:"checks"`
	Reconnects int64 `json:"reconnects"`
}

// Watchdog calls MaybeReconnect on every tick.
type Watchdog struct {
	cfg    Config
	target Reconnector
	logger *zap.Logger

	checks     atomic.Int64
	reconnects atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Watchdog.
func New(cfg Config, target Reconnector, logger *zap.Logger) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		cfg:    cfg,
		target: target,
		logger: logger.Named("watchdog"),
	}
}

// Enabled reports whether the watchdog has a positive interval.
func (w *Watchdog) Enabled() bool {
	return w.cfg.Interval > 0
}

// Start begins the tick loop. It is a no-op when the watchdog is disabled.
func (w *Watchdog) Start(ctx context.Context) error {
	if !w.Enabled() {
		w.logger.Debug("watchdog disabled")
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("watchdog started", zap.Duration("interval", w.cfg.Interval))
	return nil
}

// Stop shuts down the loop, waiting at most until ctx is done.
func (w *Watchdog) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watchdog stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (w *Watchdog) Stats() Stats {
	return Stats{Checks: w.checks.Load(), Reconnects: w.reconnects.Load()}
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	w.checks.Add(1)
	if w.target.MaybeReconnect(w.ctx) {
		w.reconnects.Add(1)
		w.logger.Info("parked channels restarted")
	}
}
