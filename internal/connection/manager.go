package connection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ManagerConfig configures the supervisor layer.
type ManagerConfig struct {
	NotificationsURL   string
	UserUpdatesURL     string
	Client             ClientConfig // Template applied to both channels
	Policy             RetryPolicy
	InitializingWindow time.Duration
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:             DefaultClientConfig(),
		Policy:             DefaultRetryPolicy(),
		InitializingWindow: 500 * time.Millisecond,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFrameHandler sets the receiver of inbound frames.
func WithFrameHandler(h FrameHandler) ManagerOption {
	return func(m *Manager) { m.handler = h }
}

// WithClientFactory overrides how socket clients are created.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) { m.newClient = f }
}

// WithClock overrides the clock used for backoff and the initializing window.
func WithClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns both channel supervisors for the lifetime of an
// authenticated session. Supervisors are recreated, with counters zeroed,
// on every Authenticate.
type Manager struct {
	cfg       ManagerConfig
	tokens    TokenSource
	modes     ModeSource
	handler   FrameHandler
	newClient ClientFactory
	clock     Clock
	logger    *zap.Logger
	status    *StatusAggregator

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	sessionID   string
	supervisors [channelCount]*Supervisor
}

// NewManager creates a Manager. Nothing connects until Authenticate.
func NewManager(cfg ManagerConfig, tokens TokenSource, modes ModeSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		tokens:    tokens,
		modes:     modes,
		newClient: NewClient,
		clock:     SystemClock,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("connection_manager")
	m.status = NewStatusAggregator(cfg.InitializingWindow, m.clock)
	return m
}

// Authenticate begins a session: fresh supervisors for both channels are
// started concurrently. ctx bounds the session; cancelling it is equivalent
// to Logout without the status reset. An existing session is torn down first.
func (m *Manager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.teardownLocked()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	m.ctx, m.cancel = sessionCtx, cancel
	m.sessionID = uuid.NewString()
	logger := m.logger.With(zap.String("session_id", m.sessionID))

	urls := [channelCount]string{
		ChannelNotifications: m.cfg.NotificationsURL,
		ChannelUserUpdates:   m.cfg.UserUpdatesURL,
	}
	for _, id := range Channels {
		clientCfg := m.cfg.Client
		clientCfg.URL = urls[id]
		m.supervisors[id] = NewSupervisor(
			SupervisorConfig{Channel: id, Client: clientCfg, Policy: m.cfg.Policy},
			SupervisorDeps{
				Tokens:    m.tokens,
				Modes:     m.modes,
				Handler:   m.handler,
				Observer:  m.status,
				NewClient: m.newClient,
				Clock:     m.clock,
				Logger:    logger,
			},
		)
	}

	m.status.BeginSession()

	var g errgroup.Group
	for _, sup := range m.supervisors {
		g.Go(func() error { return sup.Start(sessionCtx) })
	}
	if err := g.Wait(); err != nil {
		m.teardownLocked()
		return err
	}

	logger.Info("session authenticated, channels starting")
	return nil
}

// Logout tears down both channels: pending timers are cancelled, in-flight
// attempts abandoned and open sockets closed.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	sessionID := m.sessionID
	m.teardownLocked()
	m.logger.Info("session ended", zap.String("session_id", sessionID))
}

// Close is Logout for use in shutdown paths.
func (m *Manager) Close() error {
	m.Logout()
	return nil
}

func (m *Manager) teardownLocked() {
	m.cancel()

	var g errgroup.Group
	for _, sup := range m.supervisors {
		if sup == nil {
			continue
		}
		g.Go(func() error {
			sup.Stop()
			return nil
		})
	}
	g.Wait()

	m.status.EndSession()
	m.supervisors = [channelCount]*Supervisor{}
	m.ctx, m.cancel = nil, nil
	m.sessionID = ""
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// SessionID returns the current session id, or "" when logged out.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Status returns the derived connection status.
func (m *Manager) Status() ConnectionStatus {
	return m.status.Status()
}

// OnStatusChange registers a status listener; see StatusAggregator.OnChange.
func (m *Manager) OnStatusChange(fn func(ConnectionStatus)) {
	m.status.OnChange(fn)
}

// Channels returns a snapshot per channel. It is empty when logged out.
func (m *Manager) Channels() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Snapshot
	for _, sup := range m.supervisors {
		if sup != nil {
			out = append(out, sup.Snapshot())
		}
	}
	return out
}

// allClosed reports whether a session is active and both channels are Closed.
func (m *Manager) allClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return false
	}
	for _, sup := range m.supervisors {
		if sup.State() != StateClosed {
			return false
		}
	}
	return true
}

// restartAll resets both retry counters and forces both channels back to
// connecting within the current session.
func (m *Manager) restartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return ErrNotAuthenticated
	}

	sessionCtx := m.ctx
	var g errgroup.Group
	for _, sup := range m.supervisors {
		g.Go(func() error { return sup.Restart(sessionCtx) })
	}
	return g.Wait()
}
