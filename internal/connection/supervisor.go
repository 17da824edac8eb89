package connection

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rickgao/notifystream/internal/auth"
	"go.uber.org/zap"
)

// TokenSource returns a currently-valid credential for an auth mode.
type TokenSource interface {
	GetFreshToken(ctx context.Context, mode auth.Mode) (auth.Credential, error)
}

// ModeSource reads the session's auth mode flag.
type ModeSource interface {
	AuthMode() auth.Mode
}

// FrameHandler receives every inbound frame of an open channel. It must not block.
type FrameHandler interface {
	HandleFrame(channel ChannelID, msg TimestampedMessage)
}

// StateObserver is told about every channel transition, synchronously.
type StateObserver interface {
	Update(id ChannelID, state ConnState)
}

// SupervisorConfig configures one channel supervisor.
type SupervisorConfig struct {
	Channel ChannelID
	Client  ClientConfig // URL is the channel base URL; Token is filled per attempt
	Policy  RetryPolicy
}

// SupervisorDeps are the collaborators of a supervisor.
type SupervisorDeps struct {
	Tokens    TokenSource
	Modes     ModeSource
	Handler   FrameHandler
	Observer  StateObserver
	NewClient ClientFactory
	Clock     Clock
	Logger    *zap.Logger
}

// Supervisor owns the lifecycle of one channel's socket. Only its run loop
// mutates the state, socket handle and retry counter.
type Supervisor struct {
	cfg       SupervisorConfig
	tokens    TokenSource
	modes     ModeSource
	handler   FrameHandler
	observer  StateObserver
	newClient ClientFactory
	clock     Clock
	logger    *zap.Logger

	mu       sync.Mutex
	state    ConnState
	budget   *retryBudget
	parked   bool
	lastErr  error
	attempts int64
	client   Client
	pending  Timer
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(cfg SupervisorConfig, deps SupervisorDeps) *Supervisor {
	if deps.NewClient == nil {
		deps.NewClient = NewClient
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:       cfg,
		tokens:    deps.Tokens,
		modes:     deps.Modes,
		handler:   deps.Handler,
		observer:  deps.Observer,
		newClient: deps.NewClient,
		clock:     deps.Clock,
		logger:    deps.Logger.Named("supervisor").With(zap.Stringer("channel", cfg.Channel)),
		budget:    newRetryBudget(cfg.Policy),
	}
}

// Channel returns the supervised channel.
func (s *Supervisor) Channel() ChannelID {
	return s.cfg.Channel
}

// Start launches the connect loop. ctx bounds the whole session.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// Stop cancels pending timers and in-flight attempts, closes the socket and
// waits for the loop to exit. The channel ends Idle.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	client, pending := s.client, s.pending
	wasOpen := s.state == StateOpen
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	if wasOpen {
		s.setState(StateClosing)
	}

	cancel()
	if pending != nil {
		pending.Stop()
	}
	if client != nil {
		client.Close()
	}
	<-done

	s.mu.Lock()
	s.client = nil
	s.pending = nil
	s.mu.Unlock()
	s.setState(StateIdle)
	s.logger.Debug("supervisor stopped")
}

// Restart stops the loop, zeroes the retry counter, un-parks the channel and
// starts connecting again.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	s.budget.Reset()
	s.parked = false
	s.lastErr = nil
	s.mu.Unlock()

	return s.Start(ctx)
}

// State returns the current state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a diagnostic view of the channel.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Channel:    s.cfg.Channel.String(),
		State:      s.state,
		RetryCount: s.budget.Count(),
		Parked:     s.parked,
		Attempts:   s.attempts,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		delay, ok := s.attempt(ctx)
		if !ok {
			return
		}
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// attempt performs one connect-monitor-close cycle. It returns the delay
// before the next attempt, or false when the loop must end (session over
// or budget exhausted).
func (s *Supervisor) attempt(ctx context.Context) (delay time.Duration, again bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	s.setState(StateConnecting)

	mode := auth.ModeLocal
	if s.modes != nil {
		mode = s.modes.AuthMode()
	}
	cred, err := s.tokens.GetFreshToken(ctx, mode)
	if ctx.Err() != nil {
		return 0, false
	}
	if err != nil {
		// Could not even attempt to connect: fixed delay, budget untouched.
		s.logger.Warn("token unavailable",
			zap.Stringer("mode", mode),
			zap.Duration("retry_in", s.cfg.Policy.CredentialRetryDelay),
			zap.Error(err))
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.setState(StateClosed)
		return s.cfg.Policy.CredentialRetryDelay, true
	}

	clientCfg := s.cfg.Client
	clientCfg.Token = cred.Token
	client := s.newClient(clientCfg, s.logger)

	s.mu.Lock()
	s.client = client
	s.attempts++
	attemptNo := s.attempts
	s.mu.Unlock()

	err = client.Connect(ctx)
	if err == nil && ctx.Err() == nil {
		s.opened(attemptNo)
		err = s.monitor(ctx, client)
	}

	client.Close()
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()

	if ctx.Err() != nil {
		return 0, false
	}
	return s.closed(err)
}

func (s *Supervisor) opened(attemptNo int64) {
	s.mu.Lock()
	s.budget.Reset()
	s.lastErr = nil
	s.mu.Unlock()

	s.setState(StateOpen)
	s.logger.Info("channel open", zap.Int64("attempt", attemptNo))
}

// closed applies the backoff table and parks when the budget is spent.
func (s *Supervisor) closed(err error) (time.Duration, bool) {
	s.mu.Lock()
	s.lastErr = err
	delay := s.budget.NextBackOff()
	count := s.budget.Count()
	if delay == backoff.Stop {
		s.parked = true
	}
	s.mu.Unlock()

	s.setState(StateClosed)

	if delay == backoff.Stop {
		s.logger.Warn("retry budget exhausted, channel parked",
			zap.Int("retry_count", count),
			zap.Error(err))
		return 0, false
	}
	s.logger.Info("channel closed, reconnect scheduled",
		zap.Int("retry_count", count),
		zap.Duration("delay", delay),
		zap.Error(err))
	return delay, true
}

// monitor hands frames to the handler until the socket fails or the
// session ends.
func (s *Supervisor) monitor(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-client.Errors():
			s.drain(client)
			return err

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			s.handle(msg)
		}
	}
}

// drain delivers frames already buffered before the error.
func (s *Supervisor) drain(client Client) {
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			s.handle(msg)
		default:
			return
		}
	}
}

func (s *Supervisor) handle(msg TimestampedMessage) {
	if s.handler != nil {
		s.handler.HandleFrame(s.cfg.Channel, msg)
	}
}

// sleep waits on a cancellable timer. It reports false if the session
// ended, even when the timer already fired.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	s.mu.Lock()
	s.pending = t
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-t.C():
		return ctx.Err() == nil
	}
}

func (s *Supervisor) setState(state ConnState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}
	s.logger.Debug("state transition",
		zap.Stringer("from", prev),
		zap.Stringer("to", state))
	if s.observer != nil {
		s.observer.Update(s.cfg.Channel, state)
	}
}
