package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/notifystream/internal/auth"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

// fakeClock records every scheduled timer so tests can assert delays and
// fire them by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	funcs  []*fakeTimer
	timers chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		timers: make(chan *fakeTimer, 64),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	t := &fakeTimer{d: d, c: make(chan time.Time, 1), clock: c}
	c.timers <- t
	return t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: f, deadline: c.now.Add(d), clock: c}
	c.funcs = append(c.funcs, t)
	return t
}

// Advance moves time forward and runs due AfterFunc callbacks.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.funcs {
		if !t.deadline.After(c.now) {
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fire()
	}
}

// nextTimer waits for the next NewTimer call.
func (c *fakeClock) nextTimer(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-c.timers:
		return tm
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a timer to be scheduled")
		return nil
	}
}

func (c *fakeClock) expectNoTimer(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case tm := <-c.timers:
		t.Fatalf("unexpected timer scheduled: %v", tm.d)
	case <-time.After(wait):
	}
}

type fakeTimer struct {
	clock    *fakeClock
	d        time.Duration
	deadline time.Time
	c        chan time.Time
	fn       func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) C() <-chan time.Time {
	if t.fn != nil {
		return nil
	}
	return t.c
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	if t.fn != nil {
		t.fn()
		return
	}
	t.c <- t.clock.Now()
}

// forceFire delivers the tick even if the timer was stopped, as a timer
// racing with teardown would.
func (t *fakeTimer) forceFire() {
	select {
	case t.c <- t.clock.Now():
	default:
	}
}

// fakeClient is a scripted socket.
type fakeClient struct {
	cfg        ClientConfig
	connectErr error
	gate       <-chan struct{}

	messages chan TimestampedMessage
	errs     chan error

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *fakeClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *fakeClient) Errors() <-chan error                { return c.errs }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drop simulates a transport error followed by close.
func (c *fakeClient) drop(err error) {
	c.errs <- err
}

// fakeDialer hands out fakeClients. connectErr decides the outcome of the
// n-th attempt (1-based) across all channels.
type fakeDialer struct {
	mu         sync.Mutex
	clients    []*fakeClient
	connectErr func(n int, cfg ClientConfig) error
	gate       <-chan struct{}
	created    chan *fakeClient
}

func newFakeDialer(connectErr func(n int, cfg ClientConfig) error) *fakeDialer {
	return &fakeDialer{
		connectErr: connectErr,
		created:    make(chan *fakeClient, 128),
	}
}

func (d *fakeDialer) factory(cfg ClientConfig, _ *zap.Logger) Client {
	d.mu.Lock()
	n := len(d.clients) + 1
	var err error
	if d.connectErr != nil {
		err = d.connectErr(n, cfg)
	}
	c := &fakeClient{
		cfg:        cfg,
		connectErr: err,
		gate:       d.gate,
		messages:   make(chan TimestampedMessage, 16),
		errs:       make(chan error, 1),
	}
	d.clients = append(d.clients, c)
	d.mu.Unlock()

	d.created <- c
	return c
}

func (d *fakeDialer) setGate(gate <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = gate
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

func (d *fakeDialer) next(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case c := <-d.created:
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a client to be created")
		return nil
	}
}

var errRefused = errors.New("connection refused")

func alwaysFail(int, ClientConfig) error { return errRefused }

// tokenFunc adapts a function to TokenSource.
type tokenFunc func(ctx context.Context, mode auth.Mode) (auth.Credential, error)

func (f tokenFunc) GetFreshToken(ctx context.Context, mode auth.Mode) (auth.Credential, error) {
	return f(ctx, mode)
}

func staticToken(token string) tokenFunc {
	return func(context.Context, auth.Mode) (auth.Credential, error) {
		return auth.Credential{Token: token, Mode: auth.ModeLocal}, nil
	}
}

// recordingHandler collects routed frames.
type recordingHandler struct {
	frames chan handledFrame
}

type handledFrame struct {
	channel ChannelID
	data    string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{frames: make(chan handledFrame, 64)}
}

func (h *recordingHandler) HandleFrame(channel ChannelID, msg TimestampedMessage) {
	h.frames <- handledFrame{channel: channel, data: string(msg.Data)}
}

func (h *recordingHandler) next(t *testing.T) handledFrame {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a frame")
		return handledFrame{}
	}
}

// recordingObserver keeps every transition per channel.
type recordingObserver struct {
	mu          sync.Mutex
	transitions map[ChannelID][]ConnState
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{transitions: make(map[ChannelID][]ConnState)}
}

func (o *recordingObserver) Update(id ChannelID, state ConnState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions[id] = append(o.transitions[id], state)
}

func (o *recordingObserver) states(id ChannelID) []ConnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ConnState(nil), o.transitions[id]...)
}
