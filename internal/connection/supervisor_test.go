package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/notifystream/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type supervisorHarness struct {
	sup      *Supervisor
	clock    *fakeClock
	dialer   *fakeDialer
	handler  *recordingHandler
	observer *recordingObserver
}

func newSupervisorHarness(t *testing.T, tokens TokenSource, dialer *fakeDialer, policy RetryPolicy) *supervisorHarness {
	t.Helper()
	h := &supervisorHarness{
		clock:    newFakeClock(),
		dialer:   dialer,
		handler:  newRecordingHandler(),
		observer: newRecordingObserver(),
	}
	clientCfg := DefaultClientConfig()
	clientCfg.URL = "wss://push.example.com/ws/notifications/"
	h.sup = NewSupervisor(
		SupervisorConfig{Channel: ChannelNotifications, Client: clientCfg, Policy: policy},
		SupervisorDeps{
			Tokens:    tokens,
			Handler:   h.handler,
			Observer:  h.observer,
			NewClient: dialer.factory,
			Clock:     h.clock,
		},
	)
	t.Cleanup(h.sup.Stop)
	return h
}

func TestSupervisor_BackoffSchedule(t *testing.T) {
	h := newSupervisorHarness(t, staticToken("tok"), newFakeDialer(alwaysFail), DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for len(want) < 19 {
		want = append(want, 10*time.Second)
	}

	for i, d := range want {
		tm := h.clock.nextTimer(t)
		assert.Equal(t, d, tm.d, "delay after close %d", i+1)
		tm.fire()
	}

	require.Eventually(t, func() bool { return h.sup.Snapshot().Parked }, waitFor, 5*time.Millisecond)
	h.clock.expectNoTimer(t, 50*time.Millisecond)

	snap := h.sup.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 20, snap.RetryCount)
	assert.Equal(t, int64(20), snap.Attempts)
	assert.Equal(t, errRefused.Error(), snap.LastError)
	assert.Equal(t, 20, h.dialer.count())
}

func TestSupervisor_SixthRetryIsLongInterval(t *testing.T) {
	h := newSupervisorHarness(t, staticToken("tok"), newFakeDialer(alwaysFail), DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	var delays []time.Duration
	for i := 0; i < 6; i++ {
		tm := h.clock.nextTimer(t)
		delays = append(delays, tm.d)
		tm.fire()
	}
	assert.Equal(t, 10*time.Second, delays[5], "not 32s")
}

func TestSupervisor_OpenResetsRetryCount(t *testing.T) {
	dialer := newFakeDialer(func(n int, _ ClientConfig) error {
		if n <= 2 {
			return errRefused
		}
		return nil
	})
	h := newSupervisorHarness(t, staticToken("tok"), dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	assert.Equal(t, 1*time.Second, h.clock.nextTimer(t).fireAndReturn())
	assert.Equal(t, 2*time.Second, h.clock.nextTimer(t).fireAndReturn())

	require.Eventually(t, func() bool { return h.sup.State() == StateOpen }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, h.sup.Snapshot().RetryCount)
	assert.Empty(t, h.sup.Snapshot().LastError)

	// Drop the open socket: the table starts over at 1s.
	dialer.client(2).drop(errors.New("connection reset by peer"))
	tm := h.clock.nextTimer(t)
	assert.Equal(t, 1*time.Second, tm.d)
	assert.Equal(t, 1, h.sup.Snapshot().RetryCount)
	assert.True(t, dialer.client(2).isClosed(), "socket closed before retry")

	assert.Equal(t,
		[]ConnState{StateConnecting, StateClosed, StateConnecting, StateClosed, StateConnecting, StateOpen, StateClosed},
		h.observer.states(ChannelNotifications))
}

func TestSupervisor_CredentialFailureUsesFixedDelay(t *testing.T) {
	var calls atomic.Int32
	tokens := tokenFunc(func(context.Context, auth.Mode) (auth.Credential, error) {
		if calls.Add(1) == 1 {
			return auth.Credential{}, auth.ErrNoCredential
		}
		return auth.Credential{Token: "tok-2"}, nil
	})
	dialer := newFakeDialer(nil)
	h := newSupervisorHarness(t, tokens, dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	tm := h.clock.nextTimer(t)
	assert.Equal(t, 5*time.Second, tm.d)
	snap := h.sup.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.RetryCount, "credential failures do not consume the budget")
	assert.Contains(t, snap.LastError, "no credential")
	assert.Equal(t, 0, dialer.count(), "no socket without a token")

	tm.fire()
	c := dialer.next(t)
	assert.Equal(t, "tok-2", c.cfg.Token)
	assert.Equal(t, "wss://push.example.com/ws/notifications/", c.cfg.URL)
	require.Eventually(t, func() bool { return h.sup.State() == StateOpen }, waitFor, 5*time.Millisecond)
}

func TestSupervisor_StopWhilePendingTimer(t *testing.T) {
	dialer := newFakeDialer(alwaysFail)
	h := newSupervisorHarness(t, staticToken("tok"), dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	tm := h.clock.nextTimer(t)
	require.Equal(t, 1*time.Second, tm.d)

	h.sup.Stop()
	assert.True(t, tm.isStopped())

	// The tick arrives anyway: nothing may happen.
	tm.forceFire()
	h.clock.expectNoTimer(t, 50*time.Millisecond)

	assert.Equal(t, 1, dialer.count(), "no new connect attempt")
	assert.Equal(t, StateIdle, h.sup.State())
	assert.Equal(t, 1, h.sup.Snapshot().RetryCount, "counter untouched after stop")
}

func TestSupervisor_StopDuringTokenFetch(t *testing.T) {
	started := make(chan struct{})
	tokens := tokenFunc(func(ctx context.Context, _ auth.Mode) (auth.Credential, error) {
		close(started)
		<-ctx.Done()
		return auth.Credential{}, ctx.Err()
	})
	dialer := newFakeDialer(nil)
	h := newSupervisorHarness(t, tokens, dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	<-started
	h.sup.Stop()

	h.clock.expectNoTimer(t, 50*time.Millisecond)
	assert.Equal(t, 0, dialer.count())
	assert.Equal(t, StateIdle, h.sup.State())
	assert.Empty(t, h.sup.Snapshot().LastError)
}

func TestSupervisor_StopClosesOpenSocket(t *testing.T) {
	dialer := newFakeDialer(nil)
	h := newSupervisorHarness(t, staticToken("tok"), dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	c := dialer.next(t)
	require.Eventually(t, func() bool { return h.sup.State() == StateOpen }, waitFor, 5*time.Millisecond)

	h.sup.Stop()
	assert.True(t, c.isClosed())
	assert.Equal(t, StateIdle, h.sup.State())

	states := h.observer.states(ChannelNotifications)
	assert.Equal(t, []ConnState{StateConnecting, StateOpen, StateClosing, StateIdle}, states)
}

func TestSupervisor_FramesReachHandler(t *testing.T) {
	dialer := newFakeDialer(nil)
	h := newSupervisorHarness(t, staticToken("tok"), dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	c := dialer.next(t)
	c.messages <- TimestampedMessage{Data: []byte(`{"type":"notification"}`), ReceivedAt: time.Now()}
	c.messages <- TimestampedMessage{Data: []byte(`not json`), ReceivedAt: time.Now()}

	assert.Equal(t, handledFrame{channel: ChannelNotifications, data: `{"type":"notification"}`}, h.handler.next(t))
	assert.Equal(t, handledFrame{channel: ChannelNotifications, data: `not json`}, h.handler.next(t))
	assert.Equal(t, StateOpen, h.sup.State(), "frames never tear the channel down")
}

func TestSupervisor_BufferedFramesDeliveredBeforeClose(t *testing.T) {
	dialer := newFakeDialer(nil)
	h := newSupervisorHarness(t, staticToken("tok"), dialer, DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))

	c := dialer.next(t)
	require.Eventually(t, func() bool { return h.sup.State() == StateOpen }, waitFor, 5*time.Millisecond)

	c.messages <- TimestampedMessage{Data: []byte(`last words`)}
	c.drop(errors.New("eof"))

	assert.Equal(t, "last words", h.handler.next(t).data)
	h.clock.nextTimer(t)
}

func TestSupervisor_StartTwice(t *testing.T) {
	h := newSupervisorHarness(t, staticToken("tok"), newFakeDialer(nil), DefaultRetryPolicy())
	require.NoError(t, h.sup.Start(context.Background()))
	assert.ErrorIs(t, h.sup.Start(context.Background()), ErrAlreadyRunning)
}

func TestSupervisor_RestartUnparks(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxTotalAttempts = 2

	var fail atomic.Bool
	fail.Store(true)
	dialer := newFakeDialer(func(int, ClientConfig) error {
		if fail.Load() {
			return errRefused
		}
		return nil
	})
	h := newSupervisorHarness(t, staticToken("tok"), dialer, policy)
	require.NoError(t, h.sup.Start(context.Background()))

	h.clock.nextTimer(t).fire()
	require.Eventually(t, func() bool { return h.sup.Snapshot().Parked }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, h.sup.Snapshot().RetryCount)

	fail.Store(false)
	require.NoError(t, h.sup.Restart(context.Background()))

	require.Eventually(t, func() bool { return h.sup.State() == StateOpen }, waitFor, 5*time.Millisecond)
	snap := h.sup.Snapshot()
	assert.False(t, snap.Parked)
	assert.Equal(t, 0, snap.RetryCount)
	assert.Equal(t, 3, dialer.count())
}

// fireAndReturn fires the timer and returns its delay.
func (t *fakeTimer) fireAndReturn() time.Duration {
	t.fire()
	return t.d
}
