package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	all := []ConnState{StateIdle, StateConnecting, StateOpen, StateClosing, StateClosed}

	for _, a := range all {
		for _, b := range all {
			got := Derive(a, b, false)
			assert.Equal(t, a == StateOpen || b == StateOpen, got.Connected, "%s/%s", a, b)
			assert.Equal(t, a == StateConnecting || b == StateConnecting, got.Connecting, "%s/%s", a, b)
			assert.False(t, got.Initializing)
		}
	}
	assert.True(t, Derive(StateIdle, StateIdle, true).Initializing)
}

type statusLog struct {
	mu   sync.Mutex
	seen []ConnectionStatus
}

func (l *statusLog) record(s ConnectionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, s)
}

func (l *statusLog) all() []ConnectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConnectionStatus(nil), l.seen...)
}

func TestStatusAggregatorImmediateTransitions(t *testing.T) {
	a := NewStatusAggregator(0, newFakeClock())
	log := &statusLog{}
	a.OnChange(log.record)

	a.Update(ChannelNotifications, StateConnecting)
	assert.Equal(t, ConnectionStatus{Connecting: true}, a.Status())

	a.Update(ChannelNotifications, StateOpen)
	assert.Equal(t, ConnectionStatus{Connected: true}, a.Status())

	a.Update(ChannelUserUpdates, StateOpen)
	a.Update(ChannelNotifications, StateClosed)
	assert.Equal(t, ConnectionStatus{Connected: true}, a.Status(), "one open channel is enough")

	a.Update(ChannelUserUpdates, StateClosed)
	assert.Equal(t, ConnectionStatus{}, a.Status(), "close clears connected at once")

	assert.Equal(t, []ConnectionStatus{
		{Connecting: true},
		{Connected: true},
		{},
	}, log.all())
}

func TestStatusAggregatorInitializingWindow(t *testing.T) {
	clk := newFakeClock()
	a := NewStatusAggregator(500*time.Millisecond, clk)

	a.BeginSession()
	a.Update(ChannelNotifications, StateConnecting)
	a.Update(ChannelUserUpdates, StateConnecting)
	assert.Equal(t, ConnectionStatus{Connecting: true, Initializing: true}, a.Status())

	clk.Advance(499 * time.Millisecond)
	assert.True(t, a.Status().Initializing)

	clk.Advance(time.Millisecond)
	assert.Equal(t, ConnectionStatus{Connecting: true}, a.Status())
}

func TestStatusAggregatorOpenEndsInitializing(t *testing.T) {
	clk := newFakeClock()
	a := NewStatusAggregator(500*time.Millisecond, clk)

	a.BeginSession()
	a.Update(ChannelNotifications, StateConnecting)
	a.Update(ChannelUserUpdates, StateConnecting)
	a.Update(ChannelNotifications, StateOpen)
	a.Update(ChannelUserUpdates, StateOpen)

	assert.Equal(t, ConnectionStatus{Connected: true}, a.Status())

	// The window callback is cancelled and cannot raise the flag again.
	clk.Advance(time.Second)
	assert.Equal(t, ConnectionStatus{Connected: true}, a.Status())
}

func TestStatusAggregatorStaleWindowIgnored(t *testing.T) {
	clk := newFakeClock()
	a := NewStatusAggregator(500*time.Millisecond, clk)

	a.BeginSession()
	a.EndSession()
	assert.Equal(t, ConnectionStatus{}, a.Status())

	a.BeginSession()
	clk.Advance(300 * time.Millisecond)
	assert.True(t, a.Status().Initializing)
	clk.Advance(200 * time.Millisecond)
	assert.False(t, a.Status().Initializing)
}

func TestStatusAggregatorEndSessionResets(t *testing.T) {
	a := NewStatusAggregator(500*time.Millisecond, newFakeClock())
	a.BeginSession()
	a.Update(ChannelNotifications, StateOpen)

	a.EndSession()
	assert.Equal(t, ConnectionStatus{}, a.Status())
	assert.Equal(t, StateIdle, a.states[ChannelNotifications])
}
