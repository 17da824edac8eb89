package connection

import (
	"sync"
	"time"
)

// ConnectionStatus is the derived view of both channels.
type ConnectionStatus struct {
	Connected    bool `json:"is_connected"`
	Connecting   bool `json:"is_connecting"`
	Initializing bool `json:"is_initializing"`
}

// Derive computes the status from the two channel states. Either channel
// being open counts as connected.
func Derive(notifications, userUpdates ConnState, initializing bool) ConnectionStatus {
	return ConnectionStatus{
		Connected:    notifications == StateOpen || userUpdates == StateOpen,
		Connecting:   notifications == StateConnecting || userUpdates == StateConnecting,
		Initializing: initializing,
	}
}

// StatusAggregator recomputes ConnectionStatus on every channel transition.
// Open and close transitions apply immediately; only the initializing flag
// is held for a fixed window after a session begins, or until the first
// channel opens.
type StatusAggregator struct {
	window time.Duration
	clock  Clock

	mu           sync.Mutex
	states       [channelCount]ConnState
	initializing bool
	session      uint64
	timer        Timer
	current      ConnectionStatus
	listeners    []func(ConnectionStatus)
}

// NewStatusAggregator creates an aggregator with the given initializing window.
func NewStatusAggregator(window time.Duration, clock Clock) *StatusAggregator {
	if clock == nil {
		clock = SystemClock
	}
	return &StatusAggregator{window: window, clock: clock}
}

// OnChange registers fn to be called with every new status. Listeners run
// synchronously under the aggregator lock and must not call back into it.
func (a *StatusAggregator) OnChange(fn func(ConnectionStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Update records a channel transition.
func (a *StatusAggregator) Update(id ChannelID, state ConnState) {
	if int(id) >= channelCount {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.states[id] = state
	if state == StateOpen && a.initializing {
		a.stopWindowLocked()
		a.initializing = false
	}
	a.recomputeLocked()
}

// BeginSession resets both channels to idle and raises the initializing
// flag for the configured window.
func (a *StatusAggregator) BeginSession() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopWindowLocked()
	a.session++
	a.states = [channelCount]ConnState{}
	a.initializing = a.window > 0
	if a.initializing {
		session := a.session
		a.timer = a.clock.AfterFunc(a.window, func() { a.endWindow(session) })
	}
	a.recomputeLocked()
}

// EndSession clears all state after logout.
func (a *StatusAggregator) EndSession() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopWindowLocked()
	a.session++
	a.states = [channelCount]ConnState{}
	a.initializing = false
	a.recomputeLocked()
}

// Status returns the current derived status.
func (a *StatusAggregator) Status() ConnectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *StatusAggregator) endWindow(session uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A late callback from a previous session is ignored.
	if session != a.session || !a.initializing {
		return
	}
	a.timer = nil
	a.initializing = false
	a.recomputeLocked()
}

func (a *StatusAggregator) stopWindowLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *StatusAggregator) recomputeLocked() {
	next := Derive(a.states[ChannelNotifications], a.states[ChannelUserUpdates], a.initializing)
	if next == a.current {
		return
	}
	a.current = next
	for _, fn := range a.listeners {
		fn(next)
	}
}
