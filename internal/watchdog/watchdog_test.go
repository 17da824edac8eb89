package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReconnector struct {
	calls  atomic.Int64
	result bool
}

func (c *countingReconnector) MaybeReconnect(context.Context) bool {
	c.calls.Add(1)
	return c.result
}

func TestWatchdog_TicksUntilStopped(t *testing.T) {
	target := &countingReconnector{result: true}
	w := New(Config{Interval: 10 * time.Millisecond}, target, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	stopped := target.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, target.calls.Load(), "no checks after Stop")

	stats := w.Stats()
	assert.Equal(t, stopped, stats.Checks)
	assert.Equal(t, stopped, stats.Reconnects)
}

func TestWatchdog_CountsOnlySuccessfulReconnects(t *testing.T) {
	target := &countingReconnector{}
	w := New(Config{Interval: 5 * time.Millisecond}, target, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return w.Stats().Checks >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))

	assert.Zero(t, w.Stats().Reconnects)
}

func TestWatchdog_Disabled(t *testing.T) {
	target := &countingReconnector{}
	w := New(Config{}, target, nil)

	assert.False(t, w.Enabled())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	assert.Zero(t, target.calls.Load())
}
