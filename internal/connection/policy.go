package connection

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is the process-wide reconnect policy.
type RetryPolicy struct {
	MaxExponentialAttempts int
	ExponentialBase        time.Duration
	ExponentialCap         time.Duration
	LongInterval           time.Duration
	MaxTotalAttempts       int
	CredentialRetryDelay   time.Duration // Fixed delay after a token acquisition failure
}

// DefaultRetryPolicy returns the standard reconnect policy:
// 1s, 2s, 4s, 8s, 16s, then 10s flat, parking after 20 closes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxExponentialAttempts: 5,
		ExponentialBase:        1 * time.Second,
		ExponentialCap:         30 * time.Second,
		LongInterval:           10 * time.Second,
		MaxTotalAttempts:       20,
		CredentialRetryDelay:   5 * time.Second,
	}
}

// Delay returns the reconnect delay for a close observed at retryCount.
// It is the only delay table; retryBudget draws from it.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount >= p.MaxExponentialAttempts {
		return p.LongInterval
	}
	d := p.ExponentialBase
	for i := 0; i < retryCount && d < p.ExponentialCap; i++ {
		d *= 2
	}
	return min(d, p.ExponentialCap)
}

// retryBudget tracks consecutive closes of one channel. It implements
// backoff.BackOff over RetryPolicy.Delay and returns backoff.Stop once the
// budget is spent.
type retryBudget struct {
	policy RetryPolicy
	count  int
}

var _ backoff.BackOff = (*retryBudget)(nil)

func newRetryBudget(p RetryPolicy) *retryBudget {
	return &retryBudget{policy: p}
}

// NextBackOff consumes one attempt and returns the delay before the next
// connect, or backoff.Stop when the channel must park.
func (b *retryBudget) NextBackOff() time.Duration {
	d := b.policy.Delay(b.count)
	b.count++
	if b.count >= b.policy.MaxTotalAttempts {
		return backoff.Stop
	}
	return d
}

// Reset zeroes the counter after a successful open or a manual restart.
func (b *retryBudget) Reset() {
	b.count = 0
}

func (b *retryBudget) Count() int {
	return b.count
}
