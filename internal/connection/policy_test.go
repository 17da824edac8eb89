package connection

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 10 * time.Second},
		{6, 10 * time.Second},
		{19, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.retryCount), "retryCount=%d", tt.retryCount)
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxExponentialAttempts = 10

	for n := 0; n < 10; n++ {
		want := time.Duration(1<<n) * time.Second
		if want > 30*time.Second {
			want = 30 * time.Second
		}
		assert.Equal(t, want, p.Delay(n), "retryCount=%d", n)
	}
}

func TestRetryBudgetMatchesPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	b := newRetryBudget(p)

	for n := 0; n < p.MaxTotalAttempts-1; n++ {
		assert.Equal(t, p.Delay(n), b.NextBackOff(), "close at retryCount=%d", n)
		assert.Equal(t, n+1, b.Count())
	}

	// The 20th consecutive close exhausts the budget.
	assert.Equal(t, backoff.Stop, b.NextBackOff())
	assert.Equal(t, p.MaxTotalAttempts, b.Count())
}

func TestRetryBudgetReset(t *testing.T) {
	b := newRetryBudget(DefaultRetryPolicy())

	assert.Equal(t, 1*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, 1*time.Second, b.NextBackOff(), "exponential tier restarts after reset")
}
