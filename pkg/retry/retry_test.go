package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Sleep = NoSleep
	p.Jitter = false
	return p
}

func TestDo_SucceedsAfterFailuresBelowCap(t *testing.T) {
	calls := 0
	got, out, err := Do(context.Background(), testPolicy(), isTransient, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
	assert.False(t, out.Exhausted)
}

func TestDo_ExhaustsAtCap(t *testing.T) {
	calls := 0
	var retries []int
	p := testPolicy()
	p.OnRetry = func(_ error, attempt int, _ time.Duration) { retries = append(retries, attempt) }

	_, out, err := Do(context.Background(), p, isTransient, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, out.Attempts)
	assert.True(t, out.Exhausted)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	_, out, err := Do(context.Background(), testPolicy(), isTransient, func(context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.False(t, out.Exhausted)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, _, err := Do(ctx, testPolicy(), isTransient, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3), "capped at MaxDelay")
	assert.Equal(t, time.Second, p.Delay(0))

	p.Jitter = true
	for i := 0; i < 20; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 1, Policy{}.Attempts())
	assert.Equal(t, 5, Policy{MaxAttempts: 5}.Attempts())
}
