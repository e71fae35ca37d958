package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := New(Config{FailureThreshold: threshold, Cooldown: cooldown})

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }

	return cb, &clock
}

func TestBreakerStartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(5, time.Minute)

	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Allow(), ErrOpen)

	*clock = clock.Add(time.Minute)

	// First call after cooldown is the single trial.
	assert.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// Concurrent calls are rejected while the trial is in flight.
	assert.ErrorIs(t, cb.Allow(), ErrOpen)
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*clock = clock.Add(time.Minute)
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*clock = clock.Add(time.Minute)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	// The cooldown clock restarted at the trial failure.
	*clock = clock.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrOpen)

	*clock = clock.Add(30 * time.Second)
	assert.NoError(t, cb.Allow())
}

func TestBreakerCall(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	boom := errors.New("upstream down")
	calls := 0
	failing := func() error {
		calls++
		return boom
	}

	assert.ErrorIs(t, cb.Call(failing), boom)
	assert.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateOpen, cb.State())

	// Rejected without invoking fn.
	assert.ErrorIs(t, cb.Call(failing), ErrOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestBreakerMetrics(t *testing.T) {
	cb, clock := newTestBreaker(5, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()

	m := cb.Metrics()
	assert.Equal(t, StateClosed, m.State)
	assert.Equal(t, 2, m.FailureCount)
	assert.Equal(t, *clock, m.LastFailureTime)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
