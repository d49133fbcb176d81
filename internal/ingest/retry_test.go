package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_PhaseA(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 5 * time.Second},
		{3, 7 * time.Second},
		{10, 21 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, backoffDelay(c.attempt), "attempt %d", c.attempt)
	}
}

func TestBackoffDelay_PhaseACapsAt30s(t *testing.T) {
	// Phase A's linear formula would exceed 30s only past attempt 14, outside
	// Phase A's 1..10 range; verify the last Phase A attempt stays within the
	// 30s cap.
	assert.LessOrEqual(t, backoffDelay(10), 30*time.Second)
}

func TestBackoffDelay_PhaseB(t *testing.T) {
	assert.Equal(t, 60*time.Second, backoffDelay(11))
	assert.Equal(t, 60*time.Second, backoffDelay(30))
}

func TestBackoffDelay_PhaseC(t *testing.T) {
	assert.Equal(t, 300*time.Second, backoffDelay(31))
	assert.Equal(t, 300*time.Second, backoffDelay(1000))
}

func TestRetryState_NextGuardsAgainstDoubleSchedule(t *testing.T) {
	rs := NewRetryState()

	_, _, ok := rs.Next("cam-1")
	assert.True(t, ok)

	_, _, ok = rs.Next("cam-1")
	assert.False(t, ok, "a second Next before ClearPending must be rejected")

	rs.ClearPending("cam-1")
	_, _, ok = rs.Next("cam-1")
	assert.True(t, ok)
}

func TestRetryState_ResetIfStableClearsCounter(t *testing.T) {
	rs := NewRetryState()
	rs.Next("cam-1")
	rs.ClearPending("cam-1")
	rs.Next("cam-1")
	rs.ClearPending("cam-1")

	rs.ResetIfStable("cam-1", 60*time.Second)
	attempt, _, ok := rs.Next("cam-1")
	assert.True(t, ok)
	assert.Equal(t, 3, attempt, "below the stable threshold the counter must not reset")

	rs.ClearPending("cam-1")
	rs.ResetIfStable("cam-1", 150*time.Second)
	attempt, _, ok = rs.Next("cam-1")
	assert.True(t, ok)
	assert.Equal(t, 1, attempt, "past the stable threshold the counter resets to zero")
}
