package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("delivery", 5, 60*time.Second)

	for i := 0; i < 4; i++ {
		require.True(t, cb.ShouldAttempt())
		cb.RecordFailure()
		assert.Equal(t, Closed, cb.State())
	}

	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.ShouldAttempt())
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := New("delivery", 1, 10*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, Open, cb.State())
	require.False(t, cb.ShouldAttempt())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.ShouldAttempt())
	assert.Equal(t, HalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.State())
}

func TestManager_GetIsIdempotentPerResource(t *testing.T) {
	m := NewManager(5, 60*time.Second)

	a := m.Get("scoring")
	b := m.Get("scoring")
	c := m.Get("delivery")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
