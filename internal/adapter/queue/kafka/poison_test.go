package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoisonTracker_RecordFailure_ReachesThreshold(t *testing.T) {
	tracker := NewPoisonTracker(3)

	attempts, poisoned := tracker.RecordFailure("lead-1")
	assert.Equal(t, 1, attempts)
	assert.False(t, poisoned)

	attempts, poisoned = tracker.RecordFailure("lead-1")
	assert.Equal(t, 2, attempts)
	assert.False(t, poisoned)

	attempts, poisoned = tracker.RecordFailure("lead-1")
	assert.Equal(t, 3, attempts)
	assert.True(t, poisoned)
}

func TestPoisonTracker_RecordFailure_IndependentPerKey(t *testing.T) {
	tracker := NewPoisonTracker(2)

	tracker.RecordFailure("lead-1")
	attempts, poisoned := tracker.RecordFailure("lead-2")
	assert.Equal(t, 1, attempts)
	assert.False(t, poisoned)
}

func TestPoisonTracker_Clear_ResetsCount(t *testing.T) {
	tracker := NewPoisonTracker(2)
	tracker.RecordFailure("lead-1")
	tracker.Clear("lead-1")

	attempts, poisoned := tracker.RecordFailure("lead-1")
	assert.Equal(t, 1, attempts)
	assert.False(t, poisoned)
}

func TestNewPoisonTracker_NonPositiveDefaultsToThree(t *testing.T) {
	tracker := NewPoisonTracker(0)
	assert.Equal(t, 3, tracker.maxAttempts)

	tracker = NewPoisonTracker(-5)
	assert.Equal(t, 3, tracker.maxAttempts)
}

func TestDeadLetterEnvelope_CarriesOriginalPayloadAndAttempts(t *testing.T) {
	env := deadLetterEnvelope{
		OriginalTopic: "leads.raw",
		Key:           "ext-1",
		Attempts:      3,
		FailureError:  "boom",
		Payload:       []byte(`{"a":1}`),
	}
	assert.Equal(t, "leads.raw", env.OriginalTopic)
	assert.Equal(t, "ext-1", env.Key)
	assert.Equal(t, 3, env.Attempts)
	assert.Equal(t, "boom", env.FailureError)
	assert.JSONEq(t, `{"a":1}`, string(env.Payload))
}
