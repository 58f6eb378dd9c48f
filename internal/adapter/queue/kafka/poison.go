package kafka

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// PoisonTracker counts consecutive processing failures per record key,
// scoped to this consumer process's lifetime, and reports when a record has
// reached the poison threshold and should be diverted to its topic's
// dead-letter destination instead of redelivered again.
type PoisonTracker struct {
	maxAttempts int
	mu          sync.Mutex
	attempts    map[string]int
}

// NewPoisonTracker builds a tracker with the given attempt ceiling. A
// non-positive maxAttempts falls back to 3, matching the default poison
// policy.
func NewPoisonTracker(maxAttempts int) *PoisonTracker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &PoisonTracker{maxAttempts: maxAttempts, attempts: make(map[string]int)}
}

// RecordFailure increments the attempt count for key and reports whether it
// has now reached the poison threshold.
func (t *PoisonTracker) RecordFailure(key string) (attempts int, poisoned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key]++
	attempts = t.attempts[key]
	return attempts, attempts >= t.maxAttempts
}

// Clear drops the attempt count for key, called after a successful handle or
// once the record has been diverted to the dead-letter topic.
func (t *PoisonTracker) Clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}

// deadLetterEnvelope is the diagnostic payload appended to <topic>.dlq.
type deadLetterEnvelope struct {
	OriginalTopic string          `json:"original_topic"`
	Key           string          `json:"key"`
	Attempts      int             `json:"attempts"`
	FailureError  string          `json:"failure_error"`
	FailedAt      time.Time       `json:"failed_at"`
	Payload       json.RawMessage `json:"payload"`
}

// deadLetter republishes value under topic+domain.DLQSuffix with a
// diagnostic envelope, preserving the original key so DLQ consumers can
// still correlate by lead external_id.
func (c *Consumer) deadLetter(ctx domain.Context, topic, key string, value []byte, attempts int, cause error) error {
	envelope := deadLetterEnvelope{
		OriginalTopic: topic,
		Key:           key,
		Attempts:      attempts,
		FailureError:  cause.Error(),
		FailedAt:      time.Now().UTC(),
		Payload:       json.RawMessage(value),
	}
	if err := c.producer.Publish(ctx, topic+domain.DLQSuffix, key, envelope); err != nil {
		return fmt.Errorf("op=kafka.deadLetter: %w", err)
	}
	observability.PoisonMessagesTotal.WithLabelValues(topic).Inc()
	return nil
}
