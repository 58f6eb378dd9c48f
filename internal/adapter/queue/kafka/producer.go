// Package kafka provides the event-log client: keyed append and grouped,
// commit-after-success consumption over a Kafka/Redpanda-compatible broker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// Producer implements domain.EventPublisher. Publish is fire-and-forget with
// an async delivery report; Flush blocks until the client's outstanding
// buffer drains or the context deadline elapses.
type Producer struct {
	client *kgo.Client
}

// NewProducer constructs a Producer against the given seed brokers.
// Acknowledgement mode is "all replicas" (kgo.AllISRAcks); there is no
// transactional ID and no EOS machinery, since the event log only requires
// at-least-once delivery with commit-after-success on the consumer side,
// not exactly-once.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.NewProducer: no seed brokers provided")
	}

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.NewProducer: %w", err)
	}

	slog.Info("kafka producer created", slog.Any("brokers", brokers))
	return &Producer{client: client}, nil
}

// Publish queues payload, marshaled as JSON, keyed by key, for topic. It does
// not wait for the broker's acknowledgement; delivery failures are reported
// asynchronously via the record's promise and only logged, never returned to
// the caller, per the fire-and-forget contract.
func (p *Producer) Publish(ctx domain.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=kafka.Publish: marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			slog.Error("kafka publish failed",
				slog.String("topic", r.Topic),
				slog.String("key", string(r.Key)),
				slog.Any("error", err))
			observability.EventsPublishedTotal.WithLabelValues(r.Topic, "error").Inc()
			return
		}
		observability.EventsPublishedTotal.WithLabelValues(r.Topic, "success").Inc()
	})
	return nil
}

// Flush blocks until all queued records are acknowledged or ctx expires.
func (p *Producer) Flush(ctx domain.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("op=kafka.Flush: %w", err)
	}
	return nil
}

// Close releases the underlying client, flushing first with a bounded
// timeout so shutdown never blocks indefinitely.
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		slog.Warn("kafka producer flush on close failed", slog.Any("error", err))
	}
	p.client.Close()
	return nil
}
