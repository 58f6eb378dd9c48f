package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// Handler processes a single decoded record. A non-nil return leaves the
// record's offset uncommitted so the next poll redelivers it, subject to
// the poison-message policy bounding redelivery.
type Handler func(ctx domain.Context, topic, key string, value []byte) error

// Consumer wraps a Kafka consumer group with commit-after-success offset
// management: a record's offset is committed only once its handler returns
// nil. There is no internal worker pool or fan-out — handlers run strictly
// sequentially in poll order, one partition-owning instance at a time,
// matching the single-threaded polling loop mandated for each worker
// process. Horizontal scale comes from running more instances in the same
// consumer group, not from concurrency within one.
type Consumer struct {
	client   *kgo.Client
	producer domain.EventPublisher
	poison   *PoisonTracker
	groupID  string
	topics   []string

	// commitFn defaults to c.commit; tests override it to exercise
	// handle's branching without a live kgo client.
	commitFn func(ctx domain.Context, record *kgo.Record) error
}

// NewConsumer joins groupID on topics. poisonMaxAttempts bounds consecutive
// redelivery attempts before a record is diverted to its topic's
// dead-letter destination (topic+domain.DLQSuffix); producer publishes
// dead-lettered records.
func NewConsumer(brokers []string, groupID string, topics []string, poisonMaxAttempts int, producer domain.EventPublisher) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=kafka.NewConsumer: missing required group ID")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("op=kafka.NewConsumer: no topics provided")
	}

	kotelTracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	kotelService := kotel.NewKotel(kotel.WithTracer(kotelTracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.NewConsumer: %w", err)
	}

	slog.Info("kafka consumer created", slog.String("group_id", groupID), slog.Any("topics", topics))
	c := &Consumer{
		client:   client,
		producer: producer,
		poison:   NewPoisonTracker(poisonMaxAttempts),
		groupID:  groupID,
		topics:   topics,
	}
	c.commitFn = c.commit
	return c, nil
}

// Run polls until ctx is canceled, dispatching each fetched record to
// handler in order and committing its offset only on success. On handler
// failure the partition is rewound to the failed record's offset and the
// rest of that partition's records in the batch are skipped, so redelivery
// preserves per-partition ordering instead of racing ahead to later records
// for the same lead. Records of other partitions are still handled.
func (c *Consumer) Run(ctx domain.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		fetches := c.client.PollFetches(fetchCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				slog.Error("kafka fetch error",
					slog.String("topic", e.Topic),
					slog.Int("partition", int(e.Partition)),
					slog.Any("error", e.Err))
			}
			continue
		}

		type partitionKey struct {
			topic     string
			partition int32
		}
		rewound := map[partitionKey]bool{}
		fetches.EachRecord(func(record *kgo.Record) {
			pk := partitionKey{record.Topic, record.Partition}
			if rewound[pk] {
				return
			}
			if err := c.handle(ctx, record, handler); err != nil {
				slog.Error("kafka record left uncommitted for redelivery",
					slog.String("topic", record.Topic),
					slog.Int64("offset", record.Offset),
					slog.Any("error", err))
				c.rewindTo(record)
				rewound[pk] = true
			}
		})
	}
}

// handle dispatches one record: commits its offset on success, diverts it
// to the dead-letter topic once it reaches the poison threshold, or returns
// the handler's error so the caller rewinds the partition to redeliver it.
func (c *Consumer) handle(ctx domain.Context, record *kgo.Record, handler Handler) error {
	key := string(record.Key)
	ctx = observability.ContextWithRequestID(ctx, key)
	ctx = observability.ContextWithLogger(ctx, slog.With(
		slog.String("topic", record.Topic),
		slog.String("key", key),
		slog.String("group_id", c.groupID),
	))

	start := time.Now()
	err := handler(ctx, record.Topic, key, record.Value)
	observability.EventProcessingDuration.WithLabelValues(c.groupID).Observe(time.Since(start).Seconds())
	if err == nil {
		c.poison.Clear(key)
		observability.EventsConsumedTotal.WithLabelValues(record.Topic, "success").Inc()
		return c.commitFn(ctx, record)
	}

	attempts, poisoned := c.poison.RecordFailure(key)
	if !poisoned {
		observability.EventsConsumedTotal.WithLabelValues(record.Topic, "retry").Inc()
		return err
	}

	if dlqErr := c.deadLetter(ctx, record.Topic, key, record.Value, attempts, err); dlqErr != nil {
		slog.Error("failed to dead-letter poison record",
			slog.String("topic", record.Topic),
			slog.String("key", key),
			slog.Any("error", dlqErr))
		observability.EventsConsumedTotal.WithLabelValues(record.Topic, "retry").Inc()
		return err
	}
	observability.EventsConsumedTotal.WithLabelValues(record.Topic, "dead_lettered").Inc()
	c.poison.Clear(key)
	slog.Warn("record exceeded poison attempt threshold, diverted to dead-letter topic",
		slog.String("topic", record.Topic),
		slog.String("key", key),
		slog.Int("attempts", attempts))
	return c.commitFn(ctx, record)
}

func (c *Consumer) commit(ctx domain.Context, record *kgo.Record) error {
	if err := c.client.CommitRecords(ctx, record); err != nil {
		return fmt.Errorf("op=kafka.commit: %w", err)
	}
	return nil
}

// rewindTo seeks the record's partition back to its offset so the next poll
// redelivers it, since its handler failed and the offset must stay
// uncommitted.
func (c *Consumer) rewindTo(record *kgo.Record) {
	c.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		record.Topic: {
			record.Partition: kgo.EpochOffset{Epoch: record.LeaderEpoch, Offset: record.Offset},
		},
	})
}

// Close leaves the consumer group, triggering a rebalance.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}
