package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers a batch of events. A returned error means the whole
// batch may be retried.
type Publisher interface {
	Publish(ctx context.Context, evs []Event) error
	Close() error
}

// =============================================================================
// LOG PUBLISHER
// =============================================================================

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events.log")}
}

func (p *LogPublisher) Publish(_ context.Context, evs []Event) error {
	for _, ev := range evs {
		p.logger.Info("leave event",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Kind),
			zap.String("leave_id", ev.LeaveID),
			zap.String("employee_id", ev.EmployeeID),
			zap.ByteString("payload", ev.Payload),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// =============================================================================
// KAFKA PUBLISHER
// =============================================================================

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event, keyed by employee so one
// employee's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger.Named("events.kafka")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evs []Event) error {
	if len(evs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(evs))
	for i, ev := range evs {
		msgs[i] = kafka.Message{
			Key:   []byte(ev.EmployeeID),
			Value: ev.Payload,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(ev.ID)},
				{Key: "event_type", Value: []byte(ev.Kind)},
				{Key: "leave_id", Value: []byte(ev.LeaveID)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("events published", zap.Int("count", len(msgs)), zap.String("topic", p.topic))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
