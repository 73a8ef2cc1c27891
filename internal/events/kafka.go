// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// EnvelopeVersion is the schema version written into every envelope.
const EnvelopeVersion = 1

// Writer is the part of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher encodes order events as JSON envelopes keyed by order ID, so
// all events of one order land on the same partition.
type Publisher struct {
	w        Writer
	producer string
	now      func() time.Time
	newID    func() string
}

// NewWriter returns an async kafka.Writer that hashes message keys across
// partitions. Delivery failures are reported to lg.
func NewWriter(brokers []string, topic string, lg *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				lg.Warn("Deliver order events", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
}

// NewPublisher wraps w. producer is written into each envelope.
func NewPublisher(w Writer, producer string) *Publisher {
	return &Publisher{
		w:        w,
		producer: producer,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Publish implements order.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev order.Event) error {
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: p.encode(ev),
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) encode(ev order.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event_id")
	e.Str(p.newID())
	e.FieldStart("event_type")
	e.Str(string(ev.Type))
	e.FieldStart("event_version")
	e.Int(EnvelopeVersion)
	e.FieldStart("occurred_at")
	e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("producer")
	e.Str(p.producer)
	e.FieldStart("correlation_id")
	e.Str(ev.OrderID)
	e.FieldStart("payload")
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(ev.OrderID)
	e.FieldStart("customer_id")
	e.Str(ev.CustomerID)
	e.FieldStart("status")
	e.Str(ev.Status.String())
	e.FieldStart("total")
	e.Str(ev.Total.String())
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

// Discard drops every event. It is used when no brokers are configured.
type Discard struct{}

// Publish implements order.Publisher.
func (Discard) Publish(context.Context, order.Event) error { return nil }
