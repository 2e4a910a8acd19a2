package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/th2484/ziplineordersystem/internal/model"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a low-latency writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaPublisher sends each notice as a JSON message keyed by order id, so
// the notices of one order stay in one partition. The trace context of the
// committing write travels in the message headers.
type KafkaPublisher struct {
	w    MessageWriter
	prop propagation.TextMapPropagator
}

// NewKafkaPublisher wraps w using the global propagator.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, prop: otel.GetTextMapPropagator()}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n model.ShipmentNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice %d: %w", n.Sequence, err)
	}
	if len(n.Trace) > 0 {
		ctx = p.prop.Extract(ctx, propagation.MapCarrier(n.Trace))
	}
	carrier := propagation.MapCarrier{}
	p.prop.Inject(ctx, carrier)

	headers := []kafka.Header{{Key: "sequence", Value: []byte(strconv.FormatUint(n.Sequence, 10))}}
	for _, k := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}
	msg := kafka.Message{
		Key:     []byte(n.OrderID),
		Value:   payload,
		Headers: headers,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish notice %d: %w", n.Sequence, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
