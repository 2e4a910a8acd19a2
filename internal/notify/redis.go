package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/th2484/ziplineordersystem/internal/model"
)

// StreamAdder is the part of a redis client the publisher uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// NewRedisClient connects to the redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisPublisher appends each notice to a Redis stream.
type RedisPublisher struct {
	c      StreamAdder
	stream string
}

// NewRedisPublisher publishes to stream through c.
func NewRedisPublisher(c StreamAdder, stream string) *RedisPublisher {
	return &RedisPublisher{c: c, stream: stream}
}

func (p *RedisPublisher) Publish(ctx context.Context, n model.ShipmentNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice %d: %w", n.Sequence, err)
	}
	values := map[string]any{
		"sequence":     n.Sequence,
		"shipment_id":  n.ShipmentID,
		"order_id":     n.OrderID,
		"total_mass_g": n.TotalMassG,
		"notice":       string(payload),
	}
	for k, v := range n.Trace {
		values[k] = v
	}
	err = p.c.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err()
	if err != nil {
		return fmt.Errorf("redis publish notice %d: %w", n.Sequence, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return p.c.Close() }
