// Package notify publishes shipment notices to an operator-facing sink.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/th2484/ziplineordersystem/internal/config"
	"github.com/th2484/ziplineordersystem/internal/model"
)

// Publisher delivers shipment notices. Publish must be safe for concurrent
// use by the dispatcher workers.
type Publisher interface {
	Publish(ctx context.Context, n model.ShipmentNotice) error
	Close() error
}

// FromConfig builds the publisher selected by NOTIFY_SINK. The log sink
// writes framed notices to out.
func FromConfig(cfg config.Config, out io.Writer) (Publisher, error) {
	switch cfg.NotifySink {
	case "", "log":
		return NewLogPublisher(out), nil
	case "kafka":
		brokers := splitList(cfg.KafkaBrokers)
		if len(brokers) == 0 || cfg.KafkaTopic == "" {
			return nil, fmt.Errorf("notify: kafka sink needs KAFKA_BROKERS and KAFKA_TOPIC")
		}
		return NewKafkaPublisher(NewKafkaWriter(brokers, cfg.KafkaTopic)), nil
	case "redis":
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisPublisher(client, cfg.RedisStream), nil
	default:
		return nil, fmt.Errorf("notify: unknown sink %q", cfg.NotifySink)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
