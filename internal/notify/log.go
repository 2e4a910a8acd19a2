package notify

import (
	"context"
	"io"
	"sync"

	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/obs"
)

// LogPublisher writes the framed notice text to w and records a structured
// shipment_deployed event.
type LogPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogPublisher returns a LogPublisher writing to w. A nil w only logs.
func NewLogPublisher(w io.Writer) *LogPublisher {
	return &LogPublisher{w: w}
}

func (p *LogPublisher) Publish(_ context.Context, n model.ShipmentNotice) error {
	if p.w != nil {
		p.mu.Lock()
		_, err := io.WriteString(p.w, n.String())
		p.mu.Unlock()
		if err != nil {
			return err
		}
	}
	obs.Logger.Infow("shipment_deployed",
		"sequence", n.Sequence,
		"shipment_id", n.ShipmentID,
		"order_id", n.OrderID,
		"items", len(n.Items),
		"total_mass_g", n.TotalMassG,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
