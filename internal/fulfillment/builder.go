package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/store"
)

// Builder turns quantities into committed shipments that respect the mass
// ceiling.
type Builder struct {
	ceiling int
	newID   func() string
	now     func() time.Time
}

// NewBuilder returns a Builder for the given ceiling in grams.
func NewBuilder(ceiling int, newID func() string) *Builder {
	return &Builder{ceiling: ceiling, newID: newID, now: time.Now}
}

// Commit records one shipment holding every entry of req, then re-weighs it
// from the committed lines. A shipment at or above the ceiling is an
// integrity violation; callers run Commit inside Store.Atomically so the
// shipment does not survive it.
func (b *Builder) Commit(ctx context.Context, repo store.Repository, req model.ShipmentRequest) (model.ShipmentNotice, error) {
	if len(req.Shipped) == 0 {
		return model.ShipmentNotice{}, fmt.Errorf("shipment for order %q has no lines: %w", req.OrderID, ErrInvalidRequest)
	}
	if _, err := repo.GetOrder(ctx, req.OrderID); err != nil {
		return model.ShipmentNotice{}, err
	}
	sh := model.Shipment{ID: b.newID(), OrderID: req.OrderID, CreatedAt: b.now()}
	if err := repo.CreateShipment(ctx, sh); err != nil {
		return model.ShipmentNotice{}, err
	}
	for i, item := range req.Shipped {
		if item.Quantity <= 0 || item.Quantity > model.MaxQuantity {
			return model.ShipmentNotice{}, fmt.Errorf("shipped quantity %d for product %q: %w", item.Quantity, item.ProductID, ErrInvalidRequest)
		}
		if _, err := repo.GetProduct(ctx, item.ProductID); err != nil {
			return model.ShipmentNotice{}, err
		}
		line := model.ShippedLine{
			ID:         b.newID(),
			ShipmentID: sh.ID,
			OrderID:    req.OrderID,
			ProductID:  item.ProductID,
			Position:   i,
			Quantity:   item.Quantity,
		}
		if err := repo.CreateShippedLine(ctx, line); err != nil {
			return model.ShipmentNotice{}, err
		}
	}

	notice, err := b.weigh(ctx, repo, sh)
	if err != nil {
		return model.ShipmentNotice{}, err
	}
	if notice.TotalMassG >= b.ceiling {
		return model.ShipmentNotice{}, fmt.Errorf("shipment %s of order %q weighs %dg, ceiling %dg: %w",
			sh.ID, sh.OrderID, notice.TotalMassG, b.ceiling, ErrIntegrityViolation)
	}
	return notice, nil
}

// weigh builds the notice of a shipment from its stored lines.
func (b *Builder) weigh(ctx context.Context, repo store.Repository, sh model.Shipment) (model.ShipmentNotice, error) {
	lines, err := repo.ShippedLines(ctx, sh.ID)
	if err != nil {
		return model.ShipmentNotice{}, err
	}
	n := model.ShipmentNotice{ShipmentID: sh.ID, OrderID: sh.OrderID, Items: make([]model.NoticeItem, 0, len(lines))}
	for _, l := range lines {
		p, err := repo.GetProduct(ctx, l.ProductID)
		if err != nil {
			return model.ShipmentNotice{}, err
		}
		n.Items = append(n.Items, model.NoticeItem{ProductID: p.ID, ProductName: p.Name, Quantity: l.Quantity})
		n.TotalMassG = addSat(n.TotalMassG, massOf(p.MassG, l.Quantity))
	}
	return n, nil
}

// ShipLine ships quantity units of an order line, split into as many
// single-product shipments as the ceiling requires, and advances the line's
// shipped counter by each committed batch. Callers keep quantity within the
// line's needed quantity; the store rejects anything beyond it.
func (b *Builder) ShipLine(ctx context.Context, repo store.Repository, line model.OrderLine, quantity int) ([]model.ShipmentNotice, error) {
	p, err := repo.GetProduct(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	batches, err := PlanBatches(p.MassG, quantity, b.ceiling)
	if err != nil {
		return nil, fmt.Errorf("order %q line %s (%s): %w", line.OrderID, line.ID, p.Name, err)
	}
	notices := make([]model.ShipmentNotice, 0, len(batches))
	for _, n := range batches {
		if _, err := repo.AddShipped(ctx, line.ID, n); err != nil {
			return nil, err
		}
		notice, err := b.Commit(ctx, repo, model.ShipmentRequest{
			OrderID: line.OrderID,
			Shipped: []model.LineRequest{{ProductID: line.ProductID, Quantity: n}},
		})
		if err != nil {
			return nil, err
		}
		notices = append(notices, notice)
	}
	return notices, nil
}
