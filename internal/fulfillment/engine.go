// Package fulfillment reconciles orders against inventory and splits what
// can ship into shipments under a mass ceiling.
//
// Every write operation runs inside store.Store.Atomically: a failure
// anywhere in an intake, restock, bootstrap or shipment commit leaves the
// store exactly as it was before the call, and no shipment notice for that
// call is published.
package fulfillment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/store"
)

const tracerName = "github.com/th2484/ziplineordersystem/internal/fulfillment"

// Notifier receives the notices of committed shipments.
type Notifier interface {
	NextSequence() uint64
	Enqueue(n model.ShipmentNotice) bool
}

// Result reports the shipments committed by one engine call.
type Result struct {
	OrderID   string                 `json:"order_id,omitempty"`
	Shipments []model.ShipmentNotice `json:"shipments"`
}

// Engine is the single writer over a Store. Write operations are serialized
// by an in-process mutex; reads go straight to the store.
type Engine struct {
	mu       sync.Mutex
	st       store.Store
	builder  *Builder
	ceiling  int
	notifier Notifier
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator
	newID    func() string
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier hands committed shipment notices to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithTracerProvider sets the provider engine spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithPropagator sets the propagator that captures the trace context
// carried by shipment notices. The global propagator is used by default.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(e *Engine) { e.prop = p }
}

// WithIDGenerator replaces the uuid-based row id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New builds an Engine over st with the given mass ceiling in grams.
func New(st store.Store, ceiling int, opts ...Option) (*Engine, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("mass ceiling must be positive, got %d: %w", ceiling, ErrConfiguration)
	}
	e := &Engine{
		st:      st,
		ceiling: ceiling,
		tracer:  otel.Tracer(tracerName),
		prop:    otel.GetTextMapPropagator(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.builder = NewBuilder(ceiling, e.newID)
	e.builder.now = e.now
	return e, nil
}

// Ceiling returns the mass ceiling in grams.
func (e *Engine) Ceiling() int { return e.ceiling }

type writeFn func(ctx context.Context, repo store.Repository) ([]model.ShipmentNotice, error)

// write runs fn atomically under the writer lock and publishes the notices
// of a successful call.
func (e *Engine) write(ctx context.Context, op string, attrs []attribute.KeyValue, fn writeFn) ([]model.ShipmentNotice, error) {
	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	var notices []model.ShipmentNotice
	err := e.st.Atomically(ctx, func(repo store.Repository) error {
		n, err := fn(ctx, repo)
		notices = n
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("fulfillment.shipments", len(notices)))
	if notices == nil {
		notices = []model.ShipmentNotice{}
	}
	carrier := propagation.MapCarrier{}
	e.prop.Inject(ctx, carrier)
	for i := range notices {
		if len(carrier) > 0 {
			notices[i].Trace = carrier
		}
		if e.notifier != nil {
			notices[i].Sequence = e.notifier.NextSequence()
			e.notifier.Enqueue(notices[i])
		}
	}
	return notices, nil
}

// InitCatalog creates one product and one empty inventory row per entry.
// Malformed entries and ids that repeat or already exist are configuration
// errors; nothing is created in that case.
func (e *Engine) InitCatalog(ctx context.Context, entries []model.CatalogEntry) error {
	_, err := e.write(ctx, "fulfillment.init_catalog",
		[]attribute.KeyValue{attribute.Int("catalog.entries", len(entries))},
		func(ctx context.Context, repo store.Repository) ([]model.ShipmentNotice, error) {
			seen := make(map[string]struct{}, len(entries))
			for i, ent := range entries {
				if ent.ProductID == "" {
					return nil, fmt.Errorf("catalog entry %d: empty product_id: %w", i, ErrConfiguration)
				}
				if ent.MassG < 0 {
					return nil, fmt.Errorf("catalog entry %q: negative mass %d: %w", ent.ProductID, ent.MassG, ErrConfiguration)
				}
				if _, dup := seen[ent.ProductID]; dup {
					return nil, fmt.Errorf("catalog entry %q: repeated id: %w", ent.ProductID, ErrConfiguration)
				}
				seen[ent.ProductID] = struct{}{}

				p := model.Product{ID: ent.ProductID, Name: ent.ProductName, MassG: ent.MassG}
				if err := repo.CreateProduct(ctx, p); err != nil {
					return nil, fmt.Errorf("catalog entry %q: %w: %w", ent.ProductID, ErrConfiguration, err)
				}
				if err := repo.CreateInventory(ctx, model.Inventory{ID: e.newID(), ProductID: p.ID}); err != nil {
					return nil, fmt.Errorf("catalog entry %q: %w: %w", ent.ProductID, ErrConfiguration, err)
				}
			}
			return nil, nil
		})
	return err
}

// ProcessOrder records an order and ships what current inventory allows.
//
// When every line is covered by inventory and the requested mass of the
// whole order is within the ceiling the order ships as a unit. Otherwise
// each line ships as much as its product's inventory holds and the rest
// stays pending for a later restock.
func (e *Engine) ProcessOrder(ctx context.Context, req model.OrderRequest) (Result, error) {
	if err := validateOrder(req); err != nil {
		return Result{}, err
	}
	notices, err := e.write(ctx, "fulfillment.process_order",
		[]attribute.KeyValue{attribute.String("order.id", req.OrderID), attribute.Int("order.lines", len(req.Requested))},
		func(ctx context.Context, repo store.Repository) ([]model.ShipmentNotice, error) {
			return e.intake(ctx, repo, req)
		})
	if err != nil {
		return Result{}, err
	}
	return Result{OrderID: req.OrderID, Shipments: notices}, nil
}

func validateOrder(req model.OrderRequest) error {
	if req.OrderID == "" {
		return fmt.Errorf("empty order_id: %w", ErrInvalidRequest)
	}
	if len(req.Requested) == 0 {
		return fmt.Errorf("order %q requests nothing: %w", req.OrderID, ErrInvalidRequest)
	}
	for _, it := range req.Requested {
		if it.ProductID == "" || it.Quantity <= 0 || it.Quantity > model.MaxQuantity {
			return fmt.Errorf("order %q line {%q, %d}: %w", req.OrderID, it.ProductID, it.Quantity, ErrInvalidRequest)
		}
	}
	return nil
}

func (e *Engine) intake(ctx context.Context, repo store.Repository, req model.OrderRequest) ([]model.ShipmentNotice, error) {
	now := e.now()
	if err := repo.CreateOrder(ctx, model.Order{ID: req.OrderID, CreatedAt: now}); err != nil {
		return nil, err
	}

	// Demand is summed per product so repeated products in one order are
	// checked against the inventory they share.
	demand := make(map[string]int, len(req.Requested))
	available := true
	for i, it := range req.Requested {
		p, err := repo.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.MassG >= e.ceiling {
			return nil, fmt.Errorf("order %q product %q weighs %dg per unit, ceiling %dg: %w",
				req.OrderID, p.ID, p.MassG, e.ceiling, ErrUnshippable)
		}
		line := model.OrderLine{
			ID:        e.newID(),
			OrderID:   req.OrderID,
			ProductID: p.ID,
			Position:  i,
			Quantity:  it.Quantity,
			CreatedAt: now,
		}
		if err := repo.CreateOrderLine(ctx, line); err != nil {
			return nil, err
		}
		inv, err := repo.GetInventory(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		demand[p.ID] = addSat(demand[p.ID], line.QuantityNeeded())
		if demand[p.ID] > inv.Quantity {
			available = false
		}
	}

	lines, err := repo.OrderLines(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	mass, err := requestedMass(ctx, repo, lines)
	if err != nil {
		return nil, err
	}
	if available && mass <= e.ceiling {
		return e.shipOrder(ctx, repo, req.OrderID)
	}

	var notices []model.ShipmentNotice
	for _, line := range lines {
		if line.Complete() {
			continue
		}
		inv, err := repo.GetInventory(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		// lines without stock stay pending; later lines may still ship
		n, _, err := e.fulfillLine(ctx, repo, line, inv.Quantity)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n...)
	}
	return notices, nil
}

// requestedMass is the mass of every requested unit of lines.
func requestedMass(ctx context.Context, repo store.Repository, lines []model.OrderLine) (int, error) {
	total := 0
	for _, l := range lines {
		p, err := repo.GetProduct(ctx, l.ProductID)
		if err != nil {
			return 0, err
		}
		total = addSat(total, massOf(p.MassG, l.Quantity))
	}
	return total, nil
}

// shipOrder ships every line of an order in full. The order's requested
// mass must be within the ceiling; each line still goes through the line
// splitter and decrements its product's inventory.
func (e *Engine) shipOrder(ctx context.Context, repo store.Repository, orderID string) ([]model.ShipmentNotice, error) {
	lines, err := repo.OrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	mass, err := requestedMass(ctx, repo, lines)
	if err != nil {
		return nil, err
	}
	if mass > e.ceiling {
		return nil, fmt.Errorf("order %q requests %dg, ceiling %dg: %w", orderID, mass, e.ceiling, ErrMassLimitExceeded)
	}
	var notices []model.ShipmentNotice
	for _, line := range lines {
		needed := line.QuantityNeeded()
		if needed == 0 {
			continue
		}
		n, err := e.builder.ShipLine(ctx, repo, line, needed)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n...)
		inv, err := repo.GetInventory(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if err := repo.SetInventory(ctx, line.ProductID, inv.Quantity-needed); err != nil {
			return nil, err
		}
	}
	return notices, nil
}

// fulfillLine ships min(needed, onHand) units of line and writes back the
// inventory left, which it also returns.
func (e *Engine) fulfillLine(ctx context.Context, repo store.Repository, line model.OrderLine, onHand int) ([]model.ShipmentNotice, int, error) {
	qty := min(line.QuantityNeeded(), onHand)
	if qty <= 0 {
		return nil, onHand, nil
	}
	notices, err := e.builder.ShipLine(ctx, repo, line, qty)
	if err != nil {
		return nil, 0, err
	}
	left := onHand - qty
	if err := repo.SetInventory(ctx, line.ProductID, left); err != nil {
		return nil, 0, err
	}
	return notices, left, nil
}

// ProcessRestock sets each product's inventory to the given absolute level
// and ships pending lines of that product, oldest first.
func (e *Engine) ProcessRestock(ctx context.Context, items []model.LineRequest) (Result, error) {
	for _, it := range items {
		if it.ProductID == "" || it.Quantity < 0 || it.Quantity > model.MaxQuantity {
			return Result{}, fmt.Errorf("restock {%q, %d}: %w", it.ProductID, it.Quantity, ErrInvalidRequest)
		}
	}
	notices, err := e.write(ctx, "fulfillment.process_restock",
		[]attribute.KeyValue{attribute.Int("restock.items", len(items))},
		func(ctx context.Context, repo store.Repository) ([]model.ShipmentNotice, error) {
			var notices []model.ShipmentNotice
			for _, it := range items {
				n, err := e.restock(ctx, repo, it)
				if err != nil {
					return nil, err
				}
				notices = append(notices, n...)
			}
			return notices, nil
		})
	if err != nil {
		return Result{}, err
	}
	return Result{Shipments: notices}, nil
}

func (e *Engine) restock(ctx context.Context, repo store.Repository, it model.LineRequest) ([]model.ShipmentNotice, error) {
	if _, err := repo.GetProduct(ctx, it.ProductID); err != nil {
		return nil, err
	}
	if err := repo.SetInventory(ctx, it.ProductID, it.Quantity); err != nil {
		return nil, err
	}
	pending, err := repo.PendingLines(ctx, it.ProductID)
	if err != nil {
		return nil, err
	}
	var notices []model.ShipmentNotice
	onHand := it.Quantity
	for _, line := range pending {
		// Stop at the first line that finds the shelf empty. This is a
		// break, not a continue: later pending lines of this product are
		// not visited again in this call.
		if onHand == 0 {
			break
		}
		n, left, err := e.fulfillLine(ctx, repo, line, onHand)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n...)
		onHand = left
	}
	return notices, nil
}

// ShipPackage commits one shipment with the given lines for an existing
// order. It does not touch order lines or inventory.
func (e *Engine) ShipPackage(ctx context.Context, req model.ShipmentRequest) (Result, error) {
	if req.OrderID == "" || len(req.Shipped) == 0 {
		return Result{}, fmt.Errorf("shipment for order %q: %w", req.OrderID, ErrInvalidRequest)
	}
	for _, it := range req.Shipped {
		if it.Quantity > model.MaxQuantity {
			return Result{}, fmt.Errorf("shipment for order %q ships %d of %q: %w", req.OrderID, it.Quantity, it.ProductID, ErrInvalidRequest)
		}
	}
	notices, err := e.write(ctx, "fulfillment.ship_package",
		[]attribute.KeyValue{attribute.String("order.id", req.OrderID)},
		func(ctx context.Context, repo store.Repository) ([]model.ShipmentNotice, error) {
			n, err := e.builder.Commit(ctx, repo, req)
			if err != nil {
				return nil, err
			}
			return []model.ShipmentNotice{n}, nil
		})
	if err != nil {
		return Result{}, err
	}
	return Result{OrderID: req.OrderID, Shipments: notices}, nil
}
