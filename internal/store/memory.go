package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/th2484/ziplineordersystem/internal/model"
)

// tables holds every row plus insertion order for stable iteration.
type tables struct {
	products      map[string]model.Product
	productOrder  []string
	inventory     map[string]model.Inventory // by product id
	orders        map[string]model.Order
	orderOrder    []string
	lines         map[string]model.OrderLine
	lineOrder     []string
	shipments     map[string]model.Shipment
	shipmentOrder []string
	shipped       map[string]model.ShippedLine
	shippedOrder  []string
}

func newTables() *tables {
	return &tables{
		products:  make(map[string]model.Product),
		inventory: make(map[string]model.Inventory),
		orders:    make(map[string]model.Order),
		lines:     make(map[string]model.OrderLine),
		shipments: make(map[string]model.Shipment),
		shipped:   make(map[string]model.ShippedLine),
	}
}

func (t *tables) clone() *tables {
	return &tables{
		products:      maps.Clone(t.products),
		productOrder:  slices.Clone(t.productOrder),
		inventory:     maps.Clone(t.inventory),
		orders:        maps.Clone(t.orders),
		orderOrder:    slices.Clone(t.orderOrder),
		lines:         maps.Clone(t.lines),
		lineOrder:     slices.Clone(t.lineOrder),
		shipments:     maps.Clone(t.shipments),
		shipmentOrder: slices.Clone(t.shipmentOrder),
		shipped:       maps.Clone(t.shipped),
		shippedOrder:  slices.Clone(t.shippedOrder),
	}
}

// Memory is an in-process Store. Reads share a read lock; writes and
// Atomically hold the write lock for their whole duration.
type Memory struct {
	mu sync.RWMutex
	t  *tables
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{t: newTables()}
}

// Atomically runs fn under the write lock and restores the pre-call
// snapshot if fn fails. The snapshot copies every table, so each call costs
// time proportional to the store's size.
func (s *Memory) Atomically(_ context.Context, fn func(Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.t.clone()
	if err := fn(memTx{t: s.t}); err != nil {
		s.t = snap
		return err
	}
	return nil
}

func (s *Memory) read() memTx {
	s.mu.RLock()
	return memTx{t: s.t}
}

func (s *Memory) write() memTx {
	s.mu.Lock()
	return memTx{t: s.t}
}

func (s *Memory) CreateProduct(ctx context.Context, p model.Product) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateProduct(ctx, p)
}

func (s *Memory) GetProduct(ctx context.Context, id string) (model.Product, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.GetProduct(ctx, id)
}

func (s *Memory) ListProducts(ctx context.Context) ([]model.Product, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.ListProducts(ctx)
}

func (s *Memory) CreateInventory(ctx context.Context, inv model.Inventory) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateInventory(ctx, inv)
}

func (s *Memory) GetInventory(ctx context.Context, productID string) (model.Inventory, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.GetInventory(ctx, productID)
}

func (s *Memory) SetInventory(ctx context.Context, productID string, quantity int) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.SetInventory(ctx, productID, quantity)
}

func (s *Memory) ListInventory(ctx context.Context) ([]model.Inventory, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.ListInventory(ctx)
}

func (s *Memory) CreateOrder(ctx context.Context, o model.Order) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateOrder(ctx, o)
}

func (s *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.GetOrder(ctx, id)
}

func (s *Memory) ListOrders(ctx context.Context) ([]model.Order, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.ListOrders(ctx)
}

func (s *Memory) CreateOrderLine(ctx context.Context, l model.OrderLine) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateOrderLine(ctx, l)
}

func (s *Memory) AddShipped(ctx context.Context, lineID string, quantity int) (model.OrderLine, error) {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.AddShipped(ctx, lineID, quantity)
}

func (s *Memory) OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.OrderLines(ctx, orderID)
}

func (s *Memory) PendingLines(ctx context.Context, productID string) ([]model.OrderLine, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.PendingLines(ctx, productID)
}

func (s *Memory) CreateShipment(ctx context.Context, sh model.Shipment) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateShipment(ctx, sh)
}

func (s *Memory) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.GetShipment(ctx, id)
}

func (s *Memory) ListShipments(ctx context.Context) ([]model.Shipment, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.ListShipments(ctx)
}

func (s *Memory) OrderShipments(ctx context.Context, orderID string) ([]model.Shipment, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.OrderShipments(ctx, orderID)
}

func (s *Memory) CreateShippedLine(ctx context.Context, l model.ShippedLine) error {
	tx := s.write()
	defer s.mu.Unlock()
	return tx.CreateShippedLine(ctx, l)
}

func (s *Memory) ShippedLines(ctx context.Context, shipmentID string) ([]model.ShippedLine, error) {
	tx := s.read()
	defer s.mu.RUnlock()
	return tx.ShippedLines(ctx, shipmentID)
}

// memTx operates on the tables without locking; the caller holds the lock.
type memTx struct{ t *tables }

func (x memTx) CreateProduct(_ context.Context, p model.Product) error {
	if _, ok := x.t.products[p.ID]; ok {
		return fmt.Errorf("product %q: %w", p.ID, ErrDuplicate)
	}
	x.t.products[p.ID] = p
	x.t.productOrder = append(x.t.productOrder, p.ID)
	return nil
}

func (x memTx) GetProduct(_ context.Context, id string) (model.Product, error) {
	p, ok := x.t.products[id]
	if !ok {
		return model.Product{}, fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	return p, nil
}

func (x memTx) ListProducts(_ context.Context) ([]model.Product, error) {
	out := make([]model.Product, 0, len(x.t.productOrder))
	for _, id := range x.t.productOrder {
		out = append(out, x.t.products[id])
	}
	return out, nil
}

func (x memTx) CreateInventory(_ context.Context, inv model.Inventory) error {
	if _, ok := x.t.products[inv.ProductID]; !ok {
		return fmt.Errorf("inventory for product %q: %w", inv.ProductID, ErrConstraint)
	}
	if _, ok := x.t.inventory[inv.ProductID]; ok {
		return fmt.Errorf("inventory for product %q: %w", inv.ProductID, ErrDuplicate)
	}
	if inv.Quantity < 0 {
		return fmt.Errorf("inventory for product %q: negative quantity: %w", inv.ProductID, ErrConstraint)
	}
	x.t.inventory[inv.ProductID] = inv
	return nil
}

func (x memTx) GetInventory(_ context.Context, productID string) (model.Inventory, error) {
	inv, ok := x.t.inventory[productID]
	if !ok {
		return model.Inventory{}, fmt.Errorf("inventory for product %q: %w", productID, ErrNotFound)
	}
	return inv, nil
}

func (x memTx) SetInventory(_ context.Context, productID string, quantity int) error {
	inv, ok := x.t.inventory[productID]
	if !ok {
		return fmt.Errorf("inventory for product %q: %w", productID, ErrNotFound)
	}
	if quantity < 0 {
		return fmt.Errorf("inventory for product %q: negative quantity %d: %w", productID, quantity, ErrConstraint)
	}
	inv.Quantity = quantity
	x.t.inventory[productID] = inv
	return nil
}

func (x memTx) ListInventory(_ context.Context) ([]model.Inventory, error) {
	out := make([]model.Inventory, 0, len(x.t.inventory))
	for _, id := range x.t.productOrder {
		if inv, ok := x.t.inventory[id]; ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (x memTx) CreateOrder(_ context.Context, o model.Order) error {
	if _, ok := x.t.orders[o.ID]; ok {
		return fmt.Errorf("order %q: %w", o.ID, ErrDuplicate)
	}
	x.t.orders[o.ID] = o
	x.t.orderOrder = append(x.t.orderOrder, o.ID)
	return nil
}

func (x memTx) GetOrder(_ context.Context, id string) (model.Order, error) {
	o, ok := x.t.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %q: %w", id, ErrNotFound)
	}
	return o, nil
}

func (x memTx) ListOrders(_ context.Context) ([]model.Order, error) {
	out := make([]model.Order, 0, len(x.t.orderOrder))
	for _, id := range x.t.orderOrder {
		out = append(out, x.t.orders[id])
	}
	return out, nil
}

func (x memTx) CreateOrderLine(_ context.Context, l model.OrderLine) error {
	if _, ok := x.t.lines[l.ID]; ok {
		return fmt.Errorf("order line %q: %w", l.ID, ErrDuplicate)
	}
	if _, ok := x.t.orders[l.OrderID]; !ok {
		return fmt.Errorf("order line %q: order %q missing: %w", l.ID, l.OrderID, ErrConstraint)
	}
	if _, ok := x.t.products[l.ProductID]; !ok {
		return fmt.Errorf("order line %q: product %q missing: %w", l.ID, l.ProductID, ErrConstraint)
	}
	if l.ShippedQuantity < 0 || l.ShippedQuantity > l.Quantity {
		return fmt.Errorf("order line %q: shipped %d outside [0,%d]: %w", l.ID, l.ShippedQuantity, l.Quantity, ErrConstraint)
	}
	x.t.lines[l.ID] = l
	x.t.lineOrder = append(x.t.lineOrder, l.ID)
	return nil
}

func (x memTx) AddShipped(_ context.Context, lineID string, quantity int) (model.OrderLine, error) {
	l, ok := x.t.lines[lineID]
	if !ok {
		return model.OrderLine{}, fmt.Errorf("order line %q: %w", lineID, ErrNotFound)
	}
	next := l.ShippedQuantity + quantity
	if quantity < 0 || next > l.Quantity {
		return model.OrderLine{}, fmt.Errorf("order line %q: shipped %d outside [0,%d]: %w", lineID, next, l.Quantity, ErrConstraint)
	}
	l.ShippedQuantity = next
	x.t.lines[lineID] = l
	return l, nil
}

func (x memTx) OrderLines(_ context.Context, orderID string) ([]model.OrderLine, error) {
	var out []model.OrderLine
	for _, id := range x.t.lineOrder {
		if l := x.t.lines[id]; l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (x memTx) PendingLines(_ context.Context, productID string) ([]model.OrderLine, error) {
	var out []model.OrderLine
	for _, id := range x.t.lineOrder {
		if l := x.t.lines[id]; l.ProductID == productID && !l.Complete() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (x memTx) CreateShipment(_ context.Context, sh model.Shipment) error {
	if _, ok := x.t.shipments[sh.ID]; ok {
		return fmt.Errorf("shipment %q: %w", sh.ID, ErrDuplicate)
	}
	if _, ok := x.t.orders[sh.OrderID]; !ok {
		return fmt.Errorf("shipment %q: order %q missing: %w", sh.ID, sh.OrderID, ErrConstraint)
	}
	x.t.shipments[sh.ID] = sh
	x.t.shipmentOrder = append(x.t.shipmentOrder, sh.ID)
	return nil
}

func (x memTx) GetShipment(_ context.Context, id string) (model.Shipment, error) {
	sh, ok := x.t.shipments[id]
	if !ok {
		return model.Shipment{}, fmt.Errorf("shipment %q: %w", id, ErrNotFound)
	}
	return sh, nil
}

func (x memTx) ListShipments(_ context.Context) ([]model.Shipment, error) {
	out := make([]model.Shipment, 0, len(x.t.shipmentOrder))
	for _, id := range x.t.shipmentOrder {
		out = append(out, x.t.shipments[id])
	}
	return out, nil
}

func (x memTx) OrderShipments(_ context.Context, orderID string) ([]model.Shipment, error) {
	var out []model.Shipment
	for _, id := range x.t.shipmentOrder {
		if sh := x.t.shipments[id]; sh.OrderID == orderID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (x memTx) CreateShippedLine(_ context.Context, l model.ShippedLine) error {
	if _, ok := x.t.shipped[l.ID]; ok {
		return fmt.Errorf("shipped line %q: %w", l.ID, ErrDuplicate)
	}
	if _, ok := x.t.shipments[l.ShipmentID]; !ok {
		return fmt.Errorf("shipped line %q: shipment %q missing: %w", l.ID, l.ShipmentID, ErrConstraint)
	}
	if _, ok := x.t.products[l.ProductID]; !ok {
		return fmt.Errorf("shipped line %q: product %q missing: %w", l.ID, l.ProductID, ErrConstraint)
	}
	x.t.shipped[l.ID] = l
	x.t.shippedOrder = append(x.t.shippedOrder, l.ID)
	return nil
}

func (x memTx) ShippedLines(_ context.Context, shipmentID string) ([]model.ShippedLine, error) {
	var out []model.ShippedLine
	for _, id := range x.t.shippedOrder {
		if l := x.t.shipped[id]; l.ShipmentID == shipmentID {
			out = append(out, l)
		}
	}
	return out, nil
}
