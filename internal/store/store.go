// Package store persists catalog, inventory, orders and shipments behind a
// key-based repository the fulfillment engine reads and writes.
package store

import (
	"context"
	"errors"

	"github.com/th2484/ziplineordersystem/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned on an id collision.
	ErrDuplicate = errors.New("duplicate id")
	// ErrConstraint is returned when a write would break a row invariant:
	// negative inventory, shipped above requested, or a dangling reference.
	ErrConstraint = errors.New("constraint violation")
)

// Repository is the set of queries and writes the engine needs. Order lines,
// shipments and shipped lines are returned in creation order.
type Repository interface {
	CreateProduct(ctx context.Context, p model.Product) error
	GetProduct(ctx context.Context, id string) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)

	CreateInventory(ctx context.Context, inv model.Inventory) error
	GetInventory(ctx context.Context, productID string) (model.Inventory, error)
	SetInventory(ctx context.Context, productID string, quantity int) error
	ListInventory(ctx context.Context) ([]model.Inventory, error)

	CreateOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)

	CreateOrderLine(ctx context.Context, l model.OrderLine) error
	// AddShipped increases a line's shipped quantity and returns the updated line.
	AddShipped(ctx context.Context, lineID string, quantity int) (model.OrderLine, error)
	OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error)
	// PendingLines returns incomplete lines for a product across all orders.
	PendingLines(ctx context.Context, productID string) ([]model.OrderLine, error)

	CreateShipment(ctx context.Context, s model.Shipment) error
	GetShipment(ctx context.Context, id string) (model.Shipment, error)
	ListShipments(ctx context.Context) ([]model.Shipment, error)
	OrderShipments(ctx context.Context, orderID string) ([]model.Shipment, error)

	CreateShippedLine(ctx context.Context, l model.ShippedLine) error
	ShippedLines(ctx context.Context, shipmentID string) ([]model.ShippedLine, error)
}

// Store is a Repository that can run a group of writes atomically.
type Store interface {
	Repository
	// Atomically runs fn against a transactional view. If fn returns an
	// error every write made through the view is discarded.
	Atomically(ctx context.Context, fn func(Repository) error) error
}
