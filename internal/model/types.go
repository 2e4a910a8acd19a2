// Package model defines domain types used by the service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Product is a catalog entry. Immutable once created.
type Product struct {
	ID    string `json:"product_id" gorm:"primaryKey;size:50"`
	Name  string `json:"product_name" gorm:"size:100;not null"`
	MassG int    `json:"mass_g" gorm:"not null;default:0"`
}

// Inventory is the on-hand quantity of one product.
type Inventory struct {
	ID        string `json:"id" gorm:"primaryKey;size:50"`
	ProductID string `json:"product_id" gorm:"size:50;uniqueIndex;not null"`
	Quantity  int    `json:"quantity" gorm:"not null;default:0"`
}

// Order groups the lines requested in one intake call.
type Order struct {
	ID        string    `json:"order_id" gorm:"primaryKey;size:50"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderLine tracks requested versus shipped quantity of one product in an order.
type OrderLine struct {
	ID              string    `json:"id" gorm:"primaryKey;size:50"`
	OrderID         string    `json:"order_id" gorm:"size:50;index;not null"`
	ProductID       string    `json:"product_id" gorm:"size:50;index;not null"`
	Position        int       `json:"position" gorm:"not null"`
	Quantity        int       `json:"quantity" gorm:"not null"`
	ShippedQuantity int       `json:"shipped_quantity" gorm:"not null;default:0"`
	CreatedAt       time.Time `json:"created_at"`
	// Seq is assigned by the database on insert and orders lines by
	// creation. The memory store keeps insertion order and leaves it zero.
	Seq int64 `json:"-" gorm:"autoIncrement;not null;index"`
}

// QuantityNeeded is the part of the line that has not shipped yet.
func (l OrderLine) QuantityNeeded() int { return l.Quantity - l.ShippedQuantity }

// Complete reports whether every requested unit has shipped.
func (l OrderLine) Complete() bool { return l.ShippedQuantity == l.Quantity }

// Shipment is one physical consignment for an order.
type Shipment struct {
	ID        string    `json:"shipment_id" gorm:"primaryKey;size:50"`
	OrderID   string    `json:"order_id" gorm:"size:50;index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// ShippedLine is the quantity of one product carried by a shipment.
type ShippedLine struct {
	ID         string `json:"id" gorm:"primaryKey;size:50"`
	ShipmentID string `json:"shipment_id" gorm:"size:50;index;not null"`
	OrderID    string `json:"order_id" gorm:"size:50;index;not null"`
	ProductID  string `json:"product_id" gorm:"size:50;not null"`
	Position   int    `json:"position" gorm:"not null"`
	Quantity   int    `json:"quantity" gorm:"not null"`
}

// CatalogEntry is one record of the catalog bootstrap input.
type CatalogEntry struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	MassG       int    `json:"mass_g"`
}

// MaxQuantity bounds any single requested, restocked or shipped quantity.
// The validate tag on LineRequest.Quantity carries the same limit.
const MaxQuantity = 1_000_000

// LineRequest names a product and a quantity. It is used for restock levels,
// requested order lines and shipment contents.
type LineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000000"`
}

// OrderRequest is the order intake payload.
type OrderRequest struct {
	OrderID   string        `json:"order_id" validate:"required"`
	Requested []LineRequest `json:"requested" validate:"required,min=1,dive"`
}

// ShipmentRequest is the shipment commit payload.
type ShipmentRequest struct {
	OrderID string        `json:"order_id" validate:"required"`
	Shipped []LineRequest `json:"shipped" validate:"required,min=1,dive"`
}

// NoticeItem is a (product name, quantity) pair of a shipment notice.
type NoticeItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// ShipmentNotice is the operator-facing record of a committed shipment.
type ShipmentNotice struct {
	Sequence   uint64       `json:"sequence"`
	ShipmentID string       `json:"shipment_id"`
	OrderID    string       `json:"order_id"`
	Items      []NoticeItem `json:"items"`
	TotalMassG int          `json:"total_mass_g"`
	// Trace holds the propagation fields of the write that committed the
	// shipment, so publishers can link their messages to it.
	Trace map[string]string `json:"-"`
}

// String renders the notice in the framed text format operators read.
func (n ShipmentNotice) String() string {
	pairs := make([]string, 0, len(n.Items))
	for _, it := range n.Items {
		pairs = append(pairs, fmt.Sprintf("(%q, %d)", it.ProductName, it.Quantity))
	}
	var b strings.Builder
	b.WriteString("\n=====================================\n")
	b.WriteString("Shipment deployed: \n")
	fmt.Fprintf(&b, "ID - %s\n", n.ShipmentID)
	fmt.Fprintf(&b, "ORDER ID- %s\n", n.OrderID)
	fmt.Fprintf(&b, "ITEMS/QUANTITY: [%s]\n", strings.Join(pairs, ", "))
	fmt.Fprintf(&b, "SHIPMENT WEIGHT (g): %d\n", n.TotalMassG)
	b.WriteString("=====================================\n")
	return b.String()
}
