package model

// InventoryView joins an inventory row with its product.
type InventoryView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	MassG       int    `json:"mass_g"`
	Quantity    int    `json:"quantity"`
}

// LineView is an order line with its derived fields.
type LineView struct {
	OrderLine
	QuantityNeeded int  `json:"quantity_needed"`
	Shipped        bool `json:"shipped"`
}

// OrderView is an order with its lines in creation order.
type OrderView struct {
	Order
	Lines     []LineView `json:"lines"`
	Completed bool       `json:"completed"`
}

// NewOrderView derives the completed flag and per-line fields.
func NewOrderView(o Order, lines []OrderLine) OrderView {
	v := OrderView{Order: o, Lines: make([]LineView, 0, len(lines)), Completed: true}
	for _, l := range lines {
		v.Lines = append(v.Lines, LineView{OrderLine: l, QuantityNeeded: l.QuantityNeeded(), Shipped: l.Complete()})
		if !l.Complete() {
			v.Completed = false
		}
	}
	return v
}

// ShipmentView is a shipment with its lines and total mass.
type ShipmentView struct {
	Shipment
	Lines      []ShippedLine `json:"lines"`
	TotalMassG int           `json:"total_mass_g"`
}
