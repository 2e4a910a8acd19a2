package fulfillment

import (
	"context"

	"github.com/th2484/ziplineordersystem/internal/model"
)

// Products lists the catalog.
func (e *Engine) Products(ctx context.Context) ([]model.Product, error) {
	return e.st.ListProducts(ctx)
}

// Inventory lists on-hand quantities joined with their products.
func (e *Engine) Inventory(ctx context.Context) ([]model.InventoryView, error) {
	rows, err := e.st.ListInventory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.InventoryView, 0, len(rows))
	for _, inv := range rows {
		p, err := e.st.GetProduct(ctx, inv.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.InventoryView{
			ProductID:   p.ID,
			ProductName: p.Name,
			MassG:       p.MassG,
			Quantity:    inv.Quantity,
		})
	}
	return out, nil
}

// Order returns one order with its lines.
func (e *Engine) Order(ctx context.Context, id string) (model.OrderView, error) {
	o, err := e.st.GetOrder(ctx, id)
	if err != nil {
		return model.OrderView{}, err
	}
	lines, err := e.st.OrderLines(ctx, id)
	if err != nil {
		return model.OrderView{}, err
	}
	return model.NewOrderView(o, lines), nil
}

// Orders lists every order with its lines in creation order.
func (e *Engine) Orders(ctx context.Context) ([]model.OrderView, error) {
	orders, err := e.st.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.OrderView, 0, len(orders))
	for _, o := range orders {
		lines, err := e.st.OrderLines(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.NewOrderView(o, lines))
	}
	return out, nil
}

// OrderShipments lists the shipments committed for an order.
func (e *Engine) OrderShipments(ctx context.Context, orderID string) ([]model.ShipmentView, error) {
	if _, err := e.st.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	shipments, err := e.st.OrderShipments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ShipmentView, 0, len(shipments))
	for _, sh := range shipments {
		lines, err := e.st.ShippedLines(ctx, sh.ID)
		if err != nil {
			return nil, err
		}
		v := model.ShipmentView{Shipment: sh, Lines: lines}
		for _, l := range lines {
			p, err := e.st.GetProduct(ctx, l.ProductID)
			if err != nil {
				return nil, err
			}
			v.TotalMassG = addSat(v.TotalMassG, massOf(p.MassG, l.Quantity))
		}
		out = append(out, v)
	}
	return out, nil
}
