package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/th2484/ziplineordersystem/internal/model"
)

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []model.Product{
		{ID: "0", Name: "RBC A+ Adult", MassG: 700},
		{ID: "6", Name: "PLT AB+", MassG: 120},
	} {
		require.NoError(t, s.CreateProduct(ctx, p))
		require.NoError(t, s.CreateInventory(ctx, model.Inventory{ID: "inv-" + p.ID, ProductID: p.ID}))
	}
	require.NoError(t, s.CreateOrder(ctx, model.Order{ID: "o1"}))
}

func TestMemoryDuplicateAndMissing(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	err := s.CreateProduct(ctx, model.Product{ID: "0", Name: "again"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetProduct(ctx, "404")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.CreateOrderLine(ctx, model.OrderLine{ID: "l1", OrderID: "nope", ProductID: "0", Quantity: 1})
	assert.ErrorIs(t, err, ErrConstraint)

	err = s.SetInventory(ctx, "404", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryInventoryNeverNegative(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.SetInventory(ctx, "0", 5))
	assert.ErrorIs(t, s.SetInventory(ctx, "0", -1), ErrConstraint)
	inv, err := s.GetInventory(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, 5, inv.Quantity)
}

func TestMemoryAddShippedBounded(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateOrderLine(ctx, model.OrderLine{ID: "l1", OrderID: "o1", ProductID: "0", Quantity: 3}))

	l, err := s.AddShipped(ctx, "l1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, l.ShippedQuantity)
	assert.Equal(t, 1, l.QuantityNeeded())

	_, err = s.AddShipped(ctx, "l1", 2)
	assert.ErrorIs(t, err, ErrConstraint)

	l, err = s.AddShipped(ctx, "l1", 1)
	require.NoError(t, err)
	assert.True(t, l.Complete())
}

func TestMemoryPendingLinesInCreationOrder(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, model.Order{ID: "o2"}))
	require.NoError(t, s.CreateOrderLine(ctx, model.OrderLine{ID: "b", OrderID: "o1", ProductID: "0", Quantity: 1}))
	require.NoError(t, s.CreateOrderLine(ctx, model.OrderLine{ID: "a", OrderID: "o2", ProductID: "0", Quantity: 2}))
	require.NoError(t, s.CreateOrderLine(ctx, model.OrderLine{ID: "c", OrderID: "o2", ProductID: "6", Quantity: 2}))
	_, err := s.AddShipped(ctx, "b", 1)
	require.NoError(t, err)
	require.NoError(t, s.CreateOrderLine(ctx, model.OrderLine{ID: "d", OrderID: "o1", ProductID: "0", Quantity: 4}))

	pending, err := s.PendingLines(ctx, "0")
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, l := range pending {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"a", "d"}, ids)

	lines, err := s.OrderLines(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "b", lines[0].ID)
}

func TestMemoryAtomicallyRollsBack(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomically(ctx, func(r Repository) error {
		require.NoError(t, r.SetInventory(ctx, "0", 9))
		require.NoError(t, r.CreateOrder(ctx, model.Order{ID: "o-rolled"}))
		require.NoError(t, r.CreateShipment(ctx, model.Shipment{ID: "s1", OrderID: "o-rolled"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	inv, err := s.GetInventory(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Quantity)
	_, err = s.GetOrder(ctx, "o-rolled")
	assert.ErrorIs(t, err, ErrNotFound)
	shipments, err := s.ListShipments(ctx)
	require.NoError(t, err)
	assert.Empty(t, shipments)
}

func TestMemoryAtomicallyCommits(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	err := s.Atomically(ctx, func(r Repository) error {
		if err := r.CreateShipment(ctx, model.Shipment{ID: "s1", OrderID: "o1"}); err != nil {
			return err
		}
		return r.CreateShippedLine(ctx, model.ShippedLine{ID: "sl1", ShipmentID: "s1", OrderID: "o1", ProductID: "6", Quantity: 3})
	})
	require.NoError(t, err)
	lines, err := s.ShippedLines(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	shipments, err := s.OrderShipments(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, shipments, 1)
}

func TestMemoryConcurrentReadsDuringWrites(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		q := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Atomically(ctx, func(r Repository) error { return r.SetInventory(ctx, "6", q) })
		}()
		go func() {
			defer wg.Done()
			_, _ = s.ListInventory(ctx)
		}()
	}
	wg.Wait()
	inv, err := s.GetInventory(ctx, "6")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, inv.Quantity, 1)
	assert.LessOrEqual(t, inv.Quantity, 100)
}
