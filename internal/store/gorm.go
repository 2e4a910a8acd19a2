package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/th2484/ziplineordersystem/internal/model"
)

// OpenPostgres connects to Postgres through GORM and migrates the schema.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the tables backing the Gorm store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Product{},
		&model.Inventory{},
		&model.Order{},
		&model.OrderLine{},
		&model.Shipment{},
		&model.ShippedLine{},
	)
}

// Gorm is a Store backed by a SQL database. Atomically maps onto a database
// transaction; inventory reads inside it take a row lock so concurrent
// processes serialize per product.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps an open GORM handle.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Atomically runs fn inside a transaction.
func (s *Gorm) Atomically(ctx context.Context, fn func(Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

// translate maps GORM errors onto the store sentinels.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%s: %w", what, ErrConstraint)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (s *Gorm) exists(ctx context.Context, m any, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Gorm) CreateProduct(ctx context.Context, p model.Product) error {
	return translate(s.db.WithContext(ctx).Create(&p).Error, fmt.Sprintf("product %q", p.ID))
}

func (s *Gorm) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	return p, translate(err, fmt.Sprintf("product %q", id))
}

func (s *Gorm) ListProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, translate(err, "products")
}

func (s *Gorm) CreateInventory(ctx context.Context, inv model.Inventory) error {
	what := fmt.Sprintf("inventory for product %q", inv.ProductID)
	if inv.Quantity < 0 {
		return fmt.Errorf("%s: negative quantity: %w", what, ErrConstraint)
	}
	ok, err := s.exists(ctx, &model.Product{}, inv.ProductID)
	if err != nil {
		return translate(err, what)
	}
	if !ok {
		return fmt.Errorf("%s: %w", what, ErrConstraint)
	}
	return translate(s.db.WithContext(ctx).Create(&inv).Error, what)
}

func (s *Gorm) GetInventory(ctx context.Context, productID string) (model.Inventory, error) {
	var inv model.Inventory
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&inv).Error
	return inv, translate(err, fmt.Sprintf("inventory for product %q", productID))
}

func (s *Gorm) SetInventory(ctx context.Context, productID string, quantity int) error {
	what := fmt.Sprintf("inventory for product %q", productID)
	if quantity < 0 {
		return fmt.Errorf("%s: negative quantity %d: %w", what, quantity, ErrConstraint)
	}
	res := s.db.WithContext(ctx).Model(&model.Inventory{}).
		Where("product_id = ?", productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return translate(res.Error, what)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func (s *Gorm) ListInventory(ctx context.Context) ([]model.Inventory, error) {
	var out []model.Inventory
	err := s.db.WithContext(ctx).Order("product_id").Find(&out).Error
	return out, translate(err, "inventory")
}

func (s *Gorm) CreateOrder(ctx context.Context, o model.Order) error {
	return translate(s.db.WithContext(ctx).Create(&o).Error, fmt.Sprintf("order %q", o.ID))
}

func (s *Gorm) GetOrder(ctx context.Context, id string) (model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	return o, translate(err, fmt.Sprintf("order %q", id))
}

func (s *Gorm) ListOrders(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&out).Error
	return out, translate(err, "orders")
}

func (s *Gorm) CreateOrderLine(ctx context.Context, l model.OrderLine) error {
	what := fmt.Sprintf("order line %q", l.ID)
	if l.ShippedQuantity < 0 || l.ShippedQuantity > l.Quantity {
		return fmt.Errorf("%s: shipped %d outside [0,%d]: %w", what, l.ShippedQuantity, l.Quantity, ErrConstraint)
	}
	for _, ref := range []struct {
		m  any
		id string
	}{{&model.Order{}, l.OrderID}, {&model.Product{}, l.ProductID}} {
		ok, err := s.exists(ctx, ref.m, ref.id)
		if err != nil {
			return translate(err, what)
		}
		if !ok {
			return fmt.Errorf("%s: reference %q missing: %w", what, ref.id, ErrConstraint)
		}
	}
	return translate(s.db.WithContext(ctx).Create(&l).Error, what)
}

func (s *Gorm) AddShipped(ctx context.Context, lineID string, quantity int) (model.OrderLine, error) {
	what := fmt.Sprintf("order line %q", lineID)
	if quantity < 0 {
		return model.OrderLine{}, fmt.Errorf("%s: negative shipped quantity: %w", what, ErrConstraint)
	}
	res := s.db.WithContext(ctx).Model(&model.OrderLine{}).
		Where("id = ? AND shipped_quantity + ? <= quantity", lineID, quantity).
		Update("shipped_quantity", gorm.Expr("shipped_quantity + ?", quantity))
	if res.Error != nil {
		return model.OrderLine{}, translate(res.Error, what)
	}
	var l model.OrderLine
	if err := s.db.WithContext(ctx).Where("id = ?", lineID).First(&l).Error; err != nil {
		return model.OrderLine{}, translate(err, what)
	}
	if res.RowsAffected == 0 {
		return model.OrderLine{}, fmt.Errorf("%s: shipped %d outside [0,%d]: %w", what, l.ShippedQuantity+quantity, l.Quantity, ErrConstraint)
	}
	return l, nil
}

func (s *Gorm) OrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	var out []model.OrderLine
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("position").Find(&out).Error
	return out, translate(err, fmt.Sprintf("lines of order %q", orderID))
}

func (s *Gorm) PendingLines(ctx context.Context, productID string) ([]model.OrderLine, error) {
	var out []model.OrderLine
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND shipped_quantity < quantity", productID).
		Order("seq").
		Find(&out).Error
	return out, translate(err, fmt.Sprintf("pending lines of product %q", productID))
}

func (s *Gorm) CreateShipment(ctx context.Context, sh model.Shipment) error {
	what := fmt.Sprintf("shipment %q", sh.ID)
	ok, err := s.exists(ctx, &model.Order{}, sh.OrderID)
	if err != nil {
		return translate(err, what)
	}
	if !ok {
		return fmt.Errorf("%s: order %q missing: %w", what, sh.OrderID, ErrConstraint)
	}
	return translate(s.db.WithContext(ctx).Create(&sh).Error, what)
}

func (s *Gorm) GetShipment(ctx context.Context, id string) (model.Shipment, error) {
	var sh model.Shipment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&sh).Error
	return sh, translate(err, fmt.Sprintf("shipment %q", id))
}

func (s *Gorm) ListShipments(ctx context.Context) ([]model.Shipment, error) {
	var out []model.Shipment
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&out).Error
	return out, translate(err, "shipments")
}

func (s *Gorm) OrderShipments(ctx context.Context, orderID string) ([]model.Shipment, error) {
	var out []model.Shipment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&out).Error
	return out, translate(err, fmt.Sprintf("shipments of order %q", orderID))
}

func (s *Gorm) CreateShippedLine(ctx context.Context, l model.ShippedLine) error {
	what := fmt.Sprintf("shipped line %q", l.ID)
	for _, ref := range []struct {
		m  any
		id string
	}{{&model.Shipment{}, l.ShipmentID}, {&model.Product{}, l.ProductID}} {
		ok, err := s.exists(ctx, ref.m, ref.id)
		if err != nil {
			return translate(err, what)
		}
		if !ok {
			return fmt.Errorf("%s: reference %q missing: %w", what, ref.id, ErrConstraint)
		}
	}
	return translate(s.db.WithContext(ctx).Create(&l).Error, what)
}

func (s *Gorm) ShippedLines(ctx context.Context, shipmentID string) ([]model.ShippedLine, error) {
	var out []model.ShippedLine
	err := s.db.WithContext(ctx).Where("shipment_id = ?", shipmentID).Order("position").Find(&out).Error
	return out, translate(err, fmt.Sprintf("lines of shipment %q", shipmentID))
}
