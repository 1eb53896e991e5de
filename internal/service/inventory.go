package service

import (
	"context"
	"time"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryLedger is the only component that changes product stock. Reserve
// and Release run inside the caller's transaction; the products involved
// must already be locked through Tx.LockProducts.
type InventoryLedger struct {
	repo   store.Repository
	mirror StockMirror
	logger *zap.Logger
}

// NewInventoryLedger creates a ledger. mirror may be nil.
func NewInventoryLedger(repo store.Repository, mirror StockMirror) *InventoryLedger {
	return &InventoryLedger{
		repo:   repo,
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// Reserve takes qty units of a product. It fails with InsufficientStock
// unless the current stock covers qty.
func (l *InventoryLedger) Reserve(ctx context.Context, tx store.Tx, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive")
	}
	stock, err := tx.AdjustStock(ctx, productID, -qty)
	if errors.Is(err, store.ErrStockConflict) {
		util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		return 0, apperr.InsufficientStock("insufficient stock for product %d", productID)
	}
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		return 0, err
	}
	return stock, nil
}

// Release returns qty units of a product.
func (l *InventoryLedger) Release(ctx context.Context, tx store.Tx, productID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive")
	}
	stock, err := tx.AdjustStock(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	util.InventoryReleasedUnits.Add(float64(qty))
	return stock, nil
}

// Restock adds units to a product on behalf of an administrator or the
// owning seller.
func (l *InventoryLedger) Restock(ctx context.Context, p auth.Principal, c access.Capacity, productID int64, qty int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Restock", attribute.Int64("product_id", productID))
	defer span.End()

	if err := access.RequireCapacity(p, c); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive")
	}

	product, err := l.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeRestock(p, c, product); err != nil {
		return nil, err
	}

	err = l.repo.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockProducts(ctx, []int64{productID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return apperr.NotFound("product not found: %d", productID)
		}
		// ownership may have moved between the read and the lock
		if err := access.AuthorizeRestock(p, c, &locked[0]); err != nil {
			return err
		}
		stock, err := l.Release(ctx, tx, productID, qty)
		if err != nil {
			return err
		}
		product = &locked[0]
		product.StockQuantity = stock
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	l.logger.Info("Product restocked",
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("stock", product.StockQuantity),
		zap.Int64("actor_id", p.UserID))

	l.Refresh(ctx, productID)
	return product, nil
}

// Availability is the public stock view of a product.
type Availability struct {
	ProductID     int64  `json:"product_id"`
	StockQuantity int    `json:"stock_quantity"`
	Active        bool   `json:"active"`
	InStock       bool   `json:"in_stock"`
	Source        string `json:"source"`
}

// Availability reads the mirror first and falls back to the database,
// repopulating the mirror on a miss.
func (l *InventoryLedger) Availability(ctx context.Context, productID int64) (*Availability, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Availability", attribute.Int64("product_id", productID))
	defer span.End()

	if l.mirror != nil {
		stock, active, err := l.mirror.GetStock(ctx, productID)
		if err == nil {
			return newAvailability(productID, stock, active, "cache"), nil
		}
		l.logger.Debug("Stock mirror miss", zap.Int64("product_id", productID), zap.Error(err))
	}

	product, err := l.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	l.setMirror(ctx, product)
	return newAvailability(productID, product.StockQuantity, product.Active, "database"), nil
}

func newAvailability(productID int64, stock int, active bool, source string) *Availability {
	return &Availability{
		ProductID:     productID,
		StockQuantity: stock,
		Active:        active,
		InStock:       active && stock > 0,
		Source:        source,
	}
}

// Refresh copies the committed stock of the given products to the mirror.
// Failures are logged and counted; the database stays authoritative.
func (l *InventoryLedger) Refresh(ctx context.Context, productIDs ...int64) {
	if l.mirror == nil || len(productIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	products, err := l.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		util.StockMirrorErrors.Inc()
		l.logger.Warn("Failed to read products for stock mirror", zap.Error(err))
		// drop the entries so availability falls back to the database
		for _, id := range productIDs {
			if err := l.mirror.InvalidateStock(ctx, id); err != nil {
				l.logger.Warn("Failed to invalidate stock mirror", zap.Int64("product_id", id), zap.Error(err))
			}
		}
		return
	}
	for i := range products {
		l.setMirror(ctx, &products[i])
	}
}

func (l *InventoryLedger) setMirror(ctx context.Context, p *models.Product) {
	if l.mirror == nil {
		return
	}
	if err := l.mirror.SetStock(ctx, p.ID, p.StockQuantity, p.Active); err != nil {
		util.StockMirrorErrors.Inc()
		l.logger.Warn("Failed to update stock mirror",
			zap.Int64("product_id", p.ID),
			zap.Error(err))
	}
}
