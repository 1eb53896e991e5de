package store

import (
	"context"
	"sort"
	"time"

	"marketplace-orders/internal/models"

	"github.com/pkg/errors"
)

// ErrStockConflict is returned by Tx.AdjustStock when applying the delta
// would take a product's stock below zero.
var ErrStockConflict = errors.New("stock would become negative")

// OrderFilter narrows order listings. An empty Statuses slice matches every
// status.
type OrderFilter struct {
	Statuses []models.OrderStatus
}

func (f OrderFilter) statusStrings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}

func (f OrderFilter) matches(s models.OrderStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

// Repository is the persistence boundary of the service. Every listing is
// ordered newest first and returns orders with their items, where each item
// carries the product's current name and seller.
type Repository interface {
	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	ListOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) ([]models.Order, error)
	CountOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) (int, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed claims eventID. It reports false when the event was
	// already claimed, so only one caller acts on a given event.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations that must run under transactional row locks.
type Tx interface {
	// LockProducts locks the given products in ascending id order and
	// returns them in that order. Missing ids are simply absent.
	LockProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	// AdjustStock adds delta to the product's stock and returns the new
	// value, or ErrStockConflict if the result would be negative.
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
	// InsertOrder persists the order and its items and fills in ids and
	// timestamps.
	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	// UpdateOrder writes status, tracking number and cancel reason.
	UpdateOrder(ctx context.Context, o *models.Order) error
}

// sortedUnique returns ids deduplicated in ascending order, the canonical
// lock order.
func sortedUnique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
