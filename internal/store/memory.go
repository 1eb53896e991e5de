package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
)

// MemoryStore is an in-process Repository. A transaction holds the write
// lock for its whole duration and undoes its writes when it fails, which
// gives the same serialization the row locks give in Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	nextUserID  int64
	nextProdID  int64
	nextOrderID int64
	nextItemID  int64
	users       map[int64]models.User
	products    map[int64]models.Product
	orders      map[int64]models.Order
	processed   map[string]string
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextUserID:  1,
		nextProdID:  1,
		nextOrderID: 1,
		nextItemID:  1,
		users:       make(map[int64]models.User),
		products:    make(map[int64]models.Product),
		orders:      make(map[int64]models.Order),
		processed:   make(map[string]string),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// users

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range m.users {
		if existing.Email == email {
			return apperr.Conflict("email already registered")
		}
	}
	u.ID = m.nextUserID
	m.nextUserID++
	u.Email = email
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = copyUser(*u)
	return nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found: %d", id)
	}
	cp := copyUser(u)
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			cp := copyUser(u)
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return apperr.NotFound("user not found: %d", u.ID)
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Roles = u.Roles
	existing.Enabled = u.Enabled
	existing.UpdatedAt = now()
	u.UpdatedAt = existing.UpdatedAt
	m.users[u.ID] = copyUser(existing)
	return nil
}

func copyUser(u models.User) models.User {
	roles := make(models.Roles, len(u.Roles))
	copy(roles, u.Roles)
	u.Roles = roles
	return u
}

// products

func (m *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.StockQuantity < 0 {
		return apperr.Validation("stock must not be negative")
	}
	p.ID = m.nextProdID
	m.nextProdID++
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = copyProduct(*p)
	return nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[p.ID]
	if !ok {
		return apperr.NotFound("product not found: %d", p.ID)
	}
	existing.SellerID = copyID(p.SellerID)
	existing.Name = p.Name
	existing.Price = p.Price
	existing.Active = p.Active
	existing.UpdatedAt = now()
	m.products[p.ID] = existing
	return nil
}

func (m *MemoryStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product not found: %d", id)
	}
	cp := copyProduct(p)
	return &cp, nil
}

func (m *MemoryStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.productsByIDs(ids), nil
}

func (m *MemoryStore) productsByIDs(ids []int64) []models.Product {
	out := []models.Product{}
	for _, id := range sortedUnique(ids) {
		if p, ok := m.products[id]; ok {
			out = append(out, copyProduct(p))
		}
	}
	return out
}

func copyProduct(p models.Product) models.Product {
	p.SellerID = copyID(p.SellerID)
	return p
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// orders

// materialize copies an order and resolves item name and seller from the
// current catalog.
func (m *MemoryStore) materialize(o models.Order) models.Order {
	items := make([]models.OrderItem, len(o.Items))
	for i, item := range o.Items {
		if p, ok := m.products[item.ProductID]; ok {
			item.ProductName = p.Name
			item.SellerID = copyID(p.SellerID)
		}
		items[i] = item
	}
	o.Items = items
	return o
}

func (m *MemoryStore) sellerOwns(o models.Order, sellerID int64) bool {
	for _, item := range o.Items {
		if p, ok := m.products[item.ProductID]; ok && p.SellerID != nil && *p.SellerID == sellerID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) collect(keep func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, m.materialize(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	cp := m.materialize(o)
	return &cp, nil
}

func (m *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	if key == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := m.materialize(o)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(o models.Order) bool { return f.matches(o.Status) }), nil
}

func (m *MemoryStore) ListOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(o models.Order) bool {
		return f.matches(o.Status) && m.sellerOwns(o, sellerID)
	}), nil
}

func (m *MemoryStore) CountOrdersForSeller(ctx context.Context, sellerID int64, f OrderFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.orders {
		if f.matches(o.Status) && m.sellerOwns(o, sellerID) {
			n++
		}
	}
	return n, nil
}

// events

func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[eventID]; ok {
		return false, nil
	}
	m.processed[eventID] = eventType
	return true, nil
}

// memTx runs with the store's write lock held. Every write records an undo
// step.
type memTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	return t.store.productsByIDs(ids), nil
}

func (t *memTx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return 0, apperr.NotFound("product not found: %d", productID)
	}
	if p.StockQuantity+delta < 0 {
		return 0, ErrStockConflict
	}
	prev := p
	p.StockQuantity += delta
	p.UpdatedAt = now()
	t.store.products[productID] = p
	t.undo = append(t.undo, func() { t.store.products[productID] = prev })
	return p.StockQuantity, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	m := t.store
	if o.IdempotencyKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return apperr.Conflict("idempotency key already used")
			}
		}
	}

	o.ID = m.nextOrderID
	m.nextOrderID++
	o.CreatedAt = now()
	o.UpdatedAt = o.CreatedAt

	items := make([]models.OrderItem, len(o.Items))
	for i := range o.Items {
		o.Items[i].ID = m.nextItemID
		m.nextItemID++
		o.Items[i].OrderID = o.ID
		items[i] = o.Items[i]
		items[i].ProductName = ""
		items[i].SellerID = nil
	}
	stored := *o
	stored.Items = items
	m.orders[o.ID] = stored

	id := o.ID
	t.undo = append(t.undo, func() { delete(m.orders, id) })
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := t.store.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found: %d", id)
	}
	cp := t.store.materialize(o)
	return &cp, nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	existing, ok := t.store.orders[o.ID]
	if !ok {
		return apperr.NotFound("order not found: %d", o.ID)
	}
	prev := existing
	existing.Status = o.Status
	existing.TrackingNumber = o.TrackingNumber
	existing.CancelReason = o.CancelReason
	existing.UpdatedAt = now()
	o.UpdatedAt = existing.UpdatedAt
	t.store.orders[o.ID] = existing
	t.undo = append(t.undo, func() { t.store.orders[o.ID] = prev })
	return nil
}
