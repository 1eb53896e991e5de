package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Role is a non-hierarchical capability held by a user.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSeller   Role = "SELLER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole normalizes a role name. The legacy "ROLE_" prefix is accepted.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_"))
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return r, true
	}
	return "", false
}

// Roles is a role set stored as a text[] column.
type Roles []Role

func (r Roles) Has(role Role) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// Strings returns the role names, used for token claims.
func (r Roles) Strings() []string {
	out := make([]string, len(r))
	for i, role := range r {
		out[i] = string(role)
	}
	return out
}

func (r Roles) Value() (driver.Value, error) {
	return pq.StringArray(r.Strings()).Value()
}

func (r *Roles) Scan(src interface{}) error {
	var names pq.StringArray
	if err := names.Scan(src); err != nil {
		return err
	}
	out := make(Roles, 0, len(names))
	for _, name := range names {
		out = append(out, Role(name))
	}
	*r = out
	return nil
}

// User is a registered account. Users are never deleted; admins toggle Enabled.
type User struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Roles        Roles     `db:"roles" json:"roles"`
	Enabled      bool      `db:"enabled" json:"enabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DisplayName joins first and last name.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Product is the catalog row this service reads. Stock only changes through
// the inventory ledger.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	SellerID      *int64          `db:"seller_id" json:"seller_id,omitempty"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// ShippingAddress is copied onto the order at creation time.
type ShippingAddress struct {
	FullName     string `db:"shipping_full_name" json:"full_name" binding:"required"`
	AddressLine1 string `db:"shipping_address_line1" json:"address_line1" binding:"required"`
	City         string `db:"shipping_city" json:"city" binding:"required"`
	PostalCode   string `db:"shipping_postal_code" json:"postal_code" binding:"required"`
	Country      string `db:"shipping_country" json:"country"`
	Phone        string `db:"shipping_phone" json:"phone" binding:"required"`
}

// Order is a customer order. TotalAmount is frozen at creation.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Status         OrderStatus     `db:"status" json:"status"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method,omitempty"`
	PaymentRef     string          `db:"payment_ref" json:"payment_ref,omitempty"`
	TrackingNumber string          `db:"tracking_number" json:"tracking_number,omitempty"`
	CancelReason   string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	IdempotencyKey string          `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	ShippingAddress `json:"shipping_address"`

	Items []OrderItem `db:"-" json:"items"`
}

// ComputeTotal sums the line extensions of the order's items.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// OrderItem is a line of an order. ProductName and SellerID are read through
// the product join at query time and are never stored on the item.
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	SellerID     *int64          `db:"seller_id" json:"seller_id,omitempty"`
	Quantity     int             `db:"quantity" json:"quantity"`
	PriceAtOrder decimal.Decimal `db:"price_at_order" json:"price_at_order"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
