package service

import (
	"regexp"
	"strings"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
)

// DefaultCountry is used when a shipping address leaves the country empty.
const DefaultCountry = "Türkiye"

var (
	postalCodePattern = regexp.MustCompile(`^[0-9]{5}$`)
	phonePattern      = regexp.MustCompile(`^[0-9 +\-]{10,}$`)
)

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address" binding:"required"`
	PaymentMethod   string                 `json:"payment_method"`
	PaymentRef      string                 `json:"payment_ref"`
	Items           []OrderItemRequest     `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// Normalize trims input and fills the default country.
func (r *CreateOrderRequest) Normalize() {
	a := &r.ShippingAddress
	a.FullName = strings.TrimSpace(a.FullName)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	r.PaymentRef = strings.TrimSpace(r.PaymentRef)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

// Validate checks the request shape. It does not look at the catalog.
func (r *CreateOrderRequest) Validate(paymentRequired bool) error {
	if len(r.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	for _, item := range r.Items {
		if item.ProductID <= 0 {
			return apperr.Validation("invalid product id %d", item.ProductID)
		}
		if item.Quantity <= 0 {
			return apperr.Validation("quantity for product %d must be positive", item.ProductID)
		}
	}
	if paymentRequired && r.PaymentRef == "" {
		return apperr.Validation("payment_ref is required")
	}
	if len(r.IdempotencyKey) > 128 {
		return apperr.Validation("idempotency key is too long")
	}
	return ValidateAddress(r.ShippingAddress)
}

// ValidateAddress applies the shipping address rules.
func ValidateAddress(a models.ShippingAddress) error {
	switch {
	case a.FullName == "":
		return apperr.Validation("full name is required")
	case a.AddressLine1 == "":
		return apperr.Validation("address line is required")
	case a.City == "":
		return apperr.Validation("city is required")
	case !postalCodePattern.MatchString(a.PostalCode):
		return apperr.Validation("postal code must be 5 digits")
	case !phonePattern.MatchString(a.Phone):
		return apperr.Validation("phone must have at least 10 digits, spaces, '-' or '+'")
	}
	return nil
}

// productIDs returns the product ids of the request in request order.
func (r *CreateOrderRequest) productIDs() []int64 {
	ids := make([]int64, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// UpdateStatusRequest is the body of a status change.
type UpdateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"tracking_number"`
}

// CancelRequest is the body of a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// RestockRequest is the body of a restock.
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	FirstName        string `json:"first_name" binding:"required"`
	LastName         string `json:"last_name" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=6"`
	RegisterAsSeller bool   `json:"register_as_seller"`
}

// LoginRequest is the body of a login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetRolesRequest replaces a user's role set.
type SetRolesRequest struct {
	Roles []string `json:"roles" binding:"required,min=1"`
}

// SetEnabledRequest toggles a user account.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
