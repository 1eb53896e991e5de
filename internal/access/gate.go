// Package access holds the authorization rules: which role a request acts
// in, the ownership predicates over orders and products, and the status
// changes each role may request.
//
// Ownership is never stored. Every predicate is evaluated against the rows as
// they are read, so a change of product ownership is visible immediately.
package access

import (
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
)

// Capacity is the role an actor exercises for one request. A user holding
// several roles picks the capacity through the route they call.
type Capacity string

const (
	AsCustomer Capacity = "customer"
	AsSeller   Capacity = "seller"
	AsAdmin    Capacity = "admin"
)

// Role returns the role a principal must hold to act in c.
func (c Capacity) Role() models.Role {
	switch c {
	case AsAdmin:
		return models.RoleAdmin
	case AsSeller:
		return models.RoleSeller
	default:
		return models.RoleCustomer
	}
}

// RequireCapacity is the route-level check.
func RequireCapacity(p auth.Principal, c Capacity) error {
	if !p.HasRole(c.Role()) {
		return apperr.AccessDenied("requires role %s", c.Role())
	}
	return nil
}

// RequireAnyRole passes when p holds at least one of roles.
func RequireAnyRole(p auth.Principal, roles ...models.Role) error {
	if !p.HasAnyRole(roles...) {
		return apperr.ErrAccessDenied
	}
	return nil
}

// SellerOwnsOrder is the ownership predicate: at least one item of the order
// references a product owned by sellerID. Items of other sellers do not
// affect the outcome.
func SellerOwnsOrder(o *models.Order, sellerID int64) bool {
	if o == nil {
		return false
	}
	for _, item := range o.Items {
		if item.SellerID != nil && *item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// UserOwnsOrder reports whether userID placed the order.
func UserOwnsOrder(o *models.Order, userID int64) bool {
	return o != nil && o.UserID == userID
}

// SellerOwnsProduct reports whether the product belongs to sellerID.
// Products without a seller belong to nobody.
func SellerOwnsProduct(p *models.Product, sellerID int64) bool {
	return p != nil && p.SellerID != nil && *p.SellerID == sellerID
}

// AuthorizeOrderRead decides whether p may see o in capacity c. Orders
// outside the caller's scope are reported as not found.
func AuthorizeOrderRead(p auth.Principal, c Capacity, o *models.Order) error {
	if err := RequireCapacity(p, c); err != nil {
		return err
	}
	switch c {
	case AsAdmin:
		return nil
	case AsSeller:
		if SellerOwnsOrder(o, p.UserID) {
			return nil
		}
	default:
		if UserOwnsOrder(o, p.UserID) {
			return nil
		}
	}
	return apperr.NotFound("order not found")
}

// AuthorizeStatusChange checks the transition rights of a capacity. Delivery
// confirmation and cancellation through a status change are reserved for
// administrators. Any other seller target is left to the status graph, so
// unreachable targets surface as illegal transitions. Customers cannot set a
// status at all.
func AuthorizeStatusChange(c Capacity, target models.OrderStatus) error {
	switch c {
	case AsAdmin:
		return nil
	case AsSeller:
		switch target {
		case models.OrderStatusDelivered, models.OrderStatusCancelled:
			return apperr.AccessDenied("sellers may not set status %s", target)
		}
		return nil
	default:
		return apperr.AccessDenied("customers may not change order status")
	}
}

// AuthorizeCancel decides whether p may cancel o in capacity c. Customers may
// cancel their own orders; sellers never cancel.
func AuthorizeCancel(p auth.Principal, c Capacity, o *models.Order) error {
	if err := RequireCapacity(p, c); err != nil {
		return err
	}
	switch c {
	case AsAdmin:
		return nil
	case AsSeller:
		return apperr.AccessDenied("sellers may not cancel orders")
	default:
		if UserOwnsOrder(o, p.UserID) {
			return nil
		}
		return apperr.NotFound("order not found")
	}
}

// AuthorizeRestock lets administrators restock any product and sellers their
// own products.
func AuthorizeRestock(p auth.Principal, c Capacity, product *models.Product) error {
	if err := RequireCapacity(p, c); err != nil {
		return err
	}
	switch c {
	case AsAdmin:
		return nil
	case AsSeller:
		if SellerOwnsProduct(product, p.UserID) {
			return nil
		}
		return apperr.AccessDenied("product belongs to another seller")
	default:
		return apperr.AccessDenied("customers may not restock products")
	}
}
