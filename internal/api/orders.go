package api

import (
	"net/http"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/service"
	"marketplace-orders/internal/store"

	"github.com/gin-gonic/gin"
)

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), principal(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders returns the caller's own orders
func (h *Handler) listOrders(c *gin.Context) {
	h.writeOrderList(c, access.AsCustomer)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	h.writeOrder(c, access.AsCustomer)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	h.writeCancel(c, access.AsCustomer)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	h.writeOrderList(c, access.AsAdmin)
}

func (h *Handler) adminGetOrder(c *gin.Context) {
	h.writeOrder(c, access.AsAdmin)
}

func (h *Handler) adminUpdateStatus(c *gin.Context) {
	h.writeStatusChange(c, access.AsAdmin)
}

func (h *Handler) adminCancelOrder(c *gin.Context) {
	h.writeCancel(c, access.AsAdmin)
}

func (h *Handler) writeOrderList(c *gin.Context, capacity access.Capacity) {
	statuses, ok := statusQuery(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), principal(c), capacity, store.OrderFilter{Statuses: statuses})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func (h *Handler) writeOrder(c *gin.Context, capacity access.Capacity) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), principal(c), capacity, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) writeCancel(c *gin.Context, capacity access.Capacity) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	// the body is optional
	var req service.CancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), principal(c), capacity, id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) writeStatusChange(c *gin.Context, capacity access.Capacity) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	target, ok := parseStatus(c, req.Status)
	if !ok {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), principal(c), capacity, id, target, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
