package api

import (
	"net/http"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) sellerListOrders(c *gin.Context) {
	statuses, ok := statusQuery(c)
	if !ok {
		return
	}

	orders, err := h.sellers.ListForSeller(c.Request.Context(), principal(c), statuses...)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func (h *Handler) sellerCountPending(c *gin.Context) {
	n, err := h.sellers.CountPending(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    n,
		"statuses": h.sellers.PendingStatuses(),
	})
}

func (h *Handler) sellerGetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.sellers.GetForSeller(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) sellerUpdateStatus(c *gin.Context) {
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

	order, err := h.sellers.UpdateStatusForSeller(c.Request.Context(), principal(c), id, target, req.TrackingNumber)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) sellerRestock(c *gin.Context) {
	h.writeRestock(c, access.AsSeller)
}

func (h *Handler) adminRestock(c *gin.Context) {
	h.writeRestock(c, access.AsAdmin)
}

func (h *Handler) writeRestock(c *gin.Context, capacity access.Capacity) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.RestockRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.ledger.Restock(c.Request.Context(), principal(c), capacity, id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// productAvailability is public; it answers from the stock mirror when it can.
func (h *Handler) productAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	availability, err := h.ledger.Availability(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
