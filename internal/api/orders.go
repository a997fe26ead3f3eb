package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// checkout places an order from the caller's cart. Conflicts are marked retryable
// since the client can reconcile the cart and try again.
func (h *Handler) checkout(c *gin.Context) {
	key := c.GetHeader("Idempotency-Key")

	order, err := h.orders.Checkout(c.Request.Context(), currentSession(c).UserID, key)
	if err != nil {
		status, body := errorResponse(err)
		if status == http.StatusConflict {
			body["retry"] = true
		}
		c.AbortWithStatusJSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), currentSession(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) reorder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	productID, ok := paramID(c, "productId")
	if !ok {
		return
	}

	line, err := h.carts.Reorder(c.Request.Context(), currentSession(c).UserID, orderID, productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *Handler) listAllOrders(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	page, err := h.orders.ListAllOrders(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
