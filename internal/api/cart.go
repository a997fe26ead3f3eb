package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) viewCart(c *gin.Context) {
	view, err := h.carts.View(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addCartLine(c *gin.Context) {
	var req addCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	line, err := h.carts.Add(c.Request.Context(), currentSession(c).UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *Handler) setCartLineQuantity(c *gin.Context) {
	lineID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	userID := currentSession(c).UserID
	if err := h.carts.SetQuantity(c.Request.Context(), userID, lineID, *req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	h.viewCart(c)
}

func (h *Handler) removeCartLine(c *gin.Context) {
	lineID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.carts.Remove(c.Request.Context(), currentSession(c).UserID, lineID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reconcileCart(c *gin.Context) {
	view, err := h.carts.Reconcile(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
