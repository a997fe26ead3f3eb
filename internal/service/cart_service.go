package service

import (
	"context"
	"fmt"

	"supermarket/internal/models"
	"supermarket/internal/store"
	"supermarket/internal/util"

	"go.uber.org/zap"
)

// CartService manages each customer's active cart
type CartService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

func observeCart(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.CartOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Add puts qty units of a product into the user's active cart
func (s *CartService) Add(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if qty < 1 {
		return nil, models.Validationf("quantity must be at least 1")
	}

	line, err := s.store.AddToCart(ctx, userID, productID, qty)
	observeCart("add", err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Added to cart",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity))
	return line, nil
}

// SetQuantity changes a line's quantity; zero or less removes it
func (s *CartService) SetQuantity(ctx context.Context, userID, lineID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "CartService.SetQuantity")
	defer span.End()

	err := s.store.SetCartLineQuantity(ctx, userID, lineID, qty)
	observeCart("set_quantity", err)
	return err
}

// Remove deletes a line from the cart
func (s *CartService) Remove(ctx context.Context, userID, lineID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	err := s.store.RemoveCartLine(ctx, userID, lineID)
	observeCart("remove", err)
	return err
}

// View returns the active cart with live prices and totals
func (s *CartService) View(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.View")
	defer span.End()

	return s.store.GetCartView(ctx, userID)
}

// Reconcile clamps the cart to current stock and returns the adjusted view
func (s *CartService) Reconcile(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Reconcile")
	defer span.End()

	changed, err := s.store.ReconcileCart(ctx, userID)
	observeCart("reconcile", err)
	if err != nil {
		return nil, err
	}
	if changed > 0 {
		s.logger.Info("Cart reconciled with stock", zap.Int64("user_id", userID), zap.Int("lines_changed", changed))
	}

	return s.store.GetCartView(ctx, userID)
}

// Reorder adds one unit of a product bought in one of the user's past orders
func (s *CartService) Reorder(ctx context.Context, userID, orderID, productID int64) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Reorder")
	defer span.End()

	ok, err := s.store.OrderHasProduct(ctx, userID, orderID, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("product %d in order %d: %w", productID, orderID, models.ErrNotFound)
	}

	return s.Add(ctx, userID, productID, 1)
}
