package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supermarket/internal/broker"
	"supermarket/internal/models"
	"supermarket/internal/store"
	"supermarket/internal/util"

	"go.uber.org/zap"
)

// OrderService handles checkout and order history
type OrderService struct {
	store          *store.Store
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store, eventPublisher EventPublisher) *OrderService {
	return &OrderService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Checkout turns the user's active cart into an order atomically. A retry with the
// same idempotency key returns the order created by the first attempt.
func (s *OrderService) Checkout(ctx context.Context, userID int64, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if idempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			if existing.UserID != userID {
				return nil, fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
			}
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, nil
		}
	}

	order, err := s.store.Checkout(ctx, userID, idempotencyKey)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues(checkoutFailureReason(err)).Inc()
		s.logger.Warn("Checkout failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	util.CheckoutsTotal.Inc()
	util.OrderRevenueCents.Add(float64(order.Total))
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.Total.String()))

	s.publishOrderPlaced(ctx, order)
	return order, nil
}

func checkoutFailureReason(err error) string {
	var stockErr *models.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "db_error"
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Lines))
	for _, l := range order.Lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Total:     order.Total,
		Items:     items,
	}

	if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// ListOrders returns a user's order history, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	return s.store.GetOrdersByUserID(ctx, userID)
}

// GetOrder returns an order with its lines. Customers only see their own orders;
// anyone else's is reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, viewer *models.Session, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if viewer.Role != models.RoleAdmin && order.UserID != viewer.UserID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return order, nil
}

// OrderPage is one page of the admin order listing
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListAllOrders returns a page of every order, newest first
func (s *OrderService) ListAllOrders(ctx context.Context, limit, offset int) (*OrderPage, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	orders, err := s.store.GetAllOrders(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.store.GetTotalOrdersCount(ctx)
	if err != nil {
		return nil, err
	}

	return &OrderPage{Orders: orders, Total: total, Limit: limit, Offset: offset}, nil
}
