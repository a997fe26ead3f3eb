package service

import (
	"context"
	"errors"
	"testing"

	"supermarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutPublishesOrderPlaced(t *testing.T) {
	st := newTestStore(t)
	publisher := &recordingPublisher{}
	carts := NewCartService(st)
	orders := NewOrderService(st, publisher)
	ctx := context.Background()

	user := registerCustomer(t, st, "buyer@example.com")
	a := addProduct(t, st, "Apples", "Produce", 200, 10)
	b := addProduct(t, st, "Bread", "Bakery", 500, 1)

	_, err := carts.Add(ctx, user.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = carts.Add(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	order, err := orders.Checkout(ctx, user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "11.00", order.Total.String())

	require.Len(t, publisher.orderPlaced, 1)
	event := publisher.orderPlaced[0]
	assert.Equal(t, models.EventTypeOrderPlaced, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, order.Total, event.Total)
	assert.Len(t, event.Items, 2)

	view, err := carts.View(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)
}

func TestCheckoutSurvivesPublishFailure(t *testing.T) {
	st := newTestStore(t)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	orders := NewOrderService(st, publisher)
	ctx := context.Background()

	user := registerCustomer(t, st, "buyer@example.com")
	p := addProduct(t, st, "Milk", "Dairy", 150, 4)
	_, err := NewCartService(st).Add(ctx, user.ID, p.ID, 2)
	require.NoError(t, err)

	order, err := orders.Checkout(ctx, user.ID, "")
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
}

func TestCheckoutFailuresPublishNothing(t *testing.T) {
	st := newTestStore(t)
	publisher := &recordingPublisher{}
	carts := NewCartService(st)
	orders := NewOrderService(st, publisher)
	inventory := NewInventoryService(st, publisher, 0)
	ctx := context.Background()

	user := registerCustomer(t, st, "buyer@example.com")
	_, err := orders.Checkout(ctx, user.ID, "")
	assert.True(t, errors.Is(err, models.ErrEmptyCart))

	p := addProduct(t, st, "Bread", "Bakery", 500, 1)
	_, err = carts.Add(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	zero := 0
	_, err = inventory.UpdateProduct(ctx, p.ID, &ProductPatch{Stock: &zero})
	require.NoError(t, err)

	_, err = orders.Checkout(ctx, user.ID, "")
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, p.ID, stockErr.ProductID)

	assert.Empty(t, publisher.orderPlaced)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	st := newTestStore(t)
	publisher := &recordingPublisher{}
	carts := NewCartService(st)
	orders := NewOrderService(st, publisher)
	ctx := context.Background()

	user := registerCustomer(t, st, "buyer@example.com")
	p := addProduct(t, st, "Eggs", "Dairy", 300, 5)
	_, err := carts.Add(ctx, user.ID, p.ID, 2)
	require.NoError(t, err)

	first, err := orders.Checkout(ctx, user.ID, "retry-me")
	require.NoError(t, err)
	second, err := orders.Checkout(ctx, user.ID, "retry-me")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, publisher.orderPlaced, 1)

	stored, err := st.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)

	other := registerCustomer(t, st, "other@example.com")
	_, err = orders.Checkout(ctx, other.ID, "retry-me")
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestGetOrderVisibility(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)
	orders := NewOrderService(st, &recordingPublisher{})
	ctx := context.Background()

	owner := registerCustomer(t, st, "owner@example.com")
	stranger := registerCustomer(t, st, "stranger@example.com")
	p := addProduct(t, st, "Tea", "Drinks", 300, 5)
	_, err := carts.Add(ctx, owner.ID, p.ID, 1)
	require.NoError(t, err)
	order, err := orders.Checkout(ctx, owner.ID, "")
	require.NoError(t, err)

	got, err := orders.GetOrder(ctx, &models.Session{UserID: owner.ID, Role: models.RoleCustomer}, order.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)

	_, err = orders.GetOrder(ctx, &models.Session{UserID: stranger.ID, Role: models.RoleCustomer}, order.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = orders.GetOrder(ctx, &models.Session{UserID: 999, Role: models.RoleAdmin}, order.ID)
	assert.NoError(t, err)

	history, err := orders.ListOrders(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	page, err := orders.ListAllOrders(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Len(t, page.Orders, 1)
}
