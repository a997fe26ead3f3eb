package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"supermarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAddValidatesQuantity(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)

	user := registerCustomer(t, st, "shopper@example.com")
	p := addProduct(t, st, "Rice", "Pantry", 120, 5)

	for _, qty := range []int{0, -1} {
		_, err := carts.Add(context.Background(), user.ID, p.ID, qty)
		assert.True(t, errors.Is(err, models.ErrValidation))
	}
}

func TestCartViewTotals(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)
	ctx := context.Background()

	user := registerCustomer(t, st, "shopper@example.com")
	a := addProduct(t, st, "Apples", "Produce", 200, 10)
	b := addProduct(t, st, "Bread", "Bakery", 500, 1)

	_, err := carts.Add(ctx, user.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = carts.Add(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	view, err := carts.View(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, view.Empty)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, models.Money(600), view.Lines[0].Subtotal)
	assert.Equal(t, models.Money(500), view.Lines[1].Subtotal)
	assert.Equal(t, models.Money(1100), view.Total)
	assert.True(t, view.Lines[1].Available())
}

func TestCartReconcileReturnsAdjustedView(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)
	inventory := NewInventoryService(st, &recordingPublisher{}, 0)
	ctx := context.Background()

	user := registerCustomer(t, st, "shopper@example.com")
	p := addProduct(t, st, "Juice", "Drinks", 350, 5)
	_, err := carts.Add(ctx, user.ID, p.ID, 5)
	require.NoError(t, err)

	two := 2
	_, err = inventory.UpdateProduct(ctx, p.ID, &ProductPatch{Stock: &two})
	require.NoError(t, err)

	view, err := carts.View(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, view.Lines[0].Available())

	view, err = carts.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)
	assert.Equal(t, models.Money(700), view.Total)
}

func TestCartReorder(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)
	orders := NewOrderService(st, &recordingPublisher{})
	ctx := context.Background()

	user := registerCustomer(t, st, "shopper@example.com")
	bought := addProduct(t, st, "Coffee", "Drinks", 800, 5)
	other := addProduct(t, st, "Sugar", "Pantry", 150, 5)

	_, err := carts.Add(ctx, user.ID, bought.ID, 1)
	require.NoError(t, err)
	order, err := orders.Checkout(ctx, user.ID, "")
	require.NoError(t, err)

	line, err := carts.Reorder(ctx, user.ID, order.ID, bought.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)

	_, err = carts.Reorder(ctx, user.ID, order.ID, other.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	stranger := registerCustomer(t, st, "stranger@example.com")
	_, err = carts.Reorder(ctx, stranger.ID, order.ID, bought.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCartSweeper(t *testing.T) {
	st := newTestStore(t)
	carts := NewCartService(st)
	ctx := context.Background()

	_, err := NewCartSweeper(st, time.Hour, "not a schedule", nil)
	assert.Error(t, err)
	_, err = NewCartSweeper(st, 0, "@hourly", nil)
	assert.Error(t, err)

	user := registerCustomer(t, st, "idle@example.com")
	p := addProduct(t, st, "Flour", "Pantry", 220, 5)

	st.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	_, err = carts.Add(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	st.SetClock(time.Now)

	sweeper, err := NewCartSweeper(st, 3*time.Hour, "@hourly", nil)
	require.NoError(t, err)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	sweeper, err = NewCartSweeper(st, time.Hour, "@every 1m", nil)
	require.NoError(t, err)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	view, err := carts.View(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)

	_, err = carts.Add(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)

	sweeper.Start()
	sweeper.Stop()
}

type fakeLocker struct {
	busy     bool
	acquired []string
	released []string
}

func (l *fakeLocker) AcquireLock(_ context.Context, name string, _ time.Duration) (string, bool, error) {
	if l.busy {
		return "", false, nil
	}
	token := fmt.Sprintf("%s-token-%d", name, len(l.acquired)+1)
	l.acquired = append(l.acquired, token)
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _, token string) error {
	l.released = append(l.released, token)
	return nil
}

func TestCartSweeperReleasesOwnLock(t *testing.T) {
	st := newTestStore(t)
	locker := &fakeLocker{}

	sweeper, err := NewCartSweeper(st, time.Hour, "@hourly", locker)
	require.NoError(t, err)

	sweeper.run()
	sweeper.run()
	assert.Equal(t, []string{"cart-sweeper-token-1", "cart-sweeper-token-2"}, locker.acquired)
	assert.Equal(t, locker.acquired, locker.released)

	locker.busy = true
	sweeper.run()
	assert.Len(t, locker.released, 2)
}
