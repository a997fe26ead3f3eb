package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"supermarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background(), zap.NewNop()))
	return store
}

func createCustomer(t *testing.T, store *Store, email string) *models.User {
	t.Helper()
	user := &models.User{FirstName: "Test", LastName: "Customer", Email: email, PasswordHash: "x", Role: models.RoleCustomer}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func createProduct(t *testing.T, store *Store, name, category string, price models.Money, stock int) *models.Product {
	t.Helper()
	product := &models.Product{Name: name, Category: category, Price: price, Stock: stock}
	require.NoError(t, store.CreateProduct(context.Background(), product))
	return product
}

func setStock(t *testing.T, store *Store, id int64, stock int) {
	t.Helper()
	_, err := store.UpdateProduct(context.Background(), id, func(p *models.Product) error {
		p.Stock = stock
		return nil
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, store *Store, id int64) int {
	t.Helper()
	p, err := store.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background(), zap.NewNop()))
}

func TestCheckout(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "alice@example.com")
	a := createProduct(t, store, "Apples", "Produce", 200, 10)
	b := createProduct(t, store, "Bread", "Bakery", 500, 1)

	_, err := store.AddToCart(ctx, user.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)
	cart, err := store.GetActiveCart(ctx, user.ID)
	require.NoError(t, err)

	order, err := store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, models.Money(1100), order.Total)
	require.Len(t, order.Lines, 2)

	var sum models.Money
	for _, l := range order.Lines {
		assert.Equal(t, l.UnitPrice.Times(l.Quantity), l.Subtotal)
		sum += l.Subtotal
	}
	assert.Equal(t, order.Total, sum)

	assert.Equal(t, 7, stockOf(t, store, a.ID))
	assert.Equal(t, 0, stockOf(t, store, b.ID))

	_, err = store.GetActiveCart(ctx, user.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	var status string
	require.NoError(t, store.GetDB().Get(&status, `SELECT status FROM carts WHERE id = ?`, cart.ID))
	assert.Equal(t, models.CartStatusCompleted, status)

	stored, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Total, stored.Total)
	assert.Len(t, stored.Lines, 2)
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "bob@example.com")
	a := createProduct(t, store, "Apples", "Produce", 200, 10)
	b := createProduct(t, store, "Bread", "Bakery", 500, 1)

	_, err := store.AddToCart(ctx, user.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	// stock changes between cart display and checkout
	setStock(t, store, b.ID, 0)

	_, err = store.Checkout(ctx, user.ID, "")
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.True(t, errors.Is(err, models.ErrConflict))

	assert.Equal(t, 10, stockOf(t, store, a.ID))
	count, err := store.GetTotalOrdersCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.GetActiveCart(ctx, user.ID)
	assert.NoError(t, err)
}

func TestCheckoutEmptyCart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "carol@example.com")
	_, err := store.Checkout(ctx, user.ID, "")
	assert.True(t, errors.Is(err, models.ErrEmptyCart))

	p := createProduct(t, store, "Milk", "Dairy", 150, 5)
	line, err := store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, store.RemoveCartLine(ctx, user.ID, line.ID))

	_, err = store.Checkout(ctx, user.ID, "")
	assert.True(t, errors.Is(err, models.ErrEmptyCart))
	assert.Equal(t, 5, stockOf(t, store, p.ID))
}

func TestCheckoutIdempotencyKeyIsUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "dan@example.com")
	p := createProduct(t, store, "Eggs", "Dairy", 300, 5)
	_, err := store.AddToCart(ctx, user.ID, p.ID, 2)
	require.NoError(t, err)

	first, err := store.Checkout(ctx, user.ID, "key-1")
	require.NoError(t, err)

	found, err := store.GetOrderByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := store.GetOrderByIdempotencyKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, user.ID, "key-1")
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, 3, stockOf(t, store, p.ID))
}

func TestOrderKeepsSnapshotPrice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "frank@example.com")
	p := createProduct(t, store, "Cheese", "Dairy", 450, 5)
	_, err := store.AddToCart(ctx, user.ID, p.ID, 2)
	require.NoError(t, err)
	order, err := store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)

	_, err = store.UpdateProduct(ctx, p.ID, func(p *models.Product) error {
		p.Price = 999
		p.Name = "Aged Cheese"
		return nil
	})
	require.NoError(t, err)

	stored, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(900), stored.Total)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, models.Money(450), stored.Lines[0].UnitPrice)
	assert.Equal(t, "Cheese", stored.Lines[0].ProductName)
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := createProduct(t, store, "Last Loaf", "Bakery", 400, 1)
	users := []*models.User{
		createCustomer(t, store, "u1@example.com"),
		createCustomer(t, store, "u2@example.com"),
		createCustomer(t, store, "u3@example.com"),
	}
	for _, u := range users {
		_, err := store.AddToCart(ctx, u.ID, p.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, errs[i] = store.Checkout(ctx, userID, "")
		}(i, u.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *models.InsufficientStockError
		assert.True(t, errors.As(err, &stockErr))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, stockOf(t, store, p.ID))
}

func TestAddToCart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "gina@example.com")
	p := createProduct(t, store, "Rice", "Pantry", 120, 5)

	first, err := store.AddToCart(ctx, user.ID, p.ID, 2)
	require.NoError(t, err)
	second, err := store.AddToCart(ctx, user.ID, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	_, err = store.AddToCart(ctx, user.ID, p.ID, 1)
	var oos *models.OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, 6, oos.Requested)
	assert.Equal(t, 5, oos.Available)

	view, err := store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Quantity)
	assert.Equal(t, models.Money(600), view.Total)

	_, err = store.AddToCart(ctx, user.ID, 9999, 1)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSetCartLineQuantity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "hank@example.com")
	p := createProduct(t, store, "Pasta", "Pantry", 250, 4)
	line, err := store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)

	require.NoError(t, store.SetCartLineQuantity(ctx, user.ID, line.ID, 4))

	err = store.SetCartLineQuantity(ctx, user.ID, line.ID, 5)
	var oos *models.OutOfStockError
	require.True(t, errors.As(err, &oos))

	view, err := store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Lines[0].Quantity)

	require.NoError(t, store.SetCartLineQuantity(ctx, user.ID, line.ID, 0))
	view, err = store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)

	// removing twice is fine
	assert.NoError(t, store.RemoveCartLine(ctx, user.ID, line.ID))

	other := createCustomer(t, store, "ivy@example.com")
	line, err = store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	err = store.SetCartLineQuantity(ctx, other.ID, line.ID, 2)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCartViewWithoutCart(t *testing.T) {
	store := newTestStore(t)
	user := createCustomer(t, store, "jill@example.com")

	view, err := store.GetCartView(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)
	assert.Zero(t, view.CartID)
	assert.Empty(t, view.Lines)
}

func TestAtMostOneActiveCart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "kim@example.com")
	p := createProduct(t, store, "Tea", "Drinks", 300, 10)

	_, err := store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)

	var active int
	require.NoError(t, store.GetDB().Get(&active, `SELECT COUNT(*) FROM carts WHERE user_id = ? AND status = ?`, user.ID, models.CartStatusActive))
	assert.Equal(t, 1, active)

	_, err = store.GetDB().Exec(`INSERT INTO carts (user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		user.ID, models.CartStatusActive, time.Now().UTC(), time.Now().UTC())
	assert.True(t, isUniqueViolation(err))
}

func TestReconcileCart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "leo@example.com")
	a := createProduct(t, store, "Juice", "Drinks", 350, 5)
	b := createProduct(t, store, "Soda", "Drinks", 150, 2)
	_, err := store.AddToCart(ctx, user.ID, a.ID, 4)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, b.ID, 2)
	require.NoError(t, err)

	setStock(t, store, a.ID, 3)
	setStock(t, store, b.ID, 0)

	changed, err := store.ReconcileCart(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	view, err := store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, a.ID, view.Lines[0].ProductID)
	assert.Equal(t, 3, view.Lines[0].Quantity)
}

func TestAbandonIdleCarts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	store.SetClock(func() time.Time { return past })

	user := createCustomer(t, store, "mia@example.com")
	p := createProduct(t, store, "Coffee", "Drinks", 800, 5)
	_, err := store.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)

	store.SetClock(time.Now)
	n, err := store.AbandonIdleCarts(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	view, err := store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)
}

func TestUpdateProductKeepsConcurrentStockChange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "nina@example.com")
	p := createProduct(t, store, "Apples", "Produce", 200, 10)
	_, err := store.AddToCart(ctx, user.ID, p.ID, 3)
	require.NoError(t, err)

	stale, err := store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 10, stale.Stock)

	_, err = store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)

	updated, err := store.UpdateProduct(ctx, p.ID, func(p *models.Product) error {
		p.Price = 250
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.Money(250), updated.Price)
	assert.Equal(t, 7, updated.Stock)
	assert.Equal(t, 7, stockOf(t, store, p.ID))
}

func TestUpdateProductKeepsRowOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := createProduct(t, store, "Milk", "Dairy", 120, 4)
	_, err := store.UpdateProduct(ctx, p.ID, func(p *models.Product) error {
		p.Price = 1
		return models.Validationf("rejected")
	})
	assert.True(t, errors.Is(err, models.ErrValidation))
	stored, err := store.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(120), stored.Price)

	_, err = store.UpdateProduct(ctx, 9999, func(*models.Product) error { return nil })
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeleteProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "ned@example.com")
	sold := createProduct(t, store, "Butter", "Dairy", 300, 5)
	unsold := createProduct(t, store, "Jam", "Pantry", 400, 5)

	_, err := store.AddToCart(ctx, user.ID, sold.ID, 1)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, sold.ID, 1)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, unsold.ID, 1)
	require.NoError(t, err)

	archived, err := store.DeleteProduct(ctx, sold.ID)
	require.NoError(t, err)
	assert.True(t, archived)

	p, err := store.GetProductByID(ctx, sold.ID)
	require.NoError(t, err)
	assert.True(t, p.Archived())

	archived, err = store.DeleteProduct(ctx, unsold.ID)
	require.NoError(t, err)
	assert.False(t, archived)
	_, err = store.GetProductByID(ctx, unsold.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	catalog, err := store.GetProducts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, catalog)

	view, err := store.GetCartView(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, view.Empty)

	orders, err := store.GetOrdersByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Butter", orders[0].Lines[0].ProductName)
}

func TestGetProductsSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createProduct(t, store, "Green Apples", "Produce", 200, 5)
	createProduct(t, store, "Apple Juice", "Drinks", 350, 5)
	createProduct(t, store, "Bread", "Bakery", 250, 5)

	found, err := store.GetProducts(ctx, "apple")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Drinks", found[0].Category)

	found, err = store.GetProducts(ctx, "BAKERY")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "Olga@Example.com")
	assert.Equal(t, "olga@example.com", user.Email)

	dup := &models.User{FirstName: "Other", LastName: "Person", Email: "olga@example.com", PasswordHash: "y", Role: models.RoleCustomer}
	err := store.CreateUser(ctx, dup)
	assert.True(t, errors.Is(err, models.ErrDuplicateEmail))

	stored, err := store.GetUserByEmail(ctx, "OLGA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Test", stored.FirstName)
	assert.Equal(t, "x", stored.PasswordHash)

	require.NoError(t, store.UpdatePassword(ctx, "olga@example.com", "z"))
	err = store.UpdatePassword(ctx, "nobody@example.com", "z")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeleteUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	buyer := createCustomer(t, store, "pat@example.com")
	browser := createCustomer(t, store, "quinn@example.com")
	p := createProduct(t, store, "Salt", "Pantry", 100, 5)

	_, err := store.AddToCart(ctx, buyer.ID, p.ID, 1)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, buyer.ID, "")
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, browser.ID, p.ID, 1)
	require.NoError(t, err)

	err = store.DeleteUser(ctx, buyer.ID)
	assert.True(t, errors.Is(err, models.ErrConflict))

	require.NoError(t, store.DeleteUser(ctx, browser.ID))
	_, err = store.GetUserByID(ctx, browser.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = store.DeleteUser(ctx, browser.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestReports(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createCustomer(t, store, "rita@example.com")
	a := createProduct(t, store, "Apples", "Produce", 200, 20)
	b := createProduct(t, store, "Bread", "Bakery", 500, 20)
	createProduct(t, store, "Saffron", "Spices", 1500, 2)

	_, err := store.AddToCart(ctx, user.ID, a.ID, 3)
	require.NoError(t, err)
	_, err = store.AddToCart(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)

	_, err = store.AddToCart(ctx, user.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = store.Checkout(ctx, user.ID, "")
	require.NoError(t, err)

	since := time.Now().Add(-90 * 24 * time.Hour)

	sales, err := store.SalesByMonth(ctx, since)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, time.Now().UTC().Format("2006-01"), sales[0].Month)
	assert.Equal(t, 2, sales[0].OrderCount)
	assert.Equal(t, models.Money(1500), sales[0].Revenue)

	top, err := store.TopProducts(ctx, since, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, a.ID, top[0].ProductID)
	assert.Equal(t, 5, top[0].TotalQuantity)
	assert.Equal(t, models.Money(1000), top[0].TotalRevenue)

	categories, err := store.RevenueByCategory(ctx, since)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Produce", categories[0].Category)
	assert.Equal(t, models.Money(1000), categories[0].Revenue)

	summary, err := store.RevenueSummary(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalOrders)
	assert.Equal(t, models.Money(1500), summary.TotalRevenue)
	assert.Equal(t, models.Money(750), summary.AverageOrder)
	assert.Equal(t, models.Money(1100), summary.HighestOrder)
	assert.Equal(t, models.Money(400), summary.LowestOrder)

	low, err := store.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Saffron", low[0].Name)

	stats, err := store.GetDashboardStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Customers)
	assert.Equal(t, 3, stats.Products)
	assert.Equal(t, 1, stats.LowStock)
	assert.Equal(t, 2, stats.Orders)
	assert.Equal(t, models.Money(1500), stats.TotalRevenue)

	future, err := store.RevenueSummary(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, future.TotalOrders)
	assert.Zero(t, future.AverageOrder)

	require.NoError(t, store.LogReport(ctx, user.ID, models.ReportSales))
	entries, err := store.GetReportLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReportSales, entries[0].Report)
}
