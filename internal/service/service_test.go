package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"supermarket/internal/models"
	"supermarket/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu          sync.Mutex
	orderPlaced []*models.OrderPlacedEvent
	stockLow    []*models.StockLowEvent
	err         error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderPlaced = append(p.orderPlaced, event)
	return p.err
}

func (p *recordingPublisher) PublishStockLow(_ context.Context, event *models.StockLowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stockLow = append(p.stockLow, event)
	return p.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.NewStore(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Migrate(context.Background(), zap.NewNop()))
	return st
}

func newTestAccounts(st *store.Store, sessions SessionRevoker) *AccountService {
	svc := NewAccountService(st, sessions)
	svc.cost = bcrypt.MinCost
	return svc
}

func registerCustomer(t *testing.T, st *store.Store, email string) *models.User {
	t.Helper()
	user, err := newTestAccounts(st, nil).Register(context.Background(), "Test", "Customer", email, "Password123!")
	require.NoError(t, err)
	return user
}

func addProduct(t *testing.T, st *store.Store, name, category string, price models.Money, stock int) *models.Product {
	t.Helper()
	p, err := NewInventoryService(st, &recordingPublisher{}, 0).CreateProduct(context.Background(),
		&ProductInput{Name: name, Category: category, Price: price, Stock: stock})
	require.NoError(t, err)
	return p
}
