package service

import (
	"context"
	"fmt"
	"strings"

	"supermarket/internal/broker"
	"supermarket/internal/models"
	"supermarket/internal/store"
	"supermarket/internal/util"

	"go.uber.org/zap"
)

// EventPublisher publishes domain events; broker.EventPublisher satisfies it
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
}

// InventoryService manages the product catalog
type InventoryService struct {
	store             *store.Store
	eventPublisher    EventPublisher
	lowStockThreshold int
	logger            *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store *store.Store, eventPublisher EventPublisher, lowStockThreshold int) *InventoryService {
	return &InventoryService{
		store:             store,
		eventPublisher:    eventPublisher,
		lowStockThreshold: lowStockThreshold,
		logger:            util.GetLogger(),
	}
}

// ProductInput is a full product definition
type ProductInput struct {
	Name     string       `json:"name" binding:"required"`
	Category string       `json:"category" binding:"required"`
	Price    models.Money `json:"price"`
	Stock    int          `json:"stock"`
}

// ProductPatch carries the fields to change; nil fields are left as they are
type ProductPatch struct {
	Name     *string       `json:"name,omitempty"`
	Category *string       `json:"category,omitempty"`
	Price    *models.Money `json:"price,omitempty"`
	Stock    *int          `json:"stock,omitempty"`
}

func validateProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Name == "" {
		return models.Validationf("product name is required")
	}
	if p.Category == "" {
		return models.Validationf("product category is required")
	}
	if p.Price <= 0 {
		return models.Validationf("price must be greater than zero")
	}
	if p.Stock < 0 {
		return models.Validationf("stock cannot be negative")
	}
	return nil
}

// CreateProduct adds a product to the catalog
func (s *InventoryService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CreateProduct")
	defer span.End()

	product := &models.Product{Name: in.Name, Category: in.Category, Price: in.Price, Stock: in.Stock}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	s.alertIfLow(ctx, product)
	return product, nil
}

// UpdateProduct applies a partial update to a live product
func (s *InventoryService) UpdateProduct(ctx context.Context, id int64, patch *ProductPatch) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.UpdateProduct")
	defer span.End()

	product, err := s.store.UpdateProduct(ctx, id, func(p *models.Product) error {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		return validateProduct(p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", product.ID), zap.Int("stock", product.Stock))
	if patch.Stock != nil {
		s.alertIfLow(ctx, product)
	}
	return product, nil
}

// DeleteProduct removes a product, archiving it when it appears in order history.
// It reports whether the product was archived.
func (s *InventoryService) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.DeleteProduct")
	defer span.End()

	archived, err := s.store.DeleteProduct(ctx, id)
	if err != nil {
		return false, err
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id), zap.Bool("archived", archived))
	return archived, nil
}

// ListProducts returns the live catalog, optionally filtered by a search term
func (s *InventoryService) ListProducts(ctx context.Context, search string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListProducts")
	defer span.End()

	return s.store.GetProducts(ctx, search)
}

// GetProduct returns a live product. Archived products are reported as not found.
func (s *InventoryService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Archived() {
		return nil, fmt.Errorf("product %d is archived: %w", id, models.ErrNotFound)
	}
	return product, nil
}

// CheckStockLevels publishes a low stock alert for every given product under the
// threshold and returns how many alerts were raised.
func (s *InventoryService) CheckStockLevels(ctx context.Context, productIDs []int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CheckStockLevels")
	defer span.End()

	alerts := 0
	for _, id := range productIDs {
		product, err := s.store.GetProductByID(ctx, id)
		if err != nil {
			return alerts, err
		}
		if s.alertIfLow(ctx, product) {
			alerts++
		}
	}
	return alerts, nil
}

func (s *InventoryService) alertIfLow(ctx context.Context, product *models.Product) bool {
	if product.Archived() || product.Stock >= s.lowStockThreshold {
		return false
	}

	event := &models.StockLowEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeStockLow),
		ProductID: product.ID,
		Name:      product.Name,
		Stock:     product.Stock,
		Threshold: s.lowStockThreshold,
	}
	if err := s.eventPublisher.PublishStockLow(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockLow event",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
	return true
}
