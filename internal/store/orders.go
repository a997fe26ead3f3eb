package store

import (
	"context"
	"errors"
	"fmt"

	"supermarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, total, idempotency_key, created_at`
const orderLineColumns = `id, order_id, product_id, product_name, unit_price, quantity, subtotal`

// Checkout converts the user's active cart into an order in one transaction.
// Stock is re-read under row locks; if any line exceeds current stock the whole
// checkout is rolled back with InsufficientStockError. A non-empty idempotency key
// is recorded on the order; reusing one fails with ErrConflict.
func (s *Store) Checkout(ctx context.Context, userID int64, idempotencyKey string) (*models.Order, error) {
	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	var order *models.Order
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cart, err := activeCart(ctx, tx, userID, s.forUpdate())
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrEmptyCart
		}
		if err != nil {
			return err
		}

		var lines []models.CartLine
		if err := sel(ctx, tx, &lines, `SELECT id, cart_id, product_id, quantity, added_at FROM cart_lines
			WHERE cart_id = ? ORDER BY product_id`, cart.ID); err != nil {
			return err
		}
		if len(lines) == 0 {
			return models.ErrEmptyCart
		}

		products, err := s.lockProducts(ctx, tx, lines)
		if err != nil {
			return err
		}

		order = &models.Order{UserID: userID, IdempotencyKey: key, CreatedAt: s.now()}
		for _, l := range lines {
			p, ok := products[l.ProductID]
			if !ok || p.Archived() {
				return &models.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: 0}
			}
			if l.Quantity > p.Stock {
				return &models.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock}
			}
			subtotal := p.Price.Times(l.Quantity)
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID:   p.ID,
				ProductName: p.Name,
				UnitPrice:   p.Price,
				Quantity:    l.Quantity,
				Subtotal:    subtotal,
			})
			order.Total += subtotal
		}

		err = tx.GetContext(ctx, &order.ID, tx.Rebind(`
			INSERT INTO orders (user_id, total, idempotency_key, created_at) VALUES (?, ?, ?, ?)
			RETURNING id`), order.UserID, order.Total, order.IdempotencyKey, order.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key already used", models.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to create order: %w", mapErr(err))
		}

		for i := range order.Lines {
			ol := &order.Lines[i]
			ol.OrderID = order.ID
			if err := get(ctx, tx, &ol.ID, `
				INSERT INTO order_lines (order_id, product_id, product_name, unit_price, quantity, subtotal)
				VALUES (?, ?, ?, ?, ?, ?)
				RETURNING id`, ol.OrderID, ol.ProductID, ol.ProductName, ol.UnitPrice, ol.Quantity, ol.Subtotal); err != nil {
				return fmt.Errorf("failed to create order line: %w", err)
			}

			n, err := exec(ctx, tx, `UPDATE products SET stock = stock - ?, updated_at = ?
				WHERE id = ? AND stock >= ?`, ol.Quantity, order.CreatedAt, ol.ProductID, ol.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
			if n != 1 {
				return &models.InsufficientStockError{ProductID: ol.ProductID, Requested: ol.Quantity, Available: products[ol.ProductID].Stock}
			}
		}

		n, err := exec(ctx, tx, `UPDATE carts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			models.CartStatusCompleted, order.CreatedAt, cart.ID, models.CartStatusActive)
		if err != nil {
			return fmt.Errorf("failed to complete cart: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: cart %d is no longer active", models.ErrConflict, cart.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// lockProducts re-reads the products of the given lines in id order under row locks
func (s *Store) lockProducts(ctx context.Context, tx *sqlx.Tx, lines []models.CartLine) (map[int64]*models.Product, error) {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY id`+s.forUpdate(), ids)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := sel(ctx, tx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

// GetOrderByID retrieves an order with its lines
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := get(ctx, s.db, &order, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	if err := s.attachLines(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, or nil when none exists
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := get(ctx, s.db, &order, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = ?`, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves a user's orders with lines, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	if err := sel(ctx, s.db, &orders, `SELECT `+orderColumns+` FROM orders
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID); err != nil {
		return nil, err
	}
	return orders, s.attachLines(ctx, orderPtrs(orders))
}

// GetAllOrders retrieves a page of all orders, newest first
func (s *Store) GetAllOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	if err := sel(ctx, s.db, &orders, `SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return nil, err
	}
	return orders, s.attachLines(ctx, orderPtrs(orders))
}

// GetTotalOrdersCount counts all orders
func (s *Store) GetTotalOrdersCount(ctx context.Context) (int, error) {
	var n int
	err := get(ctx, s.db, &n, `SELECT COUNT(*) FROM orders`)
	return n, err
}

// OrderHasProduct reports whether one of the user's orders contains the product
func (s *Store) OrderHasProduct(ctx context.Context, userID, orderID, productID int64) (bool, error) {
	var n int
	err := get(ctx, s.db, &n, `
		SELECT COUNT(*) FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE o.id = ? AND o.user_id = ? AND ol.product_id = ?`, orderID, userID, productID)
	return n > 0, err
}

func orderPtrs(orders []models.Order) []*models.Order {
	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	return ptrs
}

func (s *Store) attachLines(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Lines = []models.OrderLine{}
	}

	query, args, err := sqlx.In(`SELECT `+orderLineColumns+` FROM order_lines WHERE order_id IN (?) ORDER BY order_id, id`, ids)
	if err != nil {
		return err
	}

	var lines []models.OrderLine
	if err := sel(ctx, s.db, &lines, query, args...); err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	for _, l := range lines {
		o := byID[l.OrderID]
		o.Lines = append(o.Lines, l)
	}
	return nil
}
