package store

import (
	"context"
	"fmt"
	"strings"

	"supermarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, category, price, stock, archived_at, created_at, updated_at`

// CreateProduct inserts a catalog entry
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	query := `
		INSERT INTO products (name, category, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	return get(ctx, s.db, &product.ID, query,
		product.Name, product.Category, product.Price, product.Stock, product.CreatedAt, product.UpdatedAt)
}

// GetProductByID retrieves a product by ID, archived or not
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(ctx, s.db, id, "")
}

func getProduct(ctx context.Context, q sqlx.ExtContext, id int64, lock string) (*models.Product, error) {
	var product models.Product
	if err := get(ctx, q, &product, `SELECT `+productColumns+` FROM products WHERE id = ?`+lock, id); err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	return &product, nil
}

// GetProducts lists the live catalog ordered by category and name.
// A non-empty search matches name or category case-insensitively.
func (s *Store) GetProducts(ctx context.Context, search string) ([]models.Product, error) {
	products := []models.Product{}
	search = strings.TrimSpace(search)
	if search == "" {
		err := sel(ctx, s.db, &products, `SELECT `+productColumns+` FROM products
			WHERE archived_at IS NULL
			ORDER BY category, name`)
		return products, err
	}

	pattern := "%" + strings.ToLower(search) + "%"
	err := sel(ctx, s.db, &products, `SELECT `+productColumns+` FROM products
		WHERE archived_at IS NULL AND (LOWER(name) LIKE ? OR LOWER(category) LIKE ?)
		ORDER BY category, name`, pattern, pattern)
	return products, err
}

// UpdateProduct applies fn to the current row of a live product and writes the
// result back. The row is read and written in one transaction, locked on postgres,
// so fields fn leaves alone keep any concurrent change such as a checkout's stock
// decrement.
func (s *Store) UpdateProduct(ctx context.Context, id int64, fn func(*models.Product) error) (*models.Product, error) {
	var product *models.Product
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		product, err = getProduct(ctx, tx, id, s.forUpdate())
		if err != nil {
			return err
		}
		if product.Archived() {
			return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
		}
		if err := fn(product); err != nil {
			return err
		}

		product.UpdatedAt = s.now()
		_, err = exec(ctx, tx, `
			UPDATE products SET name = ?, category = ?, price = ?, stock = ?, updated_at = ?
			WHERE id = ?`,
			product.Name, product.Category, product.Price, product.Stock, product.UpdatedAt, product.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes a product. Products that appear in order history are
// archived instead so historical order lines keep a valid reference.
// It reports whether the product was archived rather than deleted.
func (s *Store) DeleteProduct(ctx context.Context, id int64) (archived bool, err error) {
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		product, err := getProduct(ctx, tx, id, s.forUpdate())
		if err != nil {
			return err
		}
		if product.Archived() {
			archived = true
			return nil
		}

		var sold int
		if err := get(ctx, tx, &sold, `SELECT COUNT(*) FROM order_lines WHERE product_id = ?`, id); err != nil {
			return err
		}

		if sold > 0 {
			if _, err := exec(ctx, tx, `
				DELETE FROM cart_lines WHERE product_id = ?
				AND cart_id IN (SELECT id FROM carts WHERE status = ?)`, id, models.CartStatusActive); err != nil {
				return err
			}
			now := s.now()
			if _, err := exec(ctx, tx, `UPDATE products SET archived_at = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
				return err
			}
			archived = true
			return nil
		}

		if _, err := exec(ctx, tx, `DELETE FROM cart_lines WHERE product_id = ?`, id); err != nil {
			return err
		}
		_, err = exec(ctx, tx, `DELETE FROM products WHERE id = ?`, id)
		return err
	})
	return archived, err
}

// CountProducts counts live catalog entries
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := get(ctx, s.db, &n, `SELECT COUNT(*) FROM products WHERE archived_at IS NULL`)
	return n, err
}
