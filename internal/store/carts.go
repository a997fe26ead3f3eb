package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supermarket/internal/models"

	"github.com/jmoiron/sqlx"
)

const cartColumns = `id, user_id, status, created_at, updated_at`

// GetActiveCart retrieves the user's active cart, or ErrNotFound
func (s *Store) GetActiveCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return activeCart(ctx, s.db, userID, "")
}

func activeCart(ctx context.Context, q sqlx.ExtContext, userID int64, lock string) (*models.Cart, error) {
	var cart models.Cart
	err := get(ctx, q, &cart, `SELECT `+cartColumns+` FROM carts WHERE user_id = ? AND status = ?`+lock,
		userID, models.CartStatusActive)
	if err != nil {
		return nil, fmt.Errorf("active cart for user %d: %w", userID, err)
	}
	return &cart, nil
}

// activeCartForUpdate returns the user's active cart, creating it when absent.
// The partial unique index on carts guarantees a single active cart per user.
func (s *Store) activeCartForUpdate(ctx context.Context, tx *sqlx.Tx, userID int64) (*models.Cart, error) {
	cart, err := activeCart(ctx, tx, userID, s.forUpdate())
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	cart = &models.Cart{UserID: userID, Status: models.CartStatusActive, CreatedAt: now, UpdatedAt: now}
	err = tx.GetContext(ctx, &cart.ID, tx.Rebind(`
		INSERT INTO carts (user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		RETURNING id`), cart.UserID, cart.Status, cart.CreatedAt, cart.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: active cart for user %d created concurrently", models.ErrConflict, userID)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return cart, nil
}

func (s *Store) touchCart(ctx context.Context, q sqlx.ExtContext, cartID int64) error {
	_, err := exec(ctx, q, `UPDATE carts SET updated_at = ? WHERE id = ?`, s.now(), cartID)
	return err
}

// AddToCart adds qty units of a product to the user's active cart, creating the cart
// on first use and summing with an existing line for the same product.
func (s *Store) AddToCart(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	var line models.CartLine
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		product, err := getProduct(ctx, tx, productID, "")
		if err != nil {
			return err
		}
		if product.Archived() {
			return fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
		}

		cart, err := s.activeCartForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		err = get(ctx, tx, &line, `SELECT id, cart_id, product_id, quantity, added_at FROM cart_lines
			WHERE cart_id = ? AND product_id = ?`, cart.ID, productID)
		switch {
		case err == nil:
			newQty := line.Quantity + qty
			if newQty > product.Stock {
				return &models.OutOfStockError{ProductID: productID, Requested: newQty, Available: product.Stock}
			}
			if _, err := exec(ctx, tx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, newQty, line.ID); err != nil {
				return err
			}
			line.Quantity = newQty
		case errors.Is(err, models.ErrNotFound):
			if qty > product.Stock {
				return &models.OutOfStockError{ProductID: productID, Requested: qty, Available: product.Stock}
			}
			line = models.CartLine{CartID: cart.ID, ProductID: productID, Quantity: qty, AddedAt: s.now()}
			if err := get(ctx, tx, &line.ID, `
				INSERT INTO cart_lines (cart_id, product_id, quantity, added_at) VALUES (?, ?, ?, ?)
				RETURNING id`, line.CartID, line.ProductID, line.Quantity, line.AddedAt); err != nil {
				return err
			}
		default:
			return err
		}

		return s.touchCart(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// cartLineOwned loads a line of the user's active cart
func cartLineOwned(ctx context.Context, q sqlx.ExtContext, userID, lineID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := get(ctx, q, &line, `
		SELECT cl.id, cl.cart_id, cl.product_id, cl.quantity, cl.added_at
		FROM cart_lines cl
		JOIN carts c ON c.id = cl.cart_id
		WHERE cl.id = ? AND c.user_id = ? AND c.status = ?`, lineID, userID, models.CartStatusActive)
	if err != nil {
		return nil, fmt.Errorf("cart line %d: %w", lineID, err)
	}
	return &line, nil
}

// SetCartLineQuantity sets a line's quantity. qty <= 0 removes the line; a quantity
// above current stock fails with OutOfStockError and leaves the line unchanged.
func (s *Store) SetCartLineQuantity(ctx context.Context, userID, lineID int64, qty int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		line, err := cartLineOwned(ctx, tx, userID, lineID)
		if err != nil {
			return err
		}

		if qty <= 0 {
			if _, err := exec(ctx, tx, `DELETE FROM cart_lines WHERE id = ?`, line.ID); err != nil {
				return err
			}
			return s.touchCart(ctx, tx, line.CartID)
		}

		product, err := getProduct(ctx, tx, line.ProductID, "")
		if err != nil {
			return err
		}
		available := product.Stock
		if product.Archived() {
			available = 0
		}
		if qty > available {
			return &models.OutOfStockError{ProductID: product.ID, Requested: qty, Available: available}
		}

		if _, err := exec(ctx, tx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, qty, line.ID); err != nil {
			return err
		}
		return s.touchCart(ctx, tx, line.CartID)
	})
}

// RemoveCartLine deletes a line from the user's active cart. Removing a line that
// is already gone is not an error.
func (s *Store) RemoveCartLine(ctx context.Context, userID, lineID int64) error {
	_, err := exec(ctx, s.db, `
		DELETE FROM cart_lines WHERE id = ?
		AND cart_id IN (SELECT id FROM carts WHERE user_id = ? AND status = ?)`,
		lineID, userID, models.CartStatusActive)
	return err
}

func cartLineViews(ctx context.Context, q sqlx.ExtContext, cartID int64) ([]models.CartLineView, error) {
	lines := []models.CartLineView{}
	err := sel(ctx, q, &lines, `
		SELECT cl.id, cl.product_id, p.name AS product_name, p.category, p.price AS unit_price,
			p.stock, p.archived_at IS NOT NULL AS archived, cl.quantity
		FROM cart_lines cl
		JOIN products p ON p.id = cl.product_id
		WHERE cl.cart_id = ?
		ORDER BY cl.id`, cartID)
	return lines, err
}

// GetCartView returns the active cart joined with live product data.
// A user without an active cart gets an empty view.
func (s *Store) GetCartView(ctx context.Context, userID int64) (*models.CartView, error) {
	cart, err := s.GetActiveCart(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.CartView{Empty: true, Lines: []models.CartLineView{}}, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := cartLineViews(ctx, s.db, cart.ID)
	if err != nil {
		return nil, err
	}
	return buildCartView(cart.ID, lines), nil
}

func buildCartView(cartID int64, lines []models.CartLineView) *models.CartView {
	view := &models.CartView{CartID: cartID, Lines: lines, Empty: len(lines) == 0}
	for i := range view.Lines {
		view.Lines[i].Subtotal = view.Lines[i].UnitPrice.Times(view.Lines[i].Quantity)
		view.Total += view.Lines[i].Subtotal
	}
	return view
}

// ReconcileCart clamps every line of the active cart to current stock, dropping
// lines whose product is archived or sold out. It returns the number of lines changed.
func (s *Store) ReconcileCart(ctx context.Context, userID int64) (int, error) {
	changed := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cart, err := activeCart(ctx, tx, userID, s.forUpdate())
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		lines, err := cartLineViews(ctx, tx, cart.ID)
		if err != nil {
			return err
		}

		for _, l := range lines {
			switch {
			case l.Archived || l.Stock <= 0:
				if _, err := exec(ctx, tx, `DELETE FROM cart_lines WHERE id = ?`, l.ID); err != nil {
					return err
				}
				changed++
			case l.Quantity > l.Stock:
				if _, err := exec(ctx, tx, `UPDATE cart_lines SET quantity = ? WHERE id = ?`, l.Stock, l.ID); err != nil {
					return err
				}
				changed++
			}
		}

		if changed > 0 {
			return s.touchCart(ctx, tx, cart.ID)
		}
		return nil
	})
	return changed, err
}

// AbandonIdleCarts marks active carts untouched since before as abandoned
func (s *Store) AbandonIdleCarts(ctx context.Context, before time.Time) (int64, error) {
	return exec(ctx, s.db, `UPDATE carts SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		models.CartStatusAbandoned, s.now(), models.CartStatusActive, before.UTC())
}
