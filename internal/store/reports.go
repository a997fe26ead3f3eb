package store

import (
	"context"
	"time"

	"supermarket/internal/models"
)

// monthExpr buckets orders.created_at into YYYY-MM for the active dialect.
// SQLite timestamps are stored as UTC ISO text, so the prefix is the month.
func (s *Store) monthExpr() string {
	if s.driver == DriverPostgres {
		return `to_char(o.created_at AT TIME ZONE 'UTC', 'YYYY-MM')`
	}
	return `substr(o.created_at, 1, 7)`
}

// SalesByMonth returns order count and revenue per month since the given time
func (s *Store) SalesByMonth(ctx context.Context, since time.Time) ([]models.MonthlySales, error) {
	rows := []models.MonthlySales{}
	month := s.monthExpr()
	err := sel(ctx, s.db, &rows, `
		SELECT `+month+` AS month, COUNT(o.id) AS order_count, COALESCE(SUM(o.total), 0) AS revenue
		FROM orders o
		WHERE o.created_at >= ?
		GROUP BY `+month+`
		ORDER BY month`, since.UTC())
	return rows, err
}

// TopProducts returns the best selling products by quantity since the given time
func (s *Store) TopProducts(ctx context.Context, since time.Time, limit int) ([]models.ProductSales, error) {
	rows := []models.ProductSales{}
	err := sel(ctx, s.db, &rows, `
		SELECT p.id AS product_id, p.name, SUM(ol.quantity) AS total_quantity, SUM(ol.subtotal) AS total_revenue
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		JOIN orders o ON o.id = ol.order_id
		WHERE o.created_at >= ?
		GROUP BY p.id, p.name
		ORDER BY total_quantity DESC, p.id
		LIMIT ?`, since.UTC(), limit)
	return rows, err
}

// RevenueByCategory returns revenue per product category since the given time
func (s *Store) RevenueByCategory(ctx context.Context, since time.Time) ([]models.CategoryRevenue, error) {
	rows := []models.CategoryRevenue{}
	err := sel(ctx, s.db, &rows, `
		SELECT p.category, SUM(ol.subtotal) AS revenue
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		JOIN orders o ON o.id = ol.order_id
		WHERE o.created_at >= ?
		GROUP BY p.category
		ORDER BY revenue DESC, p.category`, since.UTC())
	return rows, err
}

// RevenueSummary aggregates order totals since the given time
func (s *Store) RevenueSummary(ctx context.Context, since time.Time) (*models.RevenueSummary, error) {
	var summary models.RevenueSummary
	err := get(ctx, s.db, &summary, `
		SELECT COUNT(id) AS total_orders,
			COALESCE(SUM(total), 0) AS total_revenue,
			COALESCE(MAX(total), 0) AS highest_order,
			COALESCE(MIN(total), 0) AS lowest_order
		FROM orders
		WHERE created_at >= ?`, since.UTC())
	if err != nil {
		return nil, err
	}
	if summary.TotalOrders > 0 {
		summary.AverageOrder = summary.TotalRevenue / models.Money(summary.TotalOrders)
	}
	return &summary, nil
}

// LowStock lists live products with stock under the threshold, lowest first
func (s *Store) LowStock(ctx context.Context, threshold int) ([]models.LowStockItem, error) {
	rows := []models.LowStockItem{}
	err := sel(ctx, s.db, &rows, `
		SELECT id, name, category, stock, price
		FROM products
		WHERE archived_at IS NULL AND stock < ?
		ORDER BY stock ASC, name`, threshold)
	return rows, err
}

// GetDashboardStats collects the admin dashboard counters
func (s *Store) GetDashboardStats(ctx context.Context, lowStockThreshold int) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	if err := get(ctx, s.db, &stats.Customers, `SELECT COUNT(*) FROM users WHERE role = ?`, models.RoleCustomer); err != nil {
		return nil, err
	}
	if err := get(ctx, s.db, &stats.Products, `SELECT COUNT(*) FROM products WHERE archived_at IS NULL`); err != nil {
		return nil, err
	}
	if err := get(ctx, s.db, &stats.LowStock, `SELECT COUNT(*) FROM products WHERE archived_at IS NULL AND stock < ?`, lowStockThreshold); err != nil {
		return nil, err
	}
	if err := get(ctx, s.db, &stats.Orders, `SELECT COUNT(*) FROM orders`); err != nil {
		return nil, err
	}
	if err := get(ctx, s.db, &stats.TotalRevenue, `SELECT COALESCE(SUM(total), 0) FROM orders`); err != nil {
		return nil, err
	}

	return stats, nil
}

// LogReport records that a user generated a report
func (s *Store) LogReport(ctx context.Context, userID int64, report string) error {
	_, err := exec(ctx, s.db, `INSERT INTO report_log (user_id, report, generated_at) VALUES (?, ?, ?)`,
		userID, report, s.now())
	return err
}

// GetReportLog lists the most recent report log entries
func (s *Store) GetReportLog(ctx context.Context, limit int) ([]models.ReportLogEntry, error) {
	entries := []models.ReportLogEntry{}
	err := sel(ctx, s.db, &entries, `SELECT id, user_id, report, generated_at FROM report_log
		ORDER BY generated_at DESC, id DESC LIMIT ?`, limit)
	return entries, err
}
