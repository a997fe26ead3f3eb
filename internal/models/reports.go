package models

import "time"

// Report kinds recorded in the report log
const (
	ReportDashboard  = "dashboard"
	ReportSales      = "sales"
	ReportTopProduct = "top_products"
	ReportCategories = "categories"
	ReportRevenue    = "revenue"
	ReportLowStock   = "low_stock"
)

// ReportWindow is the trailing period a report aggregates over
type ReportWindow struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// MonthlySales is one row of the sales-over-time report
type MonthlySales struct {
	Month      string `db:"month" json:"month" csv:"month"`
	OrderCount int    `db:"order_count" json:"order_count" csv:"order_count"`
	Revenue    Money  `db:"revenue" json:"revenue" csv:"revenue"`
}

// ProductSales is one row of the top products report
type ProductSales struct {
	ProductID     int64  `db:"product_id" json:"product_id" csv:"product_id"`
	Name          string `db:"name" json:"name" csv:"name"`
	TotalQuantity int    `db:"total_quantity" json:"total_quantity" csv:"total_quantity"`
	TotalRevenue  Money  `db:"total_revenue" json:"total_revenue" csv:"total_revenue"`
}

// CategoryRevenue is one row of the revenue by category report
type CategoryRevenue struct {
	Category string `db:"category" json:"category" csv:"category"`
	Revenue  Money  `db:"revenue" json:"revenue" csv:"revenue"`
}

// RevenueSummary aggregates order totals over the window
type RevenueSummary struct {
	TotalOrders  int   `db:"total_orders" json:"total_orders" csv:"total_orders"`
	TotalRevenue Money `db:"total_revenue" json:"total_revenue" csv:"total_revenue"`
	AverageOrder Money `db:"-" json:"average_order" csv:"average_order"`
	HighestOrder Money `db:"highest_order" json:"highest_order" csv:"highest_order"`
	LowestOrder  Money `db:"lowest_order" json:"lowest_order" csv:"lowest_order"`
}

// LowStockItem is one row of the low stock report
type LowStockItem struct {
	ProductID int64  `db:"id" json:"product_id" csv:"product_id"`
	Name      string `db:"name" json:"name" csv:"name"`
	Category  string `db:"category" json:"category" csv:"category"`
	Stock     int    `db:"stock" json:"stock" csv:"stock"`
	Price     Money  `db:"price" json:"price" csv:"price"`
}

// DashboardStats backs the admin dashboard tiles
type DashboardStats struct {
	Customers    int   `db:"customers" json:"customers" csv:"customers"`
	Products     int   `db:"products" json:"products" csv:"products"`
	LowStock     int   `db:"low_stock" json:"low_stock" csv:"low_stock"`
	Orders       int   `db:"orders" json:"orders" csv:"orders"`
	TotalRevenue Money `db:"total_revenue" json:"total_revenue" csv:"total_revenue"`
}

// ReportLogEntry records that an admin generated a report
type ReportLogEntry struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Report      string    `db:"report" json:"report"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
}
