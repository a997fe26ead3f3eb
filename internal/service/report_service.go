package service

import (
	"context"
	"time"

	"supermarket/internal/models"
	"supermarket/internal/store"
	"supermarket/internal/util"

	"go.uber.org/zap"
)

// DefaultTopProducts is the size of the top products report when none is given
const DefaultTopProducts = 10

// ReportService produces the admin sales and stock reports
type ReportService struct {
	store             *store.Store
	window            time.Duration
	lowStockThreshold int
	now               func() time.Time
	logger            *zap.Logger
}

// NewReportService creates a new report service aggregating over the trailing window
func NewReportService(store *store.Store, window time.Duration, lowStockThreshold int) *ReportService {
	return &ReportService{
		store:             store,
		window:            window,
		lowStockThreshold: lowStockThreshold,
		now:               time.Now,
		logger:            util.GetLogger(),
	}
}

// Window returns the period the sales reports currently cover
func (s *ReportService) Window() models.ReportWindow {
	now := s.now().UTC()
	return models.ReportWindow{Since: now.Add(-s.window), Until: now}
}

// record notes that an admin generated a report. Failing to record never fails the report.
func (s *ReportService) record(ctx context.Context, adminID int64, report string) {
	util.ReportsGeneratedTotal.WithLabelValues(report).Inc()
	if err := s.store.LogReport(ctx, adminID, report); err != nil {
		s.logger.Warn("Failed to record report generation",
			zap.String("report", report),
			zap.Int64("user_id", adminID),
			zap.Error(err))
	}
}

// SalesByMonth returns order count and revenue per month over the window
func (s *ReportService) SalesByMonth(ctx context.Context, adminID int64) ([]models.MonthlySales, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.SalesByMonth")
	defer span.End()

	rows, err := s.store.SalesByMonth(ctx, s.Window().Since)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportSales)
	return rows, nil
}

// TopProducts returns the n best selling products over the window
func (s *ReportService) TopProducts(ctx context.Context, adminID int64, n int) ([]models.ProductSales, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.TopProducts")
	defer span.End()

	if n <= 0 {
		n = DefaultTopProducts
	}
	if n > 100 {
		n = 100
	}

	rows, err := s.store.TopProducts(ctx, s.Window().Since, n)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportTopProduct)
	return rows, nil
}

// RevenueByCategory returns revenue per category over the window
func (s *ReportService) RevenueByCategory(ctx context.Context, adminID int64) ([]models.CategoryRevenue, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.RevenueByCategory")
	defer span.End()

	rows, err := s.store.RevenueByCategory(ctx, s.Window().Since)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportCategories)
	return rows, nil
}

// RevenueSummary returns order count, revenue, and average, highest and lowest order over the window
func (s *ReportService) RevenueSummary(ctx context.Context, adminID int64) (*models.RevenueSummary, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.RevenueSummary")
	defer span.End()

	summary, err := s.store.RevenueSummary(ctx, s.Window().Since)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportRevenue)
	return summary, nil
}

// LowStock lists products under the threshold; zero or less uses the configured threshold
func (s *ReportService) LowStock(ctx context.Context, adminID int64, threshold int) ([]models.LowStockItem, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.LowStock")
	defer span.End()

	if threshold <= 0 {
		threshold = s.lowStockThreshold
	}

	rows, err := s.store.LowStock(ctx, threshold)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportLowStock)
	return rows, nil
}

// Dashboard returns the admin dashboard counters
func (s *ReportService) Dashboard(ctx context.Context, adminID int64) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Dashboard")
	defer span.End()

	stats, err := s.store.GetDashboardStats(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminID, models.ReportDashboard)
	return stats, nil
}

// ReportLog returns the most recent report generations
func (s *ReportService) ReportLog(ctx context.Context, limit int) ([]models.ReportLogEntry, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.ReportLog")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.GetReportLog(ctx, limit)
}
