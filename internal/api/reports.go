package api

import (
	"fmt"
	"net/http"
	"time"

	"supermarket/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

// respondReport renders rows as JSON, or as a CSV attachment when format=csv.
// rows must be a slice for CSV output.
func (h *Handler) respondReport(c *gin.Context, name string, rows interface{}) {
	if c.Query("format") != "csv" {
		c.JSON(http.StatusOK, gin.H{
			"report": name,
			"window": h.reports.Window(),
			"rows":   rows,
		})
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", name, time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := gocsv.Marshal(rows, c.Writer); err != nil {
		h.logger.Error("Failed to write CSV report", zap.String("report", name), zap.Error(err))
	}
}

func (h *Handler) dashboardReport(c *gin.Context) {
	stats, err := h.reports.Dashboard(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("format") == "csv" {
		h.respondReport(c, "dashboard", []*models.DashboardStats{stats})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) salesReport(c *gin.Context) {
	rows, err := h.reports.SalesByMonth(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondReport(c, "sales", rows)
}

func (h *Handler) topProductsReport(c *gin.Context) {
	n, ok := queryInt(c, "n", 0)
	if !ok {
		return
	}

	rows, err := h.reports.TopProducts(c.Request.Context(), currentSession(c).UserID, n)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondReport(c, "top_products", rows)
}

func (h *Handler) categoriesReport(c *gin.Context) {
	rows, err := h.reports.RevenueByCategory(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondReport(c, "categories", rows)
}

func (h *Handler) revenueReport(c *gin.Context) {
	summary, err := h.reports.RevenueSummary(c.Request.Context(), currentSession(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("format") == "csv" {
		h.respondReport(c, "revenue", []*models.RevenueSummary{summary})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":  "revenue",
		"window":  h.reports.Window(),
		"summary": summary,
	})
}

func (h *Handler) lowStockReport(c *gin.Context) {
	threshold, ok := queryInt(c, "threshold", 0)
	if !ok {
		return
	}

	rows, err := h.reports.LowStock(c.Request.Context(), currentSession(c).UserID, threshold)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondReport(c, "low_stock", rows)
}

func (h *Handler) reportLog(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}

	entries, err := h.reports.ReportLog(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
