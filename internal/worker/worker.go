package worker

import (
	"context"

	"supermarket/internal/broker"
	"supermarket/internal/models"
	"supermarket/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StockChecker re-checks stock levels of products; service.InventoryService satisfies it
type StockChecker interface {
	CheckStockLevels(ctx context.Context, productIDs []int64) (int, error)
}

// MessageSource feeds the worker; broker.Consumer satisfies it
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockAlertWorker turns placed orders into stock level checks and reports low stock alerts
type StockAlertWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	stock        StockChecker
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer MessageSource, stock StockChecker) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		stock:        stock,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler.OnStockLow(w.handleStockLow)
	return w
}

// Start consumes events until ctx is cancelled
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

// HandleMessage routes one raw message
func (w *StockAlertWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

func (w *StockAlertWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ids := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		ids = append(ids, item.ProductID)
	}

	alerts, err := w.stock.CheckStockLevels(ctx, ids)
	if err != nil {
		return err
	}

	w.logger.Debug("Checked stock after order",
		zap.Int64("order_id", event.OrderID),
		zap.Int("alerts", alerts))
	return nil
}

func (w *StockAlertWorker) handleStockLow(_ context.Context, event *models.StockLowEvent) error {
	util.LowStockAlertsTotal.Inc()
	w.logger.Warn("Low stock",
		zap.Int64("product_id", event.ProductID),
		zap.String("name", event.Name),
		zap.Int("stock", event.Stock),
		zap.Int("threshold", event.Threshold))
	return nil
}
