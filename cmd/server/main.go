package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supermarket/config"
	"supermarket/internal/api"
	"supermarket/internal/broker"
	"supermarket/internal/redisclient"
	"supermarket/internal/service"
	"supermarket/internal/store"
	"supermarket/internal/util"
	"supermarket/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting supermarket service", zap.String("env", cfg.Server.Env))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(context.Background(), logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	var (
		sessions api.SessionStore
		revoker  service.SessionRevoker
		locker   service.Locker
		redisCli *redisclient.Client
	)
	if cfg.Redis.Addr != "" {
		redisCli, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SessionTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCli.Close()
		sessions, revoker, locker = redisCli, redisCli, redisCli
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		memory := api.NewMemorySessionStore(cfg.Redis.SessionTTL)
		sessions, revoker = memory, memory
		logger.Info("Using in-memory sessions")
	}

	var producer *broker.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	eventPublisher := broker.NewEventPublisher(producer)

	accountService := service.NewAccountService(db, revoker)
	inventoryService := service.NewInventoryService(db, eventPublisher, cfg.Business.LowStockThreshold)
	cartService := service.NewCartService(db)
	orderService := service.NewOrderService(db, eventPublisher)
	reportService := service.NewReportService(db, cfg.Business.ReportWindow, cfg.Business.LowStockThreshold)

	sweeper, err := service.NewCartSweeper(db, cfg.Business.CartIdleTTL, cfg.Business.CartSweepSpec, locker)
	if err != nil {
		logger.Fatal("Failed to create cart sweeper", zap.Error(err))
	}
	sweeper.Start()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var stockWorker *worker.StockAlertWorker
	if producer != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		stockWorker = worker.NewStockAlertWorker(consumer, inventoryService)
		go func() {
			if err := stockWorker.Start(workerCtx); err != nil {
				logger.Error("Stock alert worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(accountService, inventoryService, cartService, orderService, reportService, sessions)
	handler.AddReadinessCheck("database", db)
	if redisCli != nil {
		handler.AddReadinessCheck("redis", redisCli)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()
	workerCancel()
	if stockWorker != nil {
		stockWorker.Stop()
	}

	logger.Info("Server exited")
}
