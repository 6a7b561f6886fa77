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

	"shop-service/config"
	"shop-service/internal/api"
	"shop-service/internal/broker"
	"shop-service/internal/payment"
	"shop-service/internal/redisclient"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"
	"shop-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "shop-service"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer("shop-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	var (
		cache  service.ProductCache
		locker service.CheckoutLocker
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, running without product cache and checkout locks", zap.Error(err))
	} else {
		defer redisClient.Close()
		cache = redisclient.NewProductCache(redisClient, time.Duration(cfg.Business.ProductCacheTTLSeconds)*time.Second)
		locker = redisclient.NewLocker(redisClient)
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	var gateway payment.Gateway
	if cfg.Payment.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.Currency, payment.Card{
			Number:   cfg.Payment.CardNumber,
			ExpMonth: cfg.Payment.CardExpMonth,
			ExpYear:  cfg.Payment.CardExpYear,
			CVC:      cfg.Payment.CardCVC,
		})
		logger.Info("Using Stripe payment gateway", zap.String("currency", cfg.Payment.Currency))
	} else {
		gateway = payment.NewSimulatedGateway(cfg.Payment.SimulatedSuccessRate, time.Now().UnixNano())
		logger.Warn("STRIPE_SECRET_KEY not set, using simulated payment gateway",
			zap.Float64("success_rate", cfg.Payment.SimulatedSuccessRate))
	}

	catalogService := service.NewCatalogService(db, cache)
	cartService := service.NewCartService(db)
	userService := service.NewUserService(db)
	orderService := service.NewOrderService(db, gateway, locker,
		time.Duration(cfg.Business.CheckoutLockSeconds)*time.Second)
	orderService.AddHook(eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, db, worker.NewLogNotifier())
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		catalogService,
		cartService,
		orderService,
		userService,
		api.NewBasicAuthenticator(userService),
		cfg.Business.DefaultPageSize,
	)
	handler.AddReadinessCheck("database", db)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", redisClient)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Error stopping notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
