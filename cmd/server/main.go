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

	"marketplace-orders/config"
	"marketplace-orders/internal/api"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/broker"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/redisclient"
	"marketplace-orders/internal/service"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"
	"marketplace-orders/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace order service")

	if endpoint := cfg.Observ.JaegerEndpoint; endpoint != "" && endpoint != "-" {
		tp, err := util.InitTracer(util.ServiceName, endpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	ctx := context.Background()
	checks := map[string]api.Pinger{}

	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repo.Close()
	checks["store"] = repo

	var mirror service.StockMirror
	if cfg.Redis.Enabled() {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		mirror = redisClient
		checks["redis"] = redisClient
		log.Println("Redis connected")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	payments := service.NewPaymentService(service.NewSimulatedProvider(50 * time.Millisecond))
	ledger := service.NewInventoryLedger(repo, mirror)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var publisher service.EventPublisher
	var refundWorker *worker.RefundWorker
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		eventPublisher := broker.NewEventPublisher(producer)
		publisher = eventPublisher
		log.Println("Kafka producer initialized")

		compensation := service.NewCompensationHandler(repo, payments, eventPublisher)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		refundWorker = worker.NewRefundWorker(consumer, compensation)
		go func() {
			if err := refundWorker.Start(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Refund worker error: %v", err)
			}
		}()
	} else {
		compensation := service.NewCompensationHandler(repo, payments, broker.NopPublisher{})
		publisher = worker.NewLocalDispatcher(compensation)
		log.Println("Kafka disabled, refunds run in process")
	}

	orders := service.NewOrderService(repo, ledger, payments, publisher, service.OrderConfig{
		PaymentConfirmationRequired: cfg.Business.PaymentConfirmationRequired,
		IdempotencyWindow:           cfg.Business.IdempotencyWindow,
	})
	authService := service.NewAuthService(repo, tokens, hasher)

	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to create bootstrap administrator: %v", err)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Auth:    authService,
		Orders:  orders,
		Sellers: service.NewSellerOrderService(repo, orders, pendingStatuses(cfg.Business.SellerPendingStatuses, logger)),
		Ledger:  ledger,
		Users:   service.NewUserService(repo),
	}, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if refundWorker != nil {
		refundWorker.Stop()
	}

	log.Println("Server exited")
}

// openRepository returns the store selected by STORE_DRIVER.
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (store.Repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Println("Using in-memory store")
		return store.NewMemoryStore(), nil
	case config.DriverPostgres:
		db, err := store.NewStore(cfg.URL)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		log.Println("Database connected")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func pendingStatuses(names []string, logger *zap.Logger) []models.OrderStatus {
	var out []models.OrderStatus
	for _, name := range names {
		s, ok := models.ParseOrderStatus(name)
		if !ok {
			logger.Warn("Ignoring unknown pending status", zap.String("status", name))
			continue
		}
		out = append(out, s)
	}
	return out
}
