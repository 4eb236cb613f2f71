package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dhecash.backend/internal/config"
	"dhecash.backend/internal/infrastructure/jobs"
	"dhecash.backend/internal/infrastructure/providers"
	"dhecash.backend/internal/infrastructure/queue"
	"dhecash.backend/internal/infrastructure/repositories"
	"dhecash.backend/internal/interfaces/http/handlers"
	"dhecash.backend/internal/interfaces/http/middleware"
	"dhecash.backend/internal/usecases"
	"dhecash.backend/pkg/jwt"
	"dhecash.backend/pkg/logger"
	"dhecash.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	}

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	// Repositories
	paymentRepo := repositories.NewPaymentRepository(db)
	txnRepo := repositories.NewTransactionRepository(db)
	customerRepo := repositories.NewCustomerRepository(db)
	merchantRepo := repositories.NewMerchantRepository(db)
	apiKeyRepo := repositories.NewApiKeyRepository(db)
	webhookConfigRepo := repositories.NewWebhookConfigRepository(db)
	webhookLogRepo := repositories.NewWebhookLogRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Provider adapters
	tokenCache := providers.NewTokenCache()
	registry := providers.NewRegistry(
		providers.NewMonCashAdapter(providers.MonCashConfig{
			ClientID:     cfg.MonCash.ClientID,
			ClientSecret: cfg.MonCash.ClientSecret,
			BaseURL:      cfg.MonCash.BaseURL,
			GatewayURL:   cfg.MonCash.GatewayURL,
		}, tokenCache),
		providers.NewNatCashAdapter(providers.NatCashConfig{
			ClientID:     cfg.NatCash.ClientID,
			ClientSecret: cfg.NatCash.ClientSecret,
			BaseURL:      cfg.NatCash.BaseURL,
		}, tokenCache),
		providers.NewStripeAdapter(providers.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
			GatewayURL:    cfg.Server.BaseURL,
		}),
	)

	// Queue and usecases
	q := queue.NewQueue(redis.GetClient())

	dispatchUsecase := usecases.NewDispatchUsecase(webhookConfigRepo, webhookLogRepo, q)
	paymentUsecase := usecases.NewPaymentUsecase(
		paymentRepo, txnRepo, customerRepo, merchantRepo,
		uow, registry, q, dispatchUsecase, cfg.Server.BaseURL,
	)
	callbackUsecase := usecases.NewCallbackUsecase(registry, paymentRepo, paymentUsecase)
	webhookUsecase := usecases.NewWebhookUsecase(webhookConfigRepo)
	merchantUsecase := usecases.NewMerchantUsecase(merchantRepo, apiKeyRepo, uow)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paymentExhausted := func(ctx context.Context, job *queue.Job, cause error) {
		var payload usecases.ProcessPaymentPayload
		if err := job.Bind(&payload); err != nil {
			logger.Error(ctx, "undecodable exhausted payment job", zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		paymentUsecase.MarkDispatchFailed(ctx, payload.PaymentID, fmt.Sprintf("provider dispatch failed after %d attempts: %v", job.Attempt, cause))
	}

	var workers []*queue.Worker
	for _, name := range []string{queue.QueuePaymentsMonCash, queue.QueuePaymentsNatCash, queue.QueuePaymentsStripe} {
		workers = append(workers, queue.NewWorker(q, queue.WorkerConfig{
			Queue:       name,
			Concurrency: cfg.Workers.PaymentConcurrency,
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
			DeadQueue:   queue.QueuePaymentsDead,
			OnExhausted: paymentExhausted,
		}, paymentUsecase.ProcessPaymentJob))
	}
	workers = append(workers, queue.NewWorker(q, queue.WorkerConfig{
		Queue:       queue.QueueWebhooks,
		Concurrency: cfg.Workers.WebhookConcurrency,
		MaxAttempts: 5,
		BackoffBase: 5 * time.Second,
		OnExhausted: dispatchUsecase.MarkExhausted,
	}, dispatchUsecase.DeliverWebhook))

	for _, w := range workers {
		w.Start(ctx)
	}

	expiryJob := jobs.NewPaymentExpiryJob(paymentRepo)
	go expiryJob.Start(ctx)

	// Handlers and router
	paymentHandler := handlers.NewPaymentHandler(paymentUsecase)
	callbackHandler := handlers.NewCallbackHandler(callbackUsecase)
	webhookHandler := handlers.NewWebhookHandler(webhookUsecase, dispatchUsecase, paymentUsecase)
	merchantHandler := handlers.NewMerchantHandler(merchantUsecase)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	registerHealthRoute(r)
	registerRoutes(r, routeDeps{
		paymentHandler:  paymentHandler,
		callbackHandler: callbackHandler,
		webhookHandler:  webhookHandler,
		merchantHandler: merchantHandler,
		authMiddleware:  middleware.Auth(jwtService, merchantUsecase),
	})

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down")
		expiryJob.Stop()
		for _, w := range workers {
			w.Stop()
		}
		cancel()
	}()

	logger.Info(context.Background(), "gateway starting", zap.String("port", cfg.Server.Port))
	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
