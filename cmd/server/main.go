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
	_ "time/tzdata"

	"bip-service/config"
	"bip-service/internal/api"
	"bip-service/internal/broker"
	"bip-service/internal/redisclient"
	"bip-service/internal/service"
	"bip-service/internal/storage"
	"bip-service/internal/store"
	"bip-service/internal/util"
	"bip-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting bip service")

	loc, err := cfg.Business.Location()
	if err != nil {
		logger.Fatal("Invalid business time zone", zap.String("tz", cfg.Business.Timezone), zap.Error(err))
	}

	tp, err := util.InitTracer("bip-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
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
	logger.Info("Database connected")

	if cfg.Database.RunMigrations {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBipEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBipEvents))

	eventPublisher := broker.NewEventPublisher(producer)

	var objects service.ObjectStorage
	gcs, err := storage.NewGCS(context.Background(), cfg.Storage.Bucket, cfg.Storage.CredentialsJSON, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Warn("Object storage unavailable, attachments disabled", zap.Error(err))
	} else {
		defer gcs.Close()
		objects = gcs
	}

	window := cfg.Business.ReconcileWindow()
	bipService := service.NewBipService(db, redisClient, eventPublisher, objects, loc, service.IdempotencyTTLs{
		InFlight: cfg.Business.WebhookInFlightTTL,
		Stored:   cfg.Business.WebhookIdempotencyTTL,
	})
	reconciler := service.NewReconciler(db, eventPublisher, window)
	sellService := service.NewSellService(db, reconciler, loc)
	suspectService := service.NewSuspectService(db)
	reportService := service.NewReportService(db, loc)

	sweepInterval := time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second
	lockTTL := 2 * sweepInterval
	if lockTTL < time.Minute {
		lockTTL = time.Minute
	}
	sweeper := service.NewSweeper(db, reconciler, eventPublisher, redisClient,
		window, time.Duration(cfg.Business.SweepLookbackHours)*time.Hour, lockTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	health := worker.NewHealthMonitor(map[string]worker.Pinger{
		"postgres": db,
		"redis":    redisClient,
	}, time.Duration(cfg.Business.HealthCheckIntervalSecs)*time.Second)
	go health.Start(workerCtx)

	sweepWorker := worker.NewSweepWorker(sweeper, sweepInterval)
	go sweepWorker.Start(workerCtx)

	var stoppers []func() error
	if cfg.Kafka.ConsumersEnabled {
		bipConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBipEvents, cfg.Kafka.ReconcileGroup)
		bipWorker := worker.NewBipEventWorker(bipConsumer, reconciler)
		go func() {
			if err := bipWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Bip event worker error", zap.Error(err))
			}
		}()

		saleConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales, cfg.Kafka.SaleIngestGroup)
		saleWorker := worker.NewSaleWorker(saleConsumer, sellService, reconciler)
		go func() {
			if err := saleWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Sale worker error", zap.Error(err))
			}
		}()

		stoppers = append(stoppers, bipWorker.Stop, saleWorker.Stop)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Bips:      bipService,
		Sells:     sellService,
		Suspects:  suspectService,
		Reports:   reportService,
		Readiness: health,
	}, cfg.Auth, cfg.Server.CORSOrigins)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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

	workerCancel()
	for _, stop := range stoppers {
		if err := stop(); err != nil {
			logger.Error("Error stopping worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
