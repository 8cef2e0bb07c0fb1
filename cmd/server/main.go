package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/egannguyen/cartsourcing/internal/config"
	"github.com/egannguyen/cartsourcing/internal/coordinator"
	httpdelivery "github.com/egannguyen/cartsourcing/internal/delivery/http"
	"github.com/egannguyen/cartsourcing/internal/lock"
	"github.com/egannguyen/cartsourcing/internal/messaging"
	"github.com/egannguyen/cartsourcing/internal/messaging/kafka"
	"github.com/egannguyen/cartsourcing/internal/repository/postgres"
	"github.com/egannguyen/cartsourcing/internal/scheduler"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

func main() {
	slog.SetLogLoggerLevel(slog.LevelInfo)
	cfg := config.Load()

	// --- Database ---
	db, err := postgres.InitDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cartEvents := postgres.NewCartEventStore(db)
	cartProjections := postgres.NewCartReadModel(db)
	productEvents := postgres.NewProductEventStore(db)
	productProjections := postgres.NewProductReadModel(db)

	// --- Redis advisory lock (optional) ---
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			slog.Warn("redis unreachable, advisory lock disabled", "addr", cfg.RedisAddr, "error", err)
			redisClient = nil
		}
	}
	productLock := lock.NewProductLock(redisClient)

	// --- Integration-event publisher (Kafka optional, in-process default) ---
	var publisher messaging.Publisher = messaging.NewInProcessPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers)
		slog.Info("relaying integration events to kafka", "brokers", cfg.KafkaBrokers)
	}

	// --- Use cases and coordinator ---
	cartUC := usecase.NewCartUseCase(cartEvents, cartProjections, cfg.RetryBudget)
	productUC := usecase.NewProductUseCase(productEvents, productProjections, cfg.RetryBudget, cfg.ReservationTTL)
	coord := coordinator.New(cartUC, productUC, productProjections, productLock, publisher)

	// --- Expiration scheduler ---
	expirationScheduler := scheduler.New(cartProjections, cartUC, coord, cfg.ExpirationInterval, cfg.ExpirationTimeout)

	// --- HTTP server ---
	mux := http.NewServeMux()
	httpdelivery.NewCartHandler(cartUC, cartProjections, coord).RegisterRoutes(mux)
	httpdelivery.NewProductHandler(productUC, productProjections).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpdelivery.EnableCORS(mux),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go expirationScheduler.Run(ctx)

	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	httpServer.Shutdown(context.Background())
}
