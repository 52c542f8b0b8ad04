package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/marketplace/internal/config"
	ordergrpc "github.com/dmehra2102/marketplace/internal/order/infrastructure/grpc"
	orderpg "github.com/dmehra2102/marketplace/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/marketplace/internal/payment/application"
	paymentkafka "github.com/dmehra2102/marketplace/internal/payment/infrastructure/kafka"
	pg "github.com/dmehra2102/marketplace/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/marketplace/pkg/database"
	"github.com/dmehra2102/marketplace/pkg/idempotency"
	"github.com/dmehra2102/marketplace/pkg/lock"
	"github.com/dmehra2102/marketplace/pkg/logging"
	"github.com/dmehra2102/marketplace/pkg/shutdown"
	"github.com/dmehra2102/marketplace/pkg/tracing"
)

func main() {
	cfg, err := config.Load(config.PaymentService)
	if err != nil {
		logging.New(config.PaymentService, "info").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Service, cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	stopTracing, err := tracing.Init(ctx, cfg.Service, cfg.OtelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := database.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	redisDB := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisDB.Close()
	idem := idempotency.NewStore(redisDB, cfg.DedupTTL)

	inv, err := ordergrpc.NewInventoryClient(log, cfg.InventoryAddr)
	if err != nil {
		log.Error("inventory client failed", "err", err)
		os.Exit(1)
	}
	defer inv.Close()

	processor := application.NewProcessor(log, orderpg.NewRepository(log, pool), inv, pg.NewRepository(log, pool),
		lock.NewRedis(redisDB, "payment", 30*time.Second, 10*time.Second),
		application.WithDeduplicator(idem.Scope("stripe")),
	)
	consumer := paymentkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.PaymentTopic, "payment-service", processor, idem)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	waitConsumer := func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := shutdown.Graceful(10*time.Second, waitConsumer, stopTracing); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	log.Info("payment-service shutdown")
}
