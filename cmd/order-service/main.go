package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	catalogpg "github.com/dmehra2102/marketplace/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/marketplace/internal/config"
	"github.com/dmehra2102/marketplace/internal/order/application"
	ordergrpc "github.com/dmehra2102/marketplace/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/marketplace/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/marketplace/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/marketplace/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/marketplace/internal/payment/application"
	paymenthttp "github.com/dmehra2102/marketplace/internal/payment/infrastructure/http"
	paymentpg "github.com/dmehra2102/marketplace/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/marketplace/internal/payment/infrastructure/stripe"
	"github.com/dmehra2102/marketplace/pkg/database"
	"github.com/dmehra2102/marketplace/pkg/idempotency"
	"github.com/dmehra2102/marketplace/pkg/lock"
	"github.com/dmehra2102/marketplace/pkg/logging"
	"github.com/dmehra2102/marketplace/pkg/outbox"
	"github.com/dmehra2102/marketplace/pkg/shutdown"
	"github.com/dmehra2102/marketplace/pkg/tracing"
)

func main() {
	cfg, err := config.Load(config.OrderService)
	if err != nil {
		logging.New(config.OrderService, "info").Error("invalid configuration", "err", err)
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

	// Postgres setup
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Kafka producer
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	// Repository & outbox store
	repo := orderpg.NewRepository(log, pool)
	store := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderTopic)
	relay := outbox.NewRelay(log, store, dispatch, "order-service-relay")

	inv, err := ordergrpc.NewInventoryClient(log, cfg.InventoryAddr)
	if err != nil {
		log.Error("inventory client failed", "err", err)
		os.Exit(1)
	}
	defer inv.Close()

	catalog := catalogpg.NewCatalog(log, pool)
	svc := application.NewService(log, repo, inv, catalog, catalog,
		stripe.NewGateway(log, cfg.StripeSecretKey, nil),
		application.Pricing{Currency: cfg.Currency, TaxRate: cfg.TaxRate, Shipping: decimal.Zero})

	processor := paymentapp.NewProcessor(log, repo, inv, paymentpg.NewRepository(log, pool),
		lock.NewRedis(rdb, "payment", 30*time.Second, 10*time.Second),
		paymentapp.WithDeduplicator(idempotency.NewStore(rdb, cfg.DedupTTL).Scope("stripe")),
		paymentapp.WithVerifier(stripe.NewVerifier(cfg.StripeWebhookSecret)),
	)

	// HTTP server
	r := orderhttp.NewHandler(log, svc, idempotency.Middleware(log, rdb, 24*time.Hour)).Routes()
	r.Mount("/webhooks", paymenthttp.NewHandler(log, processor).Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Run relay
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Run HTTP
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	if err := shutdown.Graceful(10*time.Second, srv.Shutdown, stopTracing); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	log.Info("order-service shutdown complete")
}
