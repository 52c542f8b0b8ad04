package main

import (
	"context"
	"os"
	"time"

	"github.com/dmehra2102/marketplace/internal/config"
	"github.com/dmehra2102/marketplace/internal/inventory/application"
	invgrpc "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/grpc"
	"github.com/dmehra2102/marketplace/internal/inventory/infrastructure/memory"
	invpg "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/marketplace/pkg/database"
	"github.com/dmehra2102/marketplace/pkg/logging"
	"github.com/dmehra2102/marketplace/pkg/shutdown"
	"github.com/dmehra2102/marketplace/pkg/tracing"
)

func main() {
	cfg, err := config.Load(config.InventoryService)
	if err != nil {
		logging.New(config.InventoryService, "info").Error("invalid configuration", "err", err)
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

	var ledger application.Ledger
	switch cfg.InventoryStore {
	case config.StorePostgres:
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
		pgLedger := invpg.NewLedger(log, pool, cfg.LockTimeout)
		for id, seed := range cfg.SeedStock {
			created, err := pgLedger.Seed(ctx, id, id, seed.Price.Decimal.StringFixed(2), seed.Quantity)
			if err != nil {
				log.Error("seed failed", "product_id", id, "err", err)
				os.Exit(1)
			}
			if !created {
				log.Info("seed skipped, product exists", "product_id", id)
			}
		}
		ledger = pgLedger
	default:
		memLedger := memory.NewLedger(cfg.LockTimeout)
		for id, seed := range cfg.SeedStock {
			memLedger.Seed(id, seed.Quantity)
		}
		ledger = memLedger
	}
	log.Info("stock ledger ready", "store", cfg.InventoryStore, "seeded", len(cfg.SeedStock))

	svc := application.NewService(log, ledger, cfg.ReserveRetries)
	gs, err := invgrpc.Run(log, cfg.GRPCAddr, invgrpc.NewServer(log, svc))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	log.Info("grpc listening", "addr", cfg.GRPCAddr)

	<-ctx.Done()
	stopGRPC := func(context.Context) error {
		gs.GracefulStop()
		return nil
	}
	if err := shutdown.Graceful(10*time.Second, stopGRPC, stopTracing); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	log.Info("inventory-service shutdown")
}
