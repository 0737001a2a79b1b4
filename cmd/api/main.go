package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/crossmark"
	"github.com/eunoia-atlas/backend/internal/db"
	"github.com/eunoia-atlas/backend/internal/events"
	"github.com/eunoia-atlas/backend/internal/flow"
	apphttp "github.com/eunoia-atlas/backend/internal/http"
	"github.com/eunoia-atlas/backend/internal/http/handlers"
	"github.com/eunoia-atlas/backend/internal/payments"
	"github.com/eunoia-atlas/backend/internal/repositories"
	"github.com/eunoia-atlas/backend/internal/services"
	"github.com/eunoia-atlas/backend/internal/xaman"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	donationRepo := repositories.NewDonationRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Ledger + services
	ledger := xrpl.NewClient(cfg.XRPLRPCURL, log)
	donationService := services.NewDonationService(donationRepo, ledger, publisher, cfg, log)

	// Payment backends
	xamanClient := xaman.NewClient(cfg.XamanAPIURL, cfg.XamanAPIKey, cfg.XamanAPISecret, log)
	xamanAdapter := payments.NewXamanAdapter(xamanClient, donationService, cfg, log)

	var bridge crossmark.Bridge
	if cfg.CrossmarkBridgeURL != "" {
		bridge = crossmark.NewHTTPBridge(cfg.CrossmarkBridgeURL, log)
	}
	onWallet := func(_ context.Context, address, network string) {
		log.Info("crossmark wallet connected",
			zap.String("address", address), zap.String("network", network))
	}

	adapters := []payments.Adapter{
		payments.NewPlatformAdapter(donationService, cfg.PlatformSeed != "" && cfg.PlatformAddress != "", log),
		xamanAdapter,
		payments.NewCrossmarkAdapter(bridge, donationService, onWallet, cfg, log),
		payments.NewFiatAdapter(cfg.DemoMode, 0, log),
	}

	// Flow engine
	store := flow.NewStore(flow.NewRedisKV(rdb), cfg.FlowSessionTTL, log)
	engine := flow.NewEngine(store, adapters, xamanAdapter, donationService, cfg, log)
	defer engine.Shutdown()

	// Connectivity watcher: probes the ledger and retries queued
	// payloads when it comes back.
	watcher := flow.NewWatcher(func(ctx context.Context) error {
		_, err := ledger.ValidatedLedger(ctx)
		return err
	}, cfg.OnlineProbeEvery, log)
	watcher.OnOnline(engine.HandleOnline)
	go watcher.Run(ctx)

	// Session janitor: abandoned flows release their timers; redis
	// state expires on its own TTL.
	go func() {
		ticker := time.NewTicker(cfg.FlowIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.ReapIdle(cfg.FlowIdleTimeout)
			}
		}
	}()

	// Handlers
	donationHandler := handlers.NewDonationHandler(donationService, log)
	flowHandler := handlers.NewFlowHandler(engine, watcher, log)
	xamanHandler := handlers.NewXamanHandler(xamanAdapter, log)
	charityHandler := handlers.NewCharityHandler(cfg, rdb, log)
	wsHub := handlers.NewWSHub(subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, donationHandler, flowHandler, xamanHandler, charityHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
