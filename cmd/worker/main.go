package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eunoia-atlas/backend/internal/charitymeta"
	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/db"
	"github.com/eunoia-atlas/backend/internal/events"
	"github.com/eunoia-atlas/backend/internal/flow"
	"github.com/eunoia-atlas/backend/internal/models"
	"github.com/eunoia-atlas/backend/internal/repositories"
	"github.com/eunoia-atlas/backend/internal/services"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	donationRepo := repositories.NewDonationRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	ledger := xrpl.NewClient(cfg.XRPLRPCURL, log)
	donationService := services.NewDonationService(donationRepo, ledger, publisher, cfg, log)
	store := flow.NewStore(flow.NewRedisKV(rdb), cfg.FlowSessionTTL, log)
	parser := charitymeta.NewParser(10000, 2, log)

	log.Info("worker started")

	runMetaRefresh(ctx, cfg, parser, rdb, log)

	sweepTicker := time.NewTicker(cfg.PendingSweepEvery)
	metaTicker := time.NewTicker(cfg.MetaRefreshEvery)
	defer sweepTicker.Stop()
	defer metaTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			runPendingSweep(ctx, store, donationService, log)
		case <-metaTicker.C:
			runMetaRefresh(ctx, cfg, parser, rdb, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runPendingSweep replays every queued payload through the platform
// wallet. It covers sessions whose API process died before a retry
// trigger fired; a failed delivery leaves the slot untouched for the
// next sweep.
func runPendingSweep(ctx context.Context, store *flow.Store, svc *services.DonationService, log *zap.Logger) {
	err := store.ForEachPending(ctx, func(sid string, payload models.SubmissionPayload) error {
		_, _, err := svc.SubmitDonorIntent(ctx, payload)
		if err != nil {
			log.Warn("pending sweep delivery failed", zap.String("session", sid), zap.Error(err))
			return nil
		}
		store.ClearPending(ctx, sid)
		log.Info("pending donation delivered by sweep", zap.String("session", sid))
		return nil
	})
	if err != nil {
		log.Error("pending sweep failed", zap.Error(err))
	}
}

// runMetaRefresh re-scrapes each charity website and caches the
// display metadata the charities endpoint serves.
func runMetaRefresh(ctx context.Context, cfg *config.Config, parser *charitymeta.Parser, rdb *redis.Client, log *zap.Logger) {
	for _, ch := range cfg.Charities {
		if ch.Website == "" {
			continue
		}

		meta, err := parser.FetchAndParse(ctx, ch.Website)
		if err != nil {
			log.Warn("charity metadata refresh failed",
				zap.String("charity", ch.Code), zap.Error(err))
			continue
		}

		data, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		if err := rdb.Set(ctx, charitymeta.CacheKey(ch.Code), string(data), 2*cfg.MetaRefreshEvery).Err(); err != nil {
			log.Warn("charity metadata cache write failed",
				zap.String("charity", ch.Code), zap.Error(err))
		}
	}
}
