package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/eunoia-atlas/backend/internal/db"
	"github.com/eunoia-atlas/backend/internal/events"
	"github.com/eunoia-atlas/backend/internal/repositories"
	"github.com/eunoia-atlas/backend/internal/services"
	"github.com/eunoia-atlas/backend/internal/xrpl"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisCursorPrefix    = "xrpl-indexer:cursor:"
	redisProcessedPrefix = "xrpl-indexer:tx:"
	processedTTL         = 7 * 24 * time.Hour
	pollInterval         = 5 * time.Second
	memoPrefix           = "EUN-"
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

	log.Info("ledger indexer started",
		zap.String("rpc", cfg.XRPLRPCURL),
		zap.String("network", cfg.XRPLNetwork),
	)

	initCursors(ctx, cfg, ledger, rdb, log)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			for _, ch := range cfg.Charities {
				if ch.WalletAddress == "" {
					continue
				}
				if err := pollWallet(ctx, ch, ledger, donationService, rdb, log); err != nil {
					log.Error("poll cycle failed", zap.String("charity", ch.Code), zap.Error(err))
				}
			}
		case <-sigCh:
			log.Info("shutting down ledger indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursors positions each wallet's cursor at the current validated
// ledger on first run, so only payments arriving after startup are
// processed.
func initCursors(ctx context.Context, cfg *config.Config, ledger *xrpl.Client, rdb *redis.Client, log *zap.Logger) {
	current, err := ledger.ValidatedLedger(ctx)
	if err != nil {
		log.Warn("failed to read validated ledger for cursor init", zap.Error(err))
		current = 0
	}

	for _, ch := range cfg.Charities {
		if ch.WalletAddress == "" {
			continue
		}
		key := redisCursorPrefix + ch.Code
		existing, _ := rdb.Get(ctx, key).Result()
		if existing != "" {
			log.Info("resuming from saved cursor",
				zap.String("charity", ch.Code), zap.String("ledger", existing))
			continue
		}
		rdb.Set(ctx, key, strconv.FormatUint(uint64(current), 10), 0)
		log.Info("cursor initialized at current validated ledger (skipping history)",
			zap.String("charity", ch.Code), zap.Uint32("ledger", current))
	}
}

func loadCursor(ctx context.Context, rdb *redis.Client, charityCode string) int64 {
	val, err := rdb.Get(ctx, redisCursorPrefix+charityCode).Result()
	if err != nil || val == "" {
		return 0
	}
	idx, _ := strconv.ParseInt(val, 10, 64)
	return idx
}

// pollWallet runs one poll cycle for a charity wallet: fetch validated
// transactions from the cursor forward, settle memo-matched payments,
// advance the cursor. Processed-transaction keys make settlement
// idempotent across restarts and cursor overlap.
func pollWallet(
	ctx context.Context,
	charity config.Charity,
	ledger *xrpl.Client,
	svc *services.DonationService,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	cursor := loadCursor(ctx, rdb, charity.Code)
	entries, err := ledger.AccountTx(ctx, charity.WalletAddress, cursor)
	if err != nil {
		return fmt.Errorf("account_tx failed: %w", err)
	}

	maxLedger := cursor
	for _, entry := range entries {
		if int64(entry.LedgerIndex) > maxLedger {
			maxLedger = int64(entry.LedgerIndex)
		}
		if entry.TransactionType != "Payment" || entry.Result != "tesSUCCESS" {
			continue
		}
		if entry.Destination != charity.WalletAddress {
			continue
		}

		processedKey := redisProcessedPrefix + entry.Hash
		seen, _ := rdb.Exists(ctx, processedKey).Result()
		if seen > 0 {
			continue
		}

		for _, memoHex := range entry.MemoHexes {
			memo := xrpl.DecodeMemoHex(memoHex)
			if !strings.HasPrefix(memo, memoPrefix) {
				continue
			}
			if err := svc.SettleByMemo(ctx, memo, entry.Hash); err != nil {
				log.Error("settle by memo failed",
					zap.String("memo_id", memo), zap.String("tx_hash", entry.Hash), zap.Error(err))
				continue
			}
			log.Info("incoming payment settled",
				zap.String("charity", charity.Code),
				zap.String("memo_id", memo),
				zap.String("tx_hash", entry.Hash),
			)
		}

		rdb.Set(ctx, processedKey, "1", processedTTL)
	}

	if maxLedger > cursor {
		rdb.Set(ctx, redisCursorPrefix+charity.Code, strconv.FormatInt(maxLedger, 10), 0)
	}
	return nil
}
