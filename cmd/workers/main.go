package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/config"
	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

// The stats worker periodically snapshots marketplace aggregates so the
// dashboard can chart them over time without scanning the ledger.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	store := credits.NewPostgresStore(db)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_stats_snapshots (
			id BIGSERIAL PRIMARY KEY,
			computed_at TIMESTAMPTZ NOT NULL,
			stats JSONB NOT NULL
		)`); err != nil {
		logger.Fatal("Failed to ensure snapshot table", zap.Error(err))
	}

	schedule := os.Getenv("STATS_SCHEDULE")
	if schedule == "" {
		schedule = "@every 5m"
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		snapshotStats(db, store, logger)
	})
	if err != nil {
		logger.Fatal("Invalid stats schedule", zap.String("schedule", schedule), zap.Error(err))
	}

	scheduler.Start()
	logger.Info("Stats worker started", zap.String("schedule", schedule))

	// Take one snapshot immediately so a fresh deployment has data.
	snapshotStats(db, store, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := scheduler.Stop()
	<-ctx.Done()
	logger.Info("Stats worker exiting")
}

func snapshotStats(db *sqlx.DB, store credits.Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := store.GetLedgerStats(ctx)
	if err != nil {
		logger.Error("Failed to compute ledger stats", zap.Error(err))
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		logger.Error("Failed to encode ledger stats", zap.Error(err))
		return
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO ledger_stats_snapshots (computed_at, stats) VALUES ($1, $2)`,
		stats.ComputedAt, payload)
	if err != nil {
		logger.Error("Failed to store stats snapshot", zap.Error(err))
		return
	}

	logger.Info("Ledger stats snapshot stored",
		zap.Int64("transfers", stats.TransactionCount),
		zap.Float64("traded_value", stats.TradedValue))
}
