package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/clicklab/analytics/internal/adsync"
	"github.com/clicklab/analytics/internal/attribution"
	"github.com/clicklab/analytics/internal/config"
	"github.com/clicklab/analytics/internal/quality"
	"github.com/clicklab/analytics/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.AdsAPIURL == "" || len(cfg.AdsCustomerIDs) == 0 {
		logger.Error("ads api url and customer ids are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ch, err := store.OpenClickHouse(ctx, store.ClickHouseOptions{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		logger.Error("clickhouse connect failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer ch.Close()

	if err := ch.Migrate(ctx); err != nil {
		logger.Error("migration failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	client := adsync.NewHTTPClient(cfg.AdsAPIURL, cfg.AdsDeveloperToken, cfg.HTTPTimeout)
	fetcher := adsync.NewFetcher(client, cfg.AdsCustomerIDs, logger)
	reconciler := attribution.NewReconciler(ch, ch, logger)
	auditor := quality.NewAuditor(ch, ch, logger)
	syncer := adsync.NewSyncer(fetcher, ch, reconciler, auditor, logger)

	runFull := func() {
		if err := syncer.RunFull(ctx); err != nil {
			if errors.Is(err, adsync.ErrSyncInProgress) {
				logger.Warn("skipping full sync, previous cycle still running")
				return
			}
			logger.Error("full sync failed", slog.String("err", err.Error()))
		}
	}
	runDeep := func() {
		if err := syncer.RunDeep(ctx); err != nil && !errors.Is(err, adsync.ErrSyncInProgress) {
			logger.Error("deep sync failed", slog.String("err", err.Error()))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.SyncInterval), runFull); err != nil {
		logger.Error("bad sync interval", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if _, err := c.AddFunc(cfg.DeepSyncCron, runDeep); err != nil {
		logger.Error("bad deep sync cron expression", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger.Info("ads sync scheduler started",
		slog.Duration("interval", cfg.SyncInterval),
		slog.String("deep_cron", cfg.DeepSyncCron),
		slog.Int("accounts", len(cfg.AdsCustomerIDs)))

	// Initial sync before handing control to the scheduler.
	runFull()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("ads sync stopped")
}
