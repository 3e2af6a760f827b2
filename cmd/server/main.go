package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clicklab/analytics/internal/config"
	"github.com/clicklab/analytics/internal/httpx"
	"github.com/clicklab/analytics/internal/identity"
	"github.com/clicklab/analytics/internal/ingest"
	"github.com/clicklab/analytics/internal/stats"
	"github.com/clicklab/analytics/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

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

	processor := ingest.NewProcessor(ch, logger)
	dispatcher := ingest.NewDispatcher(processor, cfg.QueueMaxSize, logger)
	dispatcher.Start(ctx)

	resolver := identity.NewResolver(ch, logger)
	statsSvc := stats.NewService(ch)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpx.NewServer(dispatcher, resolver, statsSvc, ch, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
