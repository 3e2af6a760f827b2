package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	AdsAPIURL         string
	AdsDeveloperToken string
	AdsCustomerIDs    []string

	SyncInterval time.Duration
	DeepSyncCron string

	HTTPTimeout  time.Duration
	QueueMaxSize int
	LogLevel     slog.Level
}

func FromEnv() Config {
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	return Config{
		Port: envOr("PORT", "8080"),

		ClickHouseAddr:     envOr("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: envOr("CLICKHOUSE_DATABASE", "analytics"),
		ClickHouseUser:     envOr("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		AdsAPIURL:         os.Getenv("ADS_API_URL"),
		AdsDeveloperToken: os.Getenv("ADS_DEVELOPER_TOKEN"),
		AdsCustomerIDs:    splitCSV(os.Getenv("ADS_CUSTOMER_IDS")),

		SyncInterval: durationOr("SYNC_INTERVAL_HOURS", 6) * time.Hour,
		DeepSyncCron: envOr("DEEP_SYNC_CRON", "0 2 * * *"),

		HTTPTimeout:  durationOr("HTTP_TIMEOUT_SECONDS", 15) * time.Second,
		QueueMaxSize: intOr("QUEUE_MAX_SIZE", 1000),
		LogLevel:     lvl,
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func intOr(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func durationOr(k string, def int) time.Duration {
	return time.Duration(intOr(k, def))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
