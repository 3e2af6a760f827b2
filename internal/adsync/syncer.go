package adsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clicklab/analytics/internal/attribution"
	"github.com/clicklab/analytics/internal/models"
	"github.com/clicklab/analytics/internal/quality"
)

// ErrSyncInProgress is returned when a cycle is invoked while another
// one is still running. Overlapping cycles would race on the
// latest-wins attribution writes, so re-entry is refused outright.
var ErrSyncInProgress = errors.New("sync cycle already in progress")

// PerformanceStore receives the fetched records in one bulk write.
type PerformanceStore interface {
	InsertPerformance(ctx context.Context, records []models.PerformanceRecord) error
}

// Syncer orchestrates one offline cycle: fetch performance data, store
// it, reconcile attribution, then audit. The fetch must be fully
// settled (every account done or explicitly skipped) before
// reconciliation reads the performance table; FetchWindow guarantees
// that by joining all account goroutines.
type Syncer struct {
	mu sync.Mutex

	fetcher    *Fetcher
	perf       PerformanceStore
	reconciler *attribution.Reconciler
	auditor    *quality.Auditor
	log        *slog.Logger

	lookbackDays     int
	deepLookbackDays int
}

func NewSyncer(fetcher *Fetcher, perf PerformanceStore, reconciler *attribution.Reconciler, auditor *quality.Auditor, log *slog.Logger) *Syncer {
	return &Syncer{
		fetcher:          fetcher,
		perf:             perf,
		reconciler:       reconciler,
		auditor:          auditor,
		log:              log,
		lookbackDays:     7,
		deepLookbackDays: 30,
	}
}

// RunFull executes the standard cycle: 7-day fetch, attribution
// reconciliation, quality audit. Zero successful accounts is a warning
// only; reconciliation and audit still run over pre-existing data.
func (s *Syncer) RunFull(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer s.mu.Unlock()

	runID := uuid.NewString()
	log := s.log.With(slog.String("run_id", runID))
	started := time.Now()
	log.Info("full sync started", slog.Int("lookback_days", s.lookbackDays))

	if err := s.syncPerformance(ctx, log, s.lookbackDays); err != nil {
		return err
	}

	n, err := s.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("attribution reconcile: %w", err)
	}
	log.Info("attribution reconciled", slog.Int("summaries", n))

	s.auditor.Run(ctx)

	log.Info("full sync completed", slog.Duration("elapsed", time.Since(started)))
	return nil
}

// RunDeep executes the once-daily deeper performance pass (30 days,
// no reconciliation or audit).
func (s *Syncer) RunDeep(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer s.mu.Unlock()

	runID := uuid.NewString()
	log := s.log.With(slog.String("run_id", runID))
	log.Info("deep sync started", slog.Int("lookback_days", s.deepLookbackDays))
	return s.syncPerformance(ctx, log, s.deepLookbackDays)
}

func (s *Syncer) syncPerformance(ctx context.Context, log *slog.Logger, daysBack int) error {
	records := s.fetcher.FetchWindow(ctx, daysBack)
	if len(records) == 0 {
		return nil
	}
	if err := s.perf.InsertPerformance(ctx, records); err != nil {
		return fmt.Errorf("insert performance: %w", err)
	}
	log.Info("performance records stored", slog.Int("count", len(records)))
	return nil
}
