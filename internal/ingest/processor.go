package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clicklab/analytics/internal/models"
	"github.com/clicklab/analytics/internal/normalize"
)

// EventWriter is the storage collaborator contract: one bulk write per
// batch, all-or-nothing at the storage layer.
type EventWriter interface {
	InsertEvents(ctx context.Context, rows []models.CanonicalEvent) error
}

// Rejection reports one event whose normalization rejected.
type Rejection struct {
	EventID string `json:"event_id"`
	Reason  string `json:"error"`
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	Accepted   int
	Flagged    int
	Rejections []Rejection
}

var (
	eventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_events_accepted_total",
		Help: "Events normalized and stored with is_valid=1.",
	})
	eventsFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_events_flagged_total",
		Help: "Events stored with is_valid=0 (bot traffic, oversize properties).",
	})
	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_events_rejected_total",
		Help: "Events rejected by normalization and not stored.",
	})
	batchWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_batch_write_failures_total",
		Help: "Bulk writes that failed at the storage layer.",
	})
)

// Processor runs the normalizer over a bounded batch and performs one
// bulk write of everything that survived. One malformed event never
// aborts the rest of the batch.
type Processor struct {
	writer EventWriter
	log    *slog.Logger
	now    func() time.Time
}

func NewProcessor(writer EventWriter, log *slog.Logger) *Processor {
	return &Processor{writer: writer, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the reference clock (tests).
func (p *Processor) WithNow(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Process normalizes the batch and bulk-writes the surviving rows.
// Per-event failures are collected in the result; a storage failure
// fails the whole batch's persistence and is returned as the error.
func (p *Processor) Process(ctx context.Context, events []models.RawEvent) (BatchResult, error) {
	var res BatchResult
	now := p.now()

	rows := make([]models.CanonicalEvent, 0, len(events))
	for _, ev := range events {
		out := normalize.Event(ev, now)
		switch out.Status {
		case normalize.StatusRejected:
			res.Rejections = append(res.Rejections, Rejection{EventID: out.EventID, Reason: out.Reason})
			eventsRejected.Inc()
			continue
		case normalize.StatusFlagged:
			res.Flagged++
			eventsFlagged.Inc()
		default:
			res.Accepted++
			eventsAccepted.Inc()
		}
		if out.Warning != "" {
			p.log.Warn("event accepted with warning",
				slog.String("event_id", out.Row.EventID),
				slog.String("warning", out.Warning),
				slog.Time("event_time", out.Row.EventTime))
		}
		rows = append(rows, out.Row)
	}

	if len(rows) > 0 {
		if err := p.writer.InsertEvents(ctx, rows); err != nil {
			batchWriteFailures.Inc()
			return res, fmt.Errorf("insert events: %w", err)
		}
	}

	p.log.Info("batch processed",
		slog.Int("accepted", res.Accepted),
		slog.Int("flagged", res.Flagged),
		slog.Int("rejected", len(res.Rejections)))
	return res, nil
}
