package ingest

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clicklab/analytics/internal/models"
)

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "analytics_ingest_queue_depth",
	Help: "Batches waiting in the ingest queue.",
})

// Dispatcher decouples the transport acknowledgment from the write:
// the caller gets a 202 as soon as the batch is queued, and write
// failures surface through logs and counters only. Batches are
// processed independently; there is no cross-batch ordering.
type Dispatcher struct {
	queue chan []models.RawEvent
	proc  *Processor
	log   *slog.Logger
}

func NewDispatcher(proc *Processor, queueSize int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue: make(chan []models.RawEvent, queueSize),
		proc:  proc,
		log:   log,
	}
}

// Start runs the worker loop until ctx is cancelled, then drains
// whatever is still queued.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				d.drain()
				return
			case batch := <-d.queue:
				queueDepth.Dec()
				d.process(ctx, batch)
			}
		}
	}()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case batch := <-d.queue:
			queueDepth.Dec()
			d.process(context.Background(), batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, batch []models.RawEvent) {
	if _, err := d.proc.Process(ctx, batch); err != nil {
		// The original caller was already acknowledged; this is the
		// out-of-band failure channel.
		d.log.Error("batch write failed", slog.Int("batch_size", len(batch)), slog.String("err", err.Error()))
	}
}

// Enqueue hands a batch to the worker; false means the queue is full
// and the caller should signal overload.
func (d *Dispatcher) Enqueue(batch []models.RawEvent) bool {
	select {
	case d.queue <- batch:
		queueDepth.Inc()
		return true
	default:
		return false
	}
}
