package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clicklab/analytics/internal/models"
	"github.com/clicklab/analytics/internal/store"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawEvent(id string) models.RawEvent {
	return models.RawEvent{
		EventID:     id,
		EventTime:   testNow.Add(-time.Hour),
		EventType:   "page_view",
		AnonymousID: "anon-1",
		SessionID:   "sess-1",
		UserAgent:   "Mozilla/5.0 normal browser",
	}
}

func TestProcessBatchIsolation(t *testing.T) {
	mem := store.NewMemory()
	p := NewProcessor(mem, discardLogger()).WithNow(func() time.Time { return testNow })

	bad := rawEvent("ev-2")
	bad.EventTime = testNow.AddDate(0, 0, 30)

	res, err := p.Process(context.Background(), []models.RawEvent{rawEvent("ev-1"), bad, rawEvent("ev-3")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", res.Accepted)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].EventID != "ev-2" {
		t.Fatalf("expected exactly one rejection for ev-2, got %+v", res.Rejections)
	}
	if got := len(mem.Events()); got != 2 {
		t.Fatalf("expected 2 stored rows, got %d", got)
	}
}

func TestProcessStoresFlaggedRows(t *testing.T) {
	mem := store.NewMemory()
	p := NewProcessor(mem, discardLogger()).WithNow(func() time.Time { return testNow })

	bot := rawEvent("ev-bot")
	bot.UserAgent = "Googlebot/2.1"

	res, err := p.Process(context.Background(), []models.RawEvent{bot})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Flagged != 1 || res.Accepted != 0 {
		t.Fatalf("expected 1 flagged, got %+v", res)
	}
	rows := mem.Events()
	if len(rows) != 1 || rows[0].IsValid != 0 || rows[0].ValidationErrors != "bot_traffic" {
		t.Fatalf("flagged rows are stored, never dropped: %+v", rows)
	}
}

type failingWriter struct{}

func (failingWriter) InsertEvents(context.Context, []models.CanonicalEvent) error {
	return errors.New("warehouse unreachable")
}

func TestProcessSurfacesWriteFailure(t *testing.T) {
	p := NewProcessor(failingWriter{}, discardLogger()).WithNow(func() time.Time { return testNow })

	_, err := p.Process(context.Background(), []models.RawEvent{rawEvent("ev-1")})
	if err == nil {
		t.Fatal("a failed bulk write must fail the batch")
	}
}

func TestDispatcherEnqueueBackpressure(t *testing.T) {
	mem := store.NewMemory()
	p := NewProcessor(mem, discardLogger())
	d := NewDispatcher(p, 1, discardLogger())

	// Worker not started: the second enqueue must report overload.
	if !d.Enqueue([]models.RawEvent{rawEvent("a")}) {
		t.Fatal("first enqueue should fit")
	}
	if d.Enqueue([]models.RawEvent{rawEvent("b")}) {
		t.Fatal("full queue must refuse, not block")
	}
}

func TestDispatcherProcessesQueued(t *testing.T) {
	mem := store.NewMemory()
	p := NewProcessor(mem, discardLogger()).WithNow(func() time.Time { return testNow })
	d := NewDispatcher(p, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if !d.Enqueue([]models.RawEvent{rawEvent("ev-1"), rawEvent("ev-2")}) {
		t.Fatal("enqueue failed")
	}

	deadline := time.After(2 * time.Second)
	for len(mem.Events()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("batch never processed, have %d rows", len(mem.Events()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
