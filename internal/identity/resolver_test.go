package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clicklab/analytics/internal/models"
	"github.com/clicklab/analytics/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func storedEvent(id, anonymousID, userID string) models.CanonicalEvent {
	return models.CanonicalEvent{
		EventID:     id,
		EventTime:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		EventType:   "page_view",
		AnonymousID: anonymousID,
		UserID:      userID,
		SessionID:   "sess-1",
		IsValid:     1,
	}
}

func TestIdentifyBackfillScoping(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.InsertEvents(ctx, []models.CanonicalEvent{
		storedEvent("ev-1", "a1", ""),
		storedEvent("ev-2", "a1", "u9"),
		storedEvent("ev-3", "other", ""),
	}); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(mem, discardLogger())
	if err := r.Identify(ctx, models.UserIdentification{UserID: "u2", AnonymousID: "a1"}); err != nil {
		t.Fatalf("identify: %v", err)
	}

	byID := map[string]string{}
	for _, e := range mem.Events() {
		byID[e.EventID] = e.UserID
	}
	if byID["ev-1"] != "u2" {
		t.Fatalf("empty-user row must be backfilled, got %q", byID["ev-1"])
	}
	if byID["ev-2"] != "u9" {
		t.Fatalf("already-attributed row must keep its user (first identify wins), got %q", byID["ev-2"])
	}
	if byID["ev-3"] != "" {
		t.Fatalf("other anonymous ids must be untouched, got %q", byID["ev-3"])
	}
}

func TestIdentifyIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewResolver(mem, discardLogger())

	ident := models.UserIdentification{UserID: "u1", AnonymousID: "a1", Traits: map[string]any{"plan": "pro"}}
	for i := 0; i < 3; i++ {
		if err := r.Identify(ctx, ident); err != nil {
			t.Fatalf("identify #%d: %v", i, err)
		}
	}
	if n := mem.ProfileCount(); n != 1 {
		t.Fatalf("repeated identify must not duplicate associations, got %d profiles", n)
	}
}
