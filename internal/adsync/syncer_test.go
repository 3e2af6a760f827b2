package adsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clicklab/analytics/internal/attribution"
	"github.com/clicklab/analytics/internal/models"
	"github.com/clicklab/analytics/internal/quality"
	"github.com/clicklab/analytics/internal/store"
)

func newTestSyncer(client Client, mem *store.Memory) *Syncer {
	log := discardLogger()
	clock := func() time.Time { return testNow }
	fetcher := NewFetcher(client, []string{"a1"}, log).WithNow(clock)
	reconciler := attribution.NewReconciler(mem, mem, log).WithNow(clock)
	auditor := quality.NewAuditor(mem, mem, log).WithNow(clock)
	return NewSyncer(fetcher, mem, reconciler, auditor, log)
}

func TestRunFullCycle(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// One attributable on-site purchase for the same day and campaign
	// the ads platform reports spend on.
	if err := mem.InsertEvents(ctx, []models.CanonicalEvent{{
		EventID:     "ev-1",
		EventTime:   time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC),
		EventType:   "purchase",
		UserID:      "u1",
		AnonymousID: "a1",
		SessionID:   "s1",
		UTMSource:   "google",
		UTMMedium:   "cpc",
		UTMCampaign: "brand",
		Revenue:     60,
		IsValid:     1,
	}}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		pages: map[string][]SearchResponse{
			"a1": {{Results: []RawRow{{
				Date:         "2024-05-09",
				CampaignID:   "c1",
				CampaignName: "brand",
				Clicks:       ptrU64(10),
				CostMicros:   ptrI64(20_000_000),
			}}}},
		},
	}

	s := newTestSyncer(client, mem)
	if err := s.RunFull(ctx); err != nil {
		t.Fatalf("run full: %v", err)
	}

	if got := len(mem.Performance()); got != 1 {
		t.Fatalf("expected 1 performance record stored, got %d", got)
	}
	summaries := mem.Attribution()
	if len(summaries) != 1 {
		t.Fatalf("expected 1 attribution summary, got %+v", summaries)
	}
	sum := summaries[0]
	if sum.Date != "2024-05-09" || sum.CampaignName != "brand" {
		t.Fatalf("wrong join key: %+v", sum)
	}
	if sum.AdSpend != 20 || sum.WebsiteRevenue != 60 || sum.ROAS != 3 {
		t.Fatalf("expected spend=20 revenue=60 roas=3, got %+v", sum)
	}
}

func TestRunFullRejectsOverlap(t *testing.T) {
	mem := store.NewMemory()
	entered := make(chan struct{})
	release := make(chan struct{})
	s := newTestSyncer(&blockingClient{entered: entered, release: release}, mem)

	done := make(chan error, 1)
	go func() { done <- s.RunFull(context.Background()) }()
	<-entered

	if err := s.RunFull(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("overlapping cycle must be refused, got %v", err)
	}
	if err := s.RunDeep(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("deep cycle must also be refused, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// Lock released: the next cycle proceeds.
	if err := s.RunDeep(context.Background()); err != nil {
		t.Fatalf("post-cycle run: %v", err)
	}
}

// blockingClient parks the first Search call until released; later
// calls return an empty page immediately.
type blockingClient struct {
	entered chan struct{}
	release chan struct{}
	blocked bool
}

func (b *blockingClient) Search(context.Context, string, SearchRequest) (*SearchResponse, error) {
	if !b.blocked {
		b.blocked = true
		close(b.entered)
		<-b.release
	}
	return &SearchResponse{}, nil
}
