package store

import (
	"context"
	"testing"
	"time"

	"github.com/clicklab/analytics/internal/models"
)

func TestReplaceAttributionLatestWins(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	older := time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)
	newer := older.Add(6 * time.Hour)

	if err := mem.ReplaceAttribution(ctx, []models.AttributionSummary{
		{Date: "2024-05-09", CampaignName: "brand", AdSpend: 10, SyncTimestamp: newer},
	}); err != nil {
		t.Fatal(err)
	}
	// A stale write for the same key must not clobber the newer row.
	if err := mem.ReplaceAttribution(ctx, []models.AttributionSummary{
		{Date: "2024-05-09", CampaignName: "brand", AdSpend: 99, SyncTimestamp: older},
	}); err != nil {
		t.Fatal(err)
	}

	got := mem.Attribution()
	if len(got) != 1 || got[0].AdSpend != 10 {
		t.Fatalf("latest sync_timestamp must win, got %+v", got)
	}

	if err := mem.ReplaceAttribution(ctx, []models.AttributionSummary{
		{Date: "2024-05-09", CampaignName: "brand", AdSpend: 25, SyncTimestamp: newer.Add(time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}
	got = mem.Attribution()
	if len(got) != 1 || got[0].AdSpend != 25 {
		t.Fatalf("newer write must replace, got %+v", got)
	}
}

func TestRecentIssuesGroupsAndOrders(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	now := time.Now().UTC()

	if err := mem.AppendIssues(ctx, []models.QualityIssue{
		{CheckTimestamp: now.Add(-time.Hour), CheckType: "ads_performance_sync", IssueType: "future_dates", IssueCount: 2, Severity: models.SeverityMedium},
		{CheckTimestamp: now.Add(-30 * time.Minute), CheckType: "ads_performance_sync", IssueType: "future_dates", IssueCount: 3, Severity: models.SeverityMedium},
		{CheckTimestamp: now.Add(-time.Hour), CheckType: "ads_performance_sync", IssueType: "missing_campaign_names", IssueCount: 150, Severity: models.SeverityHigh},
		// Older than the 24h report window: excluded.
		{CheckTimestamp: now.Add(-48 * time.Hour), CheckType: "ads_performance_sync", IssueType: "zero_cost_with_clicks", IssueCount: 7, Severity: models.SeverityMedium},
	}); err != nil {
		t.Fatal(err)
	}

	rows, err := mem.RecentIssues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 grouped rows inside the window, got %+v", rows)
	}
	if rows[0].IssueType != "missing_campaign_names" || rows[0].Severity != models.SeverityHigh {
		t.Fatalf("high severity must sort first, got %+v", rows[0])
	}
	if rows[1].IssueType != "future_dates" || rows[1].TotalIssues != 5 {
		t.Fatalf("same-key issues must aggregate, got %+v", rows[1])
	}
}
