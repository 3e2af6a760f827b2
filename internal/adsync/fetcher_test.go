package adsync

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptrU64(v uint64) *uint64   { return &v }
func ptrI64(v int64) *int64     { return &v }
func ptrF64(v float64) *float64 { return &v }

// fakeClient pages through canned responses per account and fails the
// accounts listed in failing.
type fakeClient struct {
	pages   map[string][]SearchResponse
	failing map[string]bool
	calls   int
}

func (f *fakeClient) Search(_ context.Context, accountID string, req SearchRequest) (*SearchResponse, error) {
	f.calls++
	if f.failing[accountID] {
		return nil, &APIError{AccountID: accountID, Status: 403, Message: "permission denied"}
	}
	pages := f.pages[accountID]
	idx := 0
	if req.PageToken != "" {
		for i := range pages {
			if pages[i].NextPageToken == req.PageToken {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(pages) {
		return &SearchResponse{}, nil
	}
	return &pages[idx], nil
}

func TestUnitNormalization(t *testing.T) {
	row := RawRow{
		Date:         "2024-05-09",
		CampaignID:   "c1",
		CampaignName: "brand",
		Clicks:       ptrU64(10),
		Impressions:  ptrU64(1000),
		CostMicros:   ptrI64(2_500_000),
		CTR:          ptrF64(0.0523),
		AvgCPCMicros: ptrI64(250_000),
		Conversions:  ptrF64(3),
	}
	rec := normalizeRow("acct-1", row, testNow)

	if rec.Cost != 2.50 {
		t.Fatalf("2,500,000 micros must convert to 2.50, got %v", rec.Cost)
	}
	if rec.CTR != 5.23 {
		t.Fatalf("ctr 0.0523 must convert to 5.23, got %v", rec.CTR)
	}
	if rec.AvgCPC != 0.25 {
		t.Fatalf("avg_cpc 250,000 micros must convert to 0.25, got %v", rec.AvgCPC)
	}
	if rec.Conversions != 3 {
		t.Fatalf("got %d conversions", rec.Conversions)
	}
	if rec.AccountID != "acct-1" || !rec.SyncTimestamp.Equal(testNow) {
		t.Fatalf("record metadata wrong: %+v", rec)
	}
}

func TestMissingMetricsDefaultToZero(t *testing.T) {
	rec := normalizeRow("acct-1", RawRow{Date: "2024-05-09", CampaignName: "brand"}, testNow)
	if rec.Cost != 0 || rec.CTR != 0 || rec.Clicks != 0 || rec.Conversions != 0 || rec.AvgCPC != 0 {
		t.Fatalf("nil metrics must default to 0, got %+v", rec)
	}
}

func TestFetchWindowPaginates(t *testing.T) {
	client := &fakeClient{
		pages: map[string][]SearchResponse{
			"a1": {
				{Results: []RawRow{{Date: "2024-05-08", CampaignName: "one"}}, NextPageToken: "p2"},
				{Results: []RawRow{{Date: "2024-05-09", CampaignName: "two"}}},
			},
		},
	}
	f := NewFetcher(client, []string{"a1"}, discardLogger()).WithNow(func() time.Time { return testNow })

	records := f.FetchWindow(context.Background(), 7)
	if len(records) != 2 {
		t.Fatalf("expected both pages, got %d records", len(records))
	}
}

func TestFetchWindowIsolatesAccountFailures(t *testing.T) {
	client := &fakeClient{
		pages: map[string][]SearchResponse{
			"good": {{Results: []RawRow{{Date: "2024-05-09", CampaignName: "ok"}}}},
		},
		failing: map[string]bool{"bad": true},
	}
	f := NewFetcher(client, []string{"bad", "good"}, discardLogger()).WithNow(func() time.Time { return testNow })

	records := f.FetchWindow(context.Background(), 7)
	if len(records) != 1 || records[0].CampaignName != "ok" {
		t.Fatalf("failing account must be skipped, not fatal: %+v", records)
	}
}

func TestBuildQueryWindow(t *testing.T) {
	q := buildQuery(testNow.AddDate(0, 0, -7), testNow)
	if !strings.Contains(q, "BETWEEN '2024-05-03' AND '2024-05-10'") {
		t.Fatalf("query window wrong: %s", q)
	}
	if !strings.Contains(q, "FROM keyword_view") {
		t.Fatalf("query must target keyword_view: %s", q)
	}
}
