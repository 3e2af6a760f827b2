package adsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/clicklab/analytics/internal/clean"
	"github.com/clicklab/analytics/internal/models"
)

const defaultPageSize = 10000

// Fetcher pulls keyword-level performance metrics for every tracked
// account over a lookback window and yields canonical records with
// units normalized. One account's failure never aborts the others.
type Fetcher struct {
	client   Client
	accounts []string
	pageSize int
	log      *slog.Logger
	now      func() time.Time
}

func NewFetcher(client Client, accounts []string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		accounts: accounts,
		pageSize: defaultPageSize,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the reference clock (tests).
func (f *Fetcher) WithNow(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// FetchWindow fetches daysBack days of performance data across all
// accounts concurrently. Accounts fail independently: an ads-platform
// error is logged and that account skipped. The returned slice only
// contains fully-fetched accounts.
func (f *Fetcher) FetchWindow(ctx context.Context, daysBack int) []models.PerformanceRecord {
	end := f.now()
	start := end.AddDate(0, 0, -daysBack)
	query := buildQuery(start, end)

	var (
		mu      sync.Mutex
		records []models.PerformanceRecord
		wg      sync.WaitGroup
	)
	for _, account := range f.accounts {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			rows, err := f.fetchAccount(ctx, account, query)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					f.log.Error("ads api error, skipping account",
						slog.String("account_id", account),
						slog.Int("status", apiErr.Status))
				} else {
					f.log.Error("fetch failed, skipping account",
						slog.String("account_id", account),
						slog.String("err", err.Error()))
				}
				return
			}
			f.log.Info("fetched performance records",
				slog.String("account_id", account),
				slog.Int("count", len(rows)))
			mu.Lock()
			records = append(records, rows...)
			mu.Unlock()
		}(account)
	}
	wg.Wait()

	if len(records) == 0 {
		f.log.Warn("no performance data fetched this cycle", slog.Int("accounts", len(f.accounts)))
	}
	return records
}

// fetchAccount walks the paginated search until the token runs out.
func (f *Fetcher) fetchAccount(ctx context.Context, accountID, query string) ([]models.PerformanceRecord, error) {
	var out []models.PerformanceRecord
	syncedAt := f.now()

	pageToken := ""
	for {
		resp, err := f.client.Search(ctx, accountID, SearchRequest{
			Query:     query,
			PageSize:  f.pageSize,
			PageToken: pageToken,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range resp.Results {
			out = append(out, normalizeRow(accountID, row, syncedAt))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// buildQuery renders the platform filter expression for the window.
func buildQuery(start, end time.Time) string {
	return fmt.Sprintf(`SELECT segments.date, campaign.id, campaign.name, ad_group.id, ad_group.name, `+
		`ad_group_criterion.criterion_id, ad_group_criterion.keyword.text, `+
		`metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, `+
		`metrics.conversions_value, metrics.quality_score, metrics.ctr, metrics.average_cpc, `+
		`metrics.average_position `+
		`FROM keyword_view `+
		`WHERE segments.date BETWEEN '%s' AND '%s' `+
		`AND campaign.status = 'ENABLED' AND ad_group.status = 'ENABLED' `+
		`AND ad_group_criterion.status IN ('ENABLED', 'PAUSED')`,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// normalizeRow converts platform units to warehouse units: micros to
// currency (round 2), fractional CTR to percentage (round 4). Missing
// metrics default to 0 before any arithmetic.
func normalizeRow(accountID string, row RawRow, syncedAt time.Time) models.PerformanceRecord {
	return models.PerformanceRecord{
		Date:         row.Date,
		AccountID:    accountID,
		CampaignID:   row.CampaignID,
		CampaignName: clean.String(row.CampaignName, 255),
		AdGroupID:    row.AdGroupID,
		AdGroupName:  clean.String(row.AdGroupName, 255),
		KeywordID:    row.KeywordID,
		KeywordText:  clean.String(row.KeywordText, 255),

		Impressions:     u64(row.Impressions),
		Clicks:          u64(row.Clicks),
		Cost:            round2(float64(i64(row.CostMicros)) / 1_000_000),
		Conversions:     uint64(f64(row.Conversions)),
		ConversionValue: round2(f64(row.ConversionValue)),
		QualityScore:    f64(row.QualityScore),
		CTR:             round4(f64(row.CTR) * 100),
		AvgCPC:          round2(float64(i64(row.AvgCPCMicros)) / 1_000_000),
		AvgPosition:     round2(f64(row.AvgPosition)),

		SyncTimestamp: syncedAt,
	}
}

func u64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func i64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func f64(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
