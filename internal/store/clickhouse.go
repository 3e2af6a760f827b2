// Package store implements the storage collaborator: a ClickHouse
// warehouse for production and an in-memory double for tests. Both
// satisfy the narrow interfaces the pipeline components declare.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/clicklab/analytics/internal/attribution"
	"github.com/clicklab/analytics/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ClickHouse is the warehouse-backed store. Construct once at startup,
// inject into components, Close on shutdown.
type ClickHouse struct {
	conn driver.Conn
}

type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (s *ClickHouse) Close() error { return s.conn.Close() }

func (s *ClickHouse) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

// Migrate applies the embedded DDL, one statement at a time.
func (s *ClickHouse) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// InsertEvents bulk-writes one batch of canonical rows. All-or-nothing
// at this layer: a failed send fails the whole batch.
func (s *ClickHouse) InsertEvents(ctx context.Context, rows []models.CanonicalEvent) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO events (
		event_id, event_time, event_type, user_id, anonymous_id, session_id, visit_id,
		device_fingerprint, user_agent, ip_address, page_url, page_title, referrer_url,
		utm_source, utm_medium, utm_campaign, utm_content, utm_term, gclid, gbraid, wbraid,
		revenue, currency, order_id, product_id, product_category, quantity,
		custom_properties, session_start_time, session_duration, page_views_in_session,
		is_bounce, is_valid, validation_errors)`)
	if err != nil {
		return fmt.Errorf("prepare events batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.EventID, r.EventTime, r.EventType, r.UserID, r.AnonymousID, r.SessionID, uint32(r.VisitID),
			r.DeviceFingerprint, r.UserAgent, r.IPAddress, r.PageURL, r.PageTitle, r.ReferrerURL,
			r.UTMSource, r.UTMMedium, r.UTMCampaign, r.UTMContent, r.UTMTerm, r.GCLID, r.GBRAID, r.WBRAID,
			r.Revenue, r.Currency, r.OrderID, r.ProductID, r.ProductCategory, uint32(r.Quantity),
			r.CustomProperties, r.SessionStartTime, uint32(r.SessionDuration), uint32(r.PageViewsInSession),
			r.IsBounce, r.IsValid, r.ValidationErrors,
		); err != nil {
			return fmt.Errorf("append event %s: %w", r.EventID, err)
		}
	}
	return batch.Send()
}

// UpsertProfile writes the (user_id, anonymous_id) association; the
// ReplacingMergeTree on (user_id, anonymous_id) keeps it idempotent.
func (s *ClickHouse) UpsertProfile(ctx context.Context, userID, anonymousID string, traits map[string]any) error {
	traitsJSON := "{}"
	if len(traits) > 0 {
		b, err := json.Marshal(traits)
		if err != nil {
			return fmt.Errorf("marshal traits: %w", err)
		}
		traitsJSON = string(b)
	}
	now := time.Now().UTC()
	return s.conn.Exec(ctx, `INSERT INTO user_profiles
		(user_id, anonymous_id, traits, first_seen, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, anonymousID, traitsJSON, now, now, now)
}

// BackfillUserID stamps user_id onto events that share the anonymous
// id and have no user yet. Parameterized: identifiers are never
// spliced into the statement body. The mutation is asynchronous on the
// ClickHouse side; submission is treated as success.
func (s *ClickHouse) BackfillUserID(ctx context.Context, userID, anonymousID string) error {
	return s.conn.Exec(ctx,
		`ALTER TABLE events UPDATE user_id = ? WHERE anonymous_id = ? AND user_id = ''`,
		userID, anonymousID)
}

// InsertPerformance bulk-writes fetched performance records; the
// ReplacingMergeTree keyed on (date, account, campaign, ad group,
// keyword) resolves re-fetches by latest sync_timestamp.
func (s *ClickHouse) InsertPerformance(ctx context.Context, records []models.PerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ads_performance (
		date, account_id, campaign_id, campaign_name, ad_group_id, ad_group_name,
		keyword_id, keyword_text, impressions, clicks, cost, conversions,
		conversion_value, quality_score, ctr, avg_cpc, avg_position, sync_timestamp)`)
	if err != nil {
		return fmt.Errorf("prepare performance batch: %w", err)
	}
	for _, r := range records {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return fmt.Errorf("bad performance date %q: %w", r.Date, err)
		}
		if err := batch.Append(
			date, r.AccountID, r.CampaignID, r.CampaignName, r.AdGroupID, r.AdGroupName,
			r.KeywordID, r.KeywordText, r.Impressions, r.Clicks, r.Cost, r.Conversions,
			r.ConversionValue, r.QualityScore, r.CTR, r.AvgCPC, r.AvgPosition, r.SyncTimestamp,
		); err != nil {
			return fmt.Errorf("append performance record: %w", err)
		}
	}
	return batch.Send()
}

// ReplaceAttribution writes the recomputed summaries; last write wins
// per (date, campaign_name) via sync_timestamp.
func (s *ClickHouse) ReplaceAttribution(ctx context.Context, summaries []models.AttributionSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO attribution_summary (
		date, campaign_name, ad_clicks, ad_spend, website_users, website_revenue,
		website_conversions, roas, cost_per_conversion, click_to_visit_rate, sync_timestamp)`)
	if err != nil {
		return fmt.Errorf("prepare attribution batch: %w", err)
	}
	for _, a := range summaries {
		date, err := time.Parse("2006-01-02", a.Date)
		if err != nil {
			return fmt.Errorf("bad attribution date %q: %w", a.Date, err)
		}
		if err := batch.Append(
			date, a.CampaignName, a.AdClicks, a.AdSpend, a.WebsiteUsers, a.WebsiteRevenue,
			a.WebsiteConversions, a.ROAS, a.CostPerConversion, a.ClickToVisitRate, a.SyncTimestamp,
		); err != nil {
			return fmt.Errorf("append attribution summary: %w", err)
		}
	}
	return batch.Send()
}

// AdAggregates sums clicks and spend per (date, campaign_name) over
// the window. FINAL collapses ReplacingMergeTree duplicates.
func (s *ClickHouse) AdAggregates(ctx context.Context, since time.Time) ([]attribution.AdAggregate, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT toString(date), campaign_name, sum(clicks), toFloat64(sum(cost))
		FROM ads_performance FINAL
		WHERE date >= toDate(?)
		GROUP BY date, campaign_name`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attribution.AdAggregate
	for rows.Next() {
		var a attribution.AdAggregate
		if err := rows.Scan(&a.Date, &a.CampaignName, &a.Clicks, &a.Spend); err != nil {
			return nil, fmt.Errorf("scan ad aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SiteAggregates sums valid paid-search conversion events per
// (date, utm_campaign). Flagged rows (is_valid=0) never contribute.
func (s *ClickHouse) SiteAggregates(ctx context.Context, since time.Time) ([]attribution.SiteAggregate, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT toString(toDate(event_time)) AS date,
		       utm_campaign,
		       uniqExact(user_id),
		       toFloat64(sum(revenue)),
		       countIf(event_type = 'purchase')
		FROM events
		WHERE event_time >= ?
		  AND utm_source = 'google'
		  AND utm_medium = 'cpc'
		  AND utm_campaign != ''
		  AND is_valid = 1
		GROUP BY date, utm_campaign`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []attribution.SiteAggregate
	for rows.Next() {
		var a attribution.SiteAggregate
		if err := rows.Scan(&a.Date, &a.CampaignName, &a.Users, &a.Revenue, &a.Conversions); err != nil {
			return nil, fmt.Errorf("scan site aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendIssues writes quality-log entries; the log is append-only.
func (s *ClickHouse) AppendIssues(ctx context.Context, issues []models.QualityIssue) error {
	if len(issues) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO data_quality_log (
		check_timestamp, check_type, table_name, issue_type, issue_count, issue_details, severity)`)
	if err != nil {
		return fmt.Errorf("prepare quality batch: %w", err)
	}
	for _, i := range issues {
		if err := batch.Append(i.CheckTimestamp, i.CheckType, i.TableName, i.IssueType,
			i.IssueCount, i.IssueDetails, i.Severity); err != nil {
			return fmt.Errorf("append quality issue: %w", err)
		}
	}
	return batch.Send()
}

func (s *ClickHouse) CountEmptyCampaignNames(ctx context.Context, since string) (uint64, error) {
	return s.countWhere(ctx, `campaign_name = '' AND date >= toDate(?)`, since)
}

func (s *ClickHouse) CountZeroCostWithClicks(ctx context.Context, since string) (uint64, error) {
	return s.countWhere(ctx, `cost = 0 AND clicks > 0 AND date >= toDate(?)`, since)
}

func (s *ClickHouse) CountHighAvgCPC(ctx context.Context, since string, ceiling float64) (uint64, error) {
	return s.countWhere(ctx, `avg_cpc > ? AND date >= toDate(?)`, ceiling, since)
}

func (s *ClickHouse) CountFutureDates(ctx context.Context, today string) (uint64, error) {
	return s.countWhere(ctx, `date > toDate(?)`, today)
}

func (s *ClickHouse) countWhere(ctx context.Context, cond string, args ...any) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, "SELECT count() FROM ads_performance WHERE "+cond, args...).Scan(&n)
	return n, err
}

// Stats returns the 1-hour and 24-hour rolling snapshots served by
// GET /api/stats.
func (s *ClickHouse) Stats(ctx context.Context) ([]models.StatsPeriod, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT 'last_hour' AS period,
		       count() AS events,
		       uniq(user_id) AS unique_users,
		       uniq(session_id) AS sessions,
		       toFloat64(sum(revenue)) AS revenue,
		       countIf(event_type = 'purchase') AS conversions
		FROM events WHERE event_time >= now() - INTERVAL 1 HOUR
		UNION ALL
		SELECT 'last_24h',
		       count(), uniq(user_id), uniq(session_id),
		       toFloat64(sum(revenue)), countIf(event_type = 'purchase')
		FROM events WHERE event_time >= now() - INTERVAL 24 HOUR`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StatsPeriod
	for rows.Next() {
		var p models.StatsPeriod
		if err := rows.Scan(&p.Period, &p.Events, &p.UniqueUsers, &p.Sessions, &p.Revenue, &p.Conversions); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentIssues returns the trailing-24h quality report grouped by
// check, issue and severity, highest severity first.
func (s *ClickHouse) RecentIssues(ctx context.Context) ([]models.QualityReportRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT check_type, issue_type, sum(issue_count), max(check_timestamp), severity
		FROM data_quality_log
		WHERE check_timestamp >= now() - INTERVAL 24 HOUR
		GROUP BY check_type, issue_type, severity
		ORDER BY severity DESC, sum(issue_count) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.QualityReportRow
	for rows.Next() {
		var r models.QualityReportRow
		if err := rows.Scan(&r.CheckType, &r.IssueType, &r.TotalIssues, &r.LastCheck, &r.Severity); err != nil {
			return nil, fmt.Errorf("scan quality row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
