// Package quality runs a fixed battery of threshold checks over recent
// ads performance data and records issues in an append-only log.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clicklab/analytics/internal/models"
)

const (
	checkWindowDays = 7
	avgCPCCeiling   = 50.0

	// Issue counts below this are medium severity, at or above it high.
	highSeverityThreshold = 100

	checkType = "ads_performance_sync"
	tableName = "ads_performance"
)

// Source exposes the count queries the checks run against the
// performance table. since and today are YYYY-MM-DD dates.
type Source interface {
	CountEmptyCampaignNames(ctx context.Context, since string) (uint64, error)
	CountZeroCostWithClicks(ctx context.Context, since string) (uint64, error)
	CountHighAvgCPC(ctx context.Context, since string, ceiling float64) (uint64, error)
	CountFutureDates(ctx context.Context, today string) (uint64, error)
}

// IssueLog appends quality issues; entries are never updated.
type IssueLog interface {
	AppendIssues(ctx context.Context, issues []models.QualityIssue) error
}

type Auditor struct {
	src Source
	out IssueLog
	log *slog.Logger
	now func() time.Time
}

func NewAuditor(src Source, out IssueLog, log *slog.Logger) *Auditor {
	return &Auditor{src: src, out: out, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the reference clock (tests).
func (a *Auditor) WithNow(now func() time.Time) *Auditor {
	a.now = now
	return a
}

type check struct {
	name string
	run  func(ctx context.Context, src Source, since, today string) (uint64, error)
}

var checks = []check{
	{"missing_campaign_names", func(ctx context.Context, src Source, since, _ string) (uint64, error) {
		return src.CountEmptyCampaignNames(ctx, since)
	}},
	{"zero_cost_with_clicks", func(ctx context.Context, src Source, since, _ string) (uint64, error) {
		return src.CountZeroCostWithClicks(ctx, since)
	}},
	{"high_cost_per_click", func(ctx context.Context, src Source, since, _ string) (uint64, error) {
		return src.CountHighAvgCPC(ctx, since, avgCPCCeiling)
	}},
	{"future_dates", func(ctx context.Context, src Source, _, today string) (uint64, error) {
		return src.CountFutureDates(ctx, today)
	}},
}

// Run executes every check over the trailing window. A failing check
// is logged and skipped; it never aborts the rest of the battery.
func (a *Auditor) Run(ctx context.Context) {
	now := a.now()
	since := now.AddDate(0, 0, -checkWindowDays).Format("2006-01-02")
	today := now.Format("2006-01-02")

	for _, c := range checks {
		count, err := c.run(ctx, a.src, since, today)
		if err != nil {
			a.log.Error("quality check failed", slog.String("check", c.name), slog.String("err", err.Error()))
			continue
		}
		if count == 0 {
			continue
		}
		issue := models.QualityIssue{
			CheckTimestamp: now,
			CheckType:      checkType,
			TableName:      tableName,
			IssueType:      c.name,
			IssueCount:     count,
			IssueDetails:   fmt.Sprintf("Found %d records with %s", count, c.name),
			Severity:       Severity(count),
		}
		if err := a.out.AppendIssues(ctx, []models.QualityIssue{issue}); err != nil {
			a.log.Error("failed to record quality issue", slog.String("check", c.name), slog.String("err", err.Error()))
			continue
		}
		a.log.Warn("data quality issue",
			slog.String("check", c.name),
			slog.Uint64("issue_count", count),
			slog.String("severity", issue.Severity))
	}
}

// Severity classifies an issue count against the fixed threshold.
func Severity(count uint64) string {
	if count < highSeverityThreshold {
		return models.SeverityMedium
	}
	return models.SeverityHigh
}
