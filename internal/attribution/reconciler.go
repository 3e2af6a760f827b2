// Package attribution reconciles ad spend against on-site conversion
// events. Two independently-collected aggregates are joined on the
// soft key (date, campaign name); a campaign missing on either side
// still surfaces with the absent side zeroed.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/clicklab/analytics/internal/models"
)

// Window is the rolling lookback over which both sides aggregate.
const Window = 30 * 24 * time.Hour

// AdAggregate is the ad-side sum per (date, campaign_name).
type AdAggregate struct {
	Date         string
	CampaignName string
	Clicks       uint64
	Spend        float64
}

// SiteAggregate is the site-side sum per (date, utm_campaign),
// restricted to valid paid-search rows (utm_source=google,
// utm_medium=cpc, non-empty campaign, is_valid=1).
type SiteAggregate struct {
	Date         string
	CampaignName string
	Users        uint64
	Revenue      float64
	Conversions  uint64
}

// Source supplies the two aggregates over the rolling window.
type Source interface {
	AdAggregates(ctx context.Context, since time.Time) ([]AdAggregate, error)
	SiteAggregates(ctx context.Context, since time.Time) ([]SiteAggregate, error)
}

// Sink replaces prior summaries for the same (date, campaign_name)
// key; latest sync_timestamp wins.
type Sink interface {
	ReplaceAttribution(ctx context.Context, summaries []models.AttributionSummary) error
}

type Reconciler struct {
	src  Source
	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

func NewReconciler(src Source, sink Sink, log *slog.Logger) *Reconciler {
	return &Reconciler{src: src, sink: sink, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the reference clock (tests).
func (r *Reconciler) WithNow(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run computes and stores the attribution summaries for the rolling
// window, returning how many were written.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	now := r.now()
	since := now.Add(-Window)

	ads, err := r.src.AdAggregates(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("ad aggregates: %w", err)
	}
	site, err := r.src.SiteAggregates(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("site aggregates: %w", err)
	}

	summaries := Join(ads, site, now)
	if len(summaries) == 0 {
		r.log.Info("no attribution rows in window")
		return 0, nil
	}
	if err := r.sink.ReplaceAttribution(ctx, summaries); err != nil {
		return 0, fmt.Errorf("replace attribution: %w", err)
	}
	return len(summaries), nil
}

type joinKey struct {
	date     string
	campaign string
}

// Join full-outer-joins the two aggregates on (date, campaign name).
// Rows where both spend and revenue are zero are dropped; derived
// ratios use guarded division so a zero denominator yields 0, never an
// error or NaN. Output is ordered date desc, then ROAS desc.
func Join(ads []AdAggregate, site []SiteAggregate, syncedAt time.Time) []models.AttributionSummary {
	merged := make(map[joinKey]*models.AttributionSummary)

	row := func(k joinKey) *models.AttributionSummary {
		if s, ok := merged[k]; ok {
			return s
		}
		s := &models.AttributionSummary{Date: k.date, CampaignName: k.campaign, SyncTimestamp: syncedAt}
		merged[k] = s
		return s
	}

	for _, a := range ads {
		s := row(joinKey{a.Date, a.CampaignName})
		s.AdClicks += a.Clicks
		s.AdSpend += a.Spend
	}
	for _, w := range site {
		s := row(joinKey{w.Date, w.CampaignName})
		s.WebsiteUsers += w.Users
		s.WebsiteRevenue += w.Revenue
		s.WebsiteConversions += w.Conversions
	}

	out := make([]models.AttributionSummary, 0, len(merged))
	for _, s := range merged {
		if s.AdSpend <= 0 && s.WebsiteRevenue <= 0 {
			continue
		}
		s.ROAS = round4(safeDiv(s.WebsiteRevenue, s.AdSpend))
		s.CostPerConversion = round2(safeDiv(s.AdSpend, float64(s.WebsiteConversions)))
		s.ClickToVisitRate = round4(safeDiv(float64(s.WebsiteUsers), float64(s.AdClicks)) * 100)
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ROAS > out[j].ROAS
	})
	return out
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
