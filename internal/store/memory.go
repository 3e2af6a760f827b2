package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/clicklab/analytics/internal/attribution"
	"github.com/clicklab/analytics/internal/models"
)

type profileKey struct {
	userID      string
	anonymousID string
}

type summaryKey struct {
	date     string
	campaign string
}

// Memory is the in-process storage collaborator used by tests and
// local development. It mirrors the warehouse semantics: flagged rows
// are kept, attribution replaces per key with latest sync_timestamp
// winning, and the quality log is append-only.
type Memory struct {
	mu sync.RWMutex

	events      []models.CanonicalEvent
	performance []models.PerformanceRecord
	profiles    map[profileKey]string // traits JSON
	summaries   map[summaryKey]models.AttributionSummary
	issues      []models.QualityIssue
}

func NewMemory() *Memory {
	return &Memory{
		profiles:  make(map[profileKey]string),
		summaries: make(map[summaryKey]models.AttributionSummary),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) InsertEvents(_ context.Context, rows []models.CanonicalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, rows...)
	return nil
}

func (m *Memory) UpsertProfile(_ context.Context, userID, anonymousID string, traits map[string]any) error {
	b, err := json.Marshal(traits)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Keyed map: repeating the same pair overwrites, never duplicates.
	m.profiles[profileKey{userID, anonymousID}] = string(b)
	return nil
}

func (m *Memory) BackfillUserID(_ context.Context, userID, anonymousID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].AnonymousID == anonymousID && m.events[i].UserID == "" {
			m.events[i].UserID = userID
		}
	}
	return nil
}

func (m *Memory) InsertPerformance(_ context.Context, records []models.PerformanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.performance = append(m.performance, records...)
	return nil
}

func (m *Memory) ReplaceAttribution(_ context.Context, summaries []models.AttributionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range summaries {
		k := summaryKey{s.Date, s.CampaignName}
		if prev, ok := m.summaries[k]; ok && prev.SyncTimestamp.After(s.SyncTimestamp) {
			continue // latest sync_timestamp wins
		}
		m.summaries[k] = s
	}
	return nil
}

func (m *Memory) AdAggregates(_ context.Context, since time.Time) ([]attribution.AdAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := since.Format("2006-01-02")
	agg := make(map[summaryKey]*attribution.AdAggregate)
	for _, r := range m.performance {
		if r.Date < cutoff {
			continue
		}
		k := summaryKey{r.Date, r.CampaignName}
		a, ok := agg[k]
		if !ok {
			a = &attribution.AdAggregate{Date: r.Date, CampaignName: r.CampaignName}
			agg[k] = a
		}
		a.Clicks += r.Clicks
		a.Spend += r.Cost
	}
	out := make([]attribution.AdAggregate, 0, len(agg))
	for _, a := range agg {
		out = append(out, *a)
	}
	return out, nil
}

func (m *Memory) SiteAggregates(_ context.Context, since time.Time) ([]attribution.SiteAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type siteAgg struct {
		users       map[string]struct{}
		revenue     float64
		conversions uint64
	}
	agg := make(map[summaryKey]*siteAgg)
	for _, e := range m.events {
		if e.EventTime.Before(since) || e.IsValid != 1 {
			continue
		}
		if e.UTMSource != "google" || e.UTMMedium != "cpc" || e.UTMCampaign == "" {
			continue
		}
		k := summaryKey{e.EventTime.UTC().Format("2006-01-02"), e.UTMCampaign}
		a, ok := agg[k]
		if !ok {
			a = &siteAgg{users: make(map[string]struct{})}
			agg[k] = a
		}
		a.users[e.UserID] = struct{}{}
		a.revenue += e.Revenue
		if e.EventType == "purchase" {
			a.conversions++
		}
	}
	out := make([]attribution.SiteAggregate, 0, len(agg))
	for k, a := range agg {
		out = append(out, attribution.SiteAggregate{
			Date:         k.date,
			CampaignName: k.campaign,
			Users:        uint64(len(a.users)),
			Revenue:      a.revenue,
			Conversions:  a.conversions,
		})
	}
	return out, nil
}

func (m *Memory) AppendIssues(_ context.Context, issues []models.QualityIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues = append(m.issues, issues...)
	return nil
}

func (m *Memory) CountEmptyCampaignNames(_ context.Context, since string) (uint64, error) {
	return m.countPerf(func(r models.PerformanceRecord) bool {
		return r.CampaignName == "" && r.Date >= since
	}), nil
}

func (m *Memory) CountZeroCostWithClicks(_ context.Context, since string) (uint64, error) {
	return m.countPerf(func(r models.PerformanceRecord) bool {
		return r.Cost == 0 && r.Clicks > 0 && r.Date >= since
	}), nil
}

func (m *Memory) CountHighAvgCPC(_ context.Context, since string, ceiling float64) (uint64, error) {
	return m.countPerf(func(r models.PerformanceRecord) bool {
		return r.AvgCPC > ceiling && r.Date >= since
	}), nil
}

func (m *Memory) CountFutureDates(_ context.Context, today string) (uint64, error) {
	return m.countPerf(func(r models.PerformanceRecord) bool {
		return r.Date > today
	}), nil
}

func (m *Memory) countPerf(match func(models.PerformanceRecord) bool) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for _, r := range m.performance {
		if match(r) {
			n++
		}
	}
	return n
}

func (m *Memory) Stats(_ context.Context) ([]models.StatsPeriod, error) {
	now := time.Now().UTC()
	return []models.StatsPeriod{
		m.statsSince("last_hour", now.Add(-time.Hour)),
		m.statsSince("last_24h", now.Add(-24*time.Hour)),
	}, nil
}

func (m *Memory) statsSince(period string, since time.Time) models.StatsPeriod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make(map[string]struct{})
	sessions := make(map[string]struct{})
	p := models.StatsPeriod{Period: period}
	for _, e := range m.events {
		if e.EventTime.Before(since) {
			continue
		}
		p.Events++
		users[e.UserID] = struct{}{}
		sessions[e.SessionID] = struct{}{}
		p.Revenue += e.Revenue
		if e.EventType == "purchase" {
			p.Conversions++
		}
	}
	p.UniqueUsers = uint64(len(users))
	p.Sessions = uint64(len(sessions))
	return p
}

func (m *Memory) RecentIssues(_ context.Context) ([]models.QualityReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	type groupKey struct{ check, issue, severity string }
	groups := make(map[groupKey]*models.QualityReportRow)
	for _, i := range m.issues {
		if i.CheckTimestamp.Before(cutoff) {
			continue
		}
		k := groupKey{i.CheckType, i.IssueType, i.Severity}
		g, ok := groups[k]
		if !ok {
			g = &models.QualityReportRow{CheckType: i.CheckType, IssueType: i.IssueType, Severity: i.Severity}
			groups[k] = g
		}
		g.TotalIssues += i.IssueCount
		if i.CheckTimestamp.After(g.LastCheck) {
			g.LastCheck = i.CheckTimestamp
		}
	}
	out := make([]models.QualityReportRow, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return severityRank(out[i].Severity) > severityRank(out[j].Severity)
		}
		return out[i].TotalIssues > out[j].TotalIssues
	})
	return out, nil
}

func severityRank(s string) int {
	switch s {
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Test accessors: snapshots, never the backing slices.

func (m *Memory) Events() []models.CanonicalEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.CanonicalEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Performance() []models.PerformanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PerformanceRecord, len(m.performance))
	copy(out, m.performance)
	return out
}

func (m *Memory) Attribution() []models.AttributionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AttributionSummary, 0, len(m.summaries))
	for _, s := range m.summaries {
		out = append(out, s)
	}
	return out
}

func (m *Memory) Issues() []models.QualityIssue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.QualityIssue, len(m.issues))
	copy(out, m.issues)
	return out
}

func (m *Memory) ProfileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}
