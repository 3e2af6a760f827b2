package models

import "time"

// RawEvent is one untrusted client-submitted event. Schema-level
// constraints (presence, types, lengths, numeric ranges) are enforced
// at the transport boundary via the validate tags; business rules live
// in the normalize package.
type RawEvent struct {
	EventID   string    `json:"event_id" validate:"required,max=255"`
	EventTime time.Time `json:"event_time" validate:"required"`
	EventType string    `json:"event_type" validate:"required,max=100"`

	// User identification
	UserID      string `json:"user_id,omitempty" validate:"max=255"`
	AnonymousID string `json:"anonymous_id" validate:"required,max=255"`
	SessionID   string `json:"session_id" validate:"required,max=255"`
	VisitID     int    `json:"visit_id,omitempty" validate:"gte=0"`

	// Device and network
	DeviceFingerprint string `json:"device_fingerprint,omitempty" validate:"max=255"`
	UserAgent         string `json:"user_agent,omitempty" validate:"max=1000"`
	IPAddress         string `json:"ip_address,omitempty"`

	// Page information
	PageURL     string `json:"page_url,omitempty" validate:"max=2000"`
	PageTitle   string `json:"page_title,omitempty" validate:"max=500"`
	ReferrerURL string `json:"referrer_url,omitempty" validate:"max=2000"`

	// Campaign attribution
	UTMSource   string `json:"utm_source,omitempty" validate:"max=255"`
	UTMMedium   string `json:"utm_medium,omitempty" validate:"max=255"`
	UTMCampaign string `json:"utm_campaign,omitempty" validate:"max=255"`
	UTMContent  string `json:"utm_content,omitempty" validate:"max=255"`
	UTMTerm     string `json:"utm_term,omitempty" validate:"max=255"`
	GCLID       string `json:"gclid,omitempty" validate:"max=255"`
	GBRAID      string `json:"gbraid,omitempty" validate:"max=255"`
	WBRAID      string `json:"wbraid,omitempty" validate:"max=255"`

	// Commerce
	Revenue         float64 `json:"revenue,omitempty" validate:"gte=0"`
	Currency        string  `json:"currency,omitempty" validate:"max=3"`
	OrderID         string  `json:"order_id,omitempty" validate:"max=255"`
	ProductID       string  `json:"product_id,omitempty" validate:"max=255"`
	ProductCategory string  `json:"product_category,omitempty" validate:"max=255"`
	Quantity        int     `json:"quantity,omitempty" validate:"gte=0"`

	// Open-ended custom properties (JSON-serializable values)
	CustomProperties map[string]any `json:"custom_properties,omitempty"`

	// Session context
	SessionStartTime   *time.Time `json:"session_start_time,omitempty"`
	SessionDuration    int        `json:"session_duration,omitempty" validate:"gte=0"`
	PageViewsInSession int        `json:"page_views_in_session,omitempty" validate:"gte=0"`
	IsBounce           bool       `json:"is_bounce,omitempty"`
}

// CanonicalEvent is the cleaned, typed warehouse row. Rows with
// IsValid=0 are stored anyway; ValidationErrors carries the reason.
type CanonicalEvent struct {
	EventID   string    `json:"event_id"`
	EventTime time.Time `json:"event_time"`
	EventType string    `json:"event_type"`

	UserID      string `json:"user_id"`
	AnonymousID string `json:"anonymous_id"`
	SessionID   string `json:"session_id"`
	VisitID     int    `json:"visit_id"`

	DeviceFingerprint string `json:"device_fingerprint"`
	UserAgent         string `json:"user_agent"`
	IPAddress         string `json:"ip_address"`

	PageURL     string `json:"page_url"`
	PageTitle   string `json:"page_title"`
	ReferrerURL string `json:"referrer_url"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`
	GCLID       string `json:"gclid"`
	GBRAID      string `json:"gbraid"`
	WBRAID      string `json:"wbraid"`

	Revenue         float64 `json:"revenue"`
	Currency        string  `json:"currency"`
	OrderID         string  `json:"order_id"`
	ProductID       string  `json:"product_id"`
	ProductCategory string  `json:"product_category"`
	Quantity        int     `json:"quantity"`

	// Serialized JSON object
	CustomProperties string `json:"custom_properties"`

	SessionStartTime   time.Time `json:"session_start_time"`
	SessionDuration    int       `json:"session_duration"`
	PageViewsInSession int       `json:"page_views_in_session"`
	IsBounce           uint8     `json:"is_bounce"`

	IsValid          uint8  `json:"is_valid"`
	ValidationErrors string `json:"validation_errors"`
}

// UserIdentification links an anonymous visitor to a known user.
type UserIdentification struct {
	UserID      string         `json:"user_id" validate:"required,max=255"`
	AnonymousID string         `json:"anonymous_id" validate:"required,max=255"`
	Traits      map[string]any `json:"traits,omitempty"`
}

// PerformanceRecord is one normalized ads-platform row per
// (date, account, campaign, ad group, keyword). Monetary fields are in
// currency units (already converted from micros), CTR is a percentage.
type PerformanceRecord struct {
	Date         string `json:"date"` // YYYY-MM-DD
	AccountID    string `json:"account_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdGroupID    string `json:"ad_group_id"`
	AdGroupName  string `json:"ad_group_name"`
	KeywordID    string `json:"keyword_id"`
	KeywordText  string `json:"keyword_text"`

	Impressions     uint64  `json:"impressions"`
	Clicks          uint64  `json:"clicks"`
	Cost            float64 `json:"cost"`
	Conversions     uint64  `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	QualityScore    float64 `json:"quality_score"`
	CTR             float64 `json:"ctr"`
	AvgCPC          float64 `json:"avg_cpc"`
	AvgPosition     float64 `json:"avg_position"`

	SyncTimestamp time.Time `json:"sync_timestamp"`
}

// AttributionSummary joins ad spend against on-site conversions per
// (date, campaign_name). Replaceable: latest SyncTimestamp wins.
type AttributionSummary struct {
	Date         string `json:"date"` // YYYY-MM-DD
	CampaignName string `json:"campaign_name"`

	AdClicks           uint64  `json:"ad_clicks"`
	AdSpend            float64 `json:"ad_spend"`
	WebsiteUsers       uint64  `json:"website_users"`
	WebsiteRevenue     float64 `json:"website_revenue"`
	WebsiteConversions uint64  `json:"website_conversions"`

	ROAS              float64 `json:"roas"`
	CostPerConversion float64 `json:"cost_per_conversion"`
	ClickToVisitRate  float64 `json:"click_to_visit_rate"`

	SyncTimestamp time.Time `json:"sync_timestamp"`
}

// Severity levels for quality issues.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// QualityIssue is one append-only data-quality log entry.
type QualityIssue struct {
	CheckTimestamp time.Time `json:"check_timestamp"`
	CheckType      string    `json:"check_type"`
	TableName      string    `json:"table_name"`
	IssueType      string    `json:"issue_type"`
	IssueCount     uint64    `json:"issue_count"`
	IssueDetails   string    `json:"issue_details"`
	Severity       string    `json:"severity"`
}

// StatsPeriod is one rolling-window slice of the /api/stats response.
type StatsPeriod struct {
	Period      string  `json:"period"` // last_hour | last_24h
	Events      uint64  `json:"events"`
	UniqueUsers uint64  `json:"unique_users"`
	Sessions    uint64  `json:"sessions"`
	Revenue     float64 `json:"revenue"`
	Conversions uint64  `json:"conversions"`
}

// QualityReportRow is one grouped row of the /api/data-quality response.
type QualityReportRow struct {
	CheckType   string    `json:"check_type"`
	IssueType   string    `json:"issue_type"`
	TotalIssues uint64    `json:"total_issues"`
	LastCheck   time.Time `json:"last_check"`
	Severity    string    `json:"severity"`
}
