// Package normalize turns one raw event into exactly one canonical
// warehouse row, or a structured rejection. Business-rule violations
// degrade to flagged rows (is_valid=0) so downstream analytics can
// quantify rejected traffic; only future-dated events reject outright.
package normalize

import (
	"encoding/json"
	"math"
	"time"

	"github.com/clicklab/analytics/internal/clean"
	"github.com/clicklab/analytics/internal/models"
)

// Status tags the outcome of normalizing one event.
type Status int

const (
	// StatusAccepted: clean row, is_valid=1.
	StatusAccepted Status = iota
	// StatusFlagged: row is stored with is_valid=0 and a reason.
	StatusFlagged
	// StatusRejected: no row; event_id and reason are reported.
	StatusRejected
)

// Reasons recorded on flagged rows or rejections.
const (
	ReasonBotTraffic         = "bot_traffic"
	ReasonFutureEvent        = "event_time_in_future"
	ReasonOversizeProperties = "custom_properties_too_large"

	// WarningStale marks events accepted but older than the staleness
	// window; surfaced through logs, never on the row.
	WarningStale = "stale_event"
)

// maxCustomPropertiesBytes bounds the serialized custom_properties
// payload. Oversize maps degrade the row to flagged with the
// properties replaced by an empty object.
const maxCustomPropertiesBytes = 32 << 10

const staleAfter = 7 * 24 * time.Hour

// Outcome is the tagged result of Event. Row is meaningful for
// Accepted and Flagged; EventID and Reason for Rejected.
type Outcome struct {
	Status  Status
	Row     models.CanonicalEvent
	EventID string
	Reason  string
	Warning string
}

// Event normalizes one structurally-valid raw event against the given
// reference time. Pure: same inputs always yield the same outcome.
//
// Future boundary rule: an event rejects iff event_time is strictly
// after the end of the current UTC day (23:59:59.999999999). Events
// older than seven days are accepted with a staleness warning.
func Event(ev models.RawEvent, now time.Time) Outcome {
	if ev.EventTime.After(endOfDayUTC(now)) {
		return Outcome{Status: StatusRejected, EventID: ev.EventID, Reason: ReasonFutureEvent}
	}

	out := Outcome{Status: StatusAccepted}
	if now.Sub(ev.EventTime) > staleAfter {
		out.Warning = WarningStale
	}

	userAgent := clean.String(ev.UserAgent, 1000)
	ip := clean.IP(ev.IPAddress)

	fingerprint := ev.DeviceFingerprint
	if fingerprint == "" {
		fingerprint = clean.Fingerprint(userAgent, ip)
	}

	sessionStart := ev.EventTime
	if ev.SessionStartTime != nil {
		sessionStart = *ev.SessionStartTime
	}

	props, propsOK := serializeProperties(ev.CustomProperties)

	row := models.CanonicalEvent{
		EventID:   clean.String(ev.EventID, 255),
		EventTime: ev.EventTime,
		EventType: clean.String(ev.EventType, 100),

		UserID:      clean.String(ev.UserID, 255),
		AnonymousID: clean.String(ev.AnonymousID, 255),
		SessionID:   clean.String(ev.SessionID, 255),
		VisitID:     floor1(ev.VisitID),

		DeviceFingerprint: clean.String(fingerprint, 255),
		UserAgent:         userAgent,
		IPAddress:         ip,

		PageURL:     clean.NormalizeURL(clean.String(ev.PageURL, 2000)),
		PageTitle:   clean.String(ev.PageTitle, 500),
		ReferrerURL: clean.NormalizeURL(clean.String(ev.ReferrerURL, 2000)),

		UTMSource:   clean.String(ev.UTMSource, 255),
		UTMMedium:   clean.String(ev.UTMMedium, 255),
		UTMCampaign: clean.String(ev.UTMCampaign, 255),
		UTMContent:  clean.String(ev.UTMContent, 255),
		UTMTerm:     clean.String(ev.UTMTerm, 255),
		GCLID:       clean.String(ev.GCLID, 255),
		GBRAID:      clean.String(ev.GBRAID, 255),
		WBRAID:      clean.String(ev.WBRAID, 255),

		Revenue:         round2(floorf(ev.Revenue)),
		Currency:        defaultStr(clean.String(ev.Currency, 3), "USD"),
		OrderID:         clean.String(ev.OrderID, 255),
		ProductID:       clean.String(ev.ProductID, 255),
		ProductCategory: clean.String(ev.ProductCategory, 255),
		Quantity:        floor0(ev.Quantity),

		CustomProperties: props,

		SessionStartTime:   sessionStart,
		SessionDuration:    floor0(ev.SessionDuration),
		PageViewsInSession: floor1(ev.PageViewsInSession),
		IsBounce:           boolToUint8(ev.IsBounce),

		IsValid:          1,
		ValidationErrors: "",
	}

	if !propsOK {
		out.Status = StatusFlagged
		out.Reason = ReasonOversizeProperties
		row.IsValid = 0
		row.ValidationErrors = ReasonOversizeProperties
	}

	// Bot detection overrides any other valid/invalid state.
	if clean.IsBot(row.UserAgent) {
		out.Status = StatusFlagged
		out.Reason = ReasonBotTraffic
		row.IsValid = 0
		row.ValidationErrors = ReasonBotTraffic
	}

	out.Row = row
	return out
}

// serializeProperties marshals the custom-properties map and enforces
// the size cap; ok=false means the payload was replaced by "{}".
func serializeProperties(props map[string]any) (string, bool) {
	if len(props) == 0 {
		return "{}", true
	}
	b, err := json.Marshal(props)
	if err != nil || len(b) > maxCustomPropertiesBytes {
		return "{}", false
	}
	return string(b), true
}

func endOfDayUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func floor0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func floor1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func floorf(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return f
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
