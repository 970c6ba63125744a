// Package freshness defines core types shared across subsystems.
package freshness

import "time"

// Source identifies where a date candidate was extracted from, ordered
// roughly by reliability.
type Source string

// Source values persisted in cache entries.
const (
	SourceStructuredMetadata Source = "structured-metadata"
	SourceLinkedData         Source = "linked-data"
	SourceInlineTimeMarkup   Source = "inline-time-markup"
	SourceHeuristicText      Source = "heuristic-text"
	SourceHTTPHeader         Source = "http-header"
	SourceURLPath            Source = "url-path"
	SourceNone               Source = "none"
)

// DateCandidate is a single extractor's answer: at most one published and
// one modified instant, weighted by the extractor's fixed confidence.
type DateCandidate struct {
	Published  *time.Time `json:"published,omitempty"`
	Modified   *time.Time `json:"modified,omitempty"`
	Confidence float64    `json:"confidence"`
	Source     Source     `json:"source"`
}

// HasDate reports whether the candidate carries any instant at all.
func (c DateCandidate) HasDate() bool {
	return c.Published != nil || c.Modified != nil
}

// CacheEntry is an immutable snapshot of a date lookup for one URL.
// Entries with Source == SourceNone are negative: the lookup ran and found
// nothing, and the entry expires on its own shorter TTL.
type CacheEntry struct {
	URL         string        `json:"url"`
	Published   *time.Time    `json:"published,omitempty"`
	Modified    *time.Time    `json:"modified,omitempty"`
	Confidence  float64       `json:"confidence"`
	Source      Source        `json:"source"`
	CachedAt    time.Time     `json:"cached_at"`
	NegativeTTL time.Duration `json:"negative_ttl,omitempty"`
}

// HasDate reports whether the entry carries any instant at all.
func (e CacheEntry) HasDate() bool {
	return e.Published != nil || e.Modified != nil
}

// IsNegative reports whether the entry records a failed lookup.
func (e CacheEntry) IsNegative() bool {
	return e.Source == SourceNone
}

// QuotaState tracks the daily usage counter for the rate-limited action.
// ResetDate is a UTC calendar day in "2006-01-02" form.
type QuotaState struct {
	Count      int    `json:"count"`
	DailyLimit int    `json:"daily_limit"`
	ResetDate  string `json:"reset_date"`
}

// LicenseState is a locally cached mirror of the remote license verdict,
// never an authoritative record.
type LicenseState struct {
	IsPaid       bool   `json:"is_paid"`
	PurchaseDate string `json:"purchase_date,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Thresholds are the tier boundaries in whole months, ascending.
type Thresholds struct {
	Green  int `json:"green" mapstructure:"green"`
	Yellow int `json:"yellow" mapstructure:"yellow"`
	Orange int `json:"orange" mapstructure:"orange"`
}

// DefaultThresholds returns the stock 6/18/36-month boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Green: 6, Yellow: 18, Orange: 36}
}

// Preferences are user-tunable presentation and behavior settings.
type Preferences struct {
	Enabled          bool       `json:"enabled"`
	ShowBadgeOnPages bool       `json:"show_badge_on_pages"`
	ShowBadgeOnSERP  bool       `json:"show_badge_on_serp"`
	Thresholds       Thresholds `json:"thresholds"`
	BadgePosition    string     `json:"badge_position"`
	BadgeOpacity     float64    `json:"badge_opacity"`
}

// DefaultPreferences returns the out-of-the-box preference set.
func DefaultPreferences() Preferences {
	return Preferences{
		Enabled:          true,
		ShowBadgeOnPages: true,
		ShowBadgeOnSERP:  true,
		Thresholds:       DefaultThresholds(),
		BadgePosition:    "top-right",
		BadgeOpacity:     0.85,
	}
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// DayString formats an instant as the UTC calendar day used by quota state.
func DayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
