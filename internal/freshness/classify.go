package freshness

import (
	"fmt"
	"time"
)

// Tier categorizes content age against the month thresholds.
type Tier string

// Tier values, freshest first.
const (
	TierGreen   Tier = "green"
	TierYellow  Tier = "yellow"
	TierOrange  Tier = "orange"
	TierRed     Tier = "red"
	TierUnknown Tier = "unknown"
)

// Label returns the human label shown next to a tier badge.
func (t Tier) Label() string {
	switch t {
	case TierGreen:
		return "Fresh"
	case TierYellow:
		return "Aging"
	case TierOrange:
		return "Old"
	case TierRed:
		return "Stale"
	default:
		return "Unknown"
	}
}

// Freshness is the classifier output consumed by badge renderers.
type Freshness struct {
	Tier               Tier   `json:"tier"`
	Label              string `json:"label"`
	AgeText            string `json:"age_text"`
	ShortAgeText       string `json:"short_age_text"`
	PublishedFormatted string `json:"published_formatted"`
	ModifiedFormatted  string `json:"modified_formatted"`
}

// Classify maps published/modified instants onto a freshness tier and age
// strings. The reference instant is modified when present, else published;
// with neither the tier is unknown. Age is measured in whole calendar
// months, not day division.
func Classify(published, modified *time.Time, thresholds Thresholds, now time.Time) Freshness {
	ref := modified
	if ref == nil {
		ref = published
	}

	out := Freshness{
		PublishedFormatted: formatDate(published),
		ModifiedFormatted:  formatDate(modified),
	}

	if ref == nil {
		out.Tier = TierUnknown
		out.Label = TierUnknown.Label()
		out.AgeText = "Unknown age"
		out.ShortAgeText = "?"
		return out
	}

	months := AgeInMonths(*ref, now)
	switch {
	case months <= thresholds.Green:
		out.Tier = TierGreen
	case months <= thresholds.Yellow:
		out.Tier = TierYellow
	case months <= thresholds.Orange:
		out.Tier = TierOrange
	default:
		out.Tier = TierRed
	}
	out.Label = out.Tier.Label()
	out.AgeText = AgeText(*ref, now)
	out.ShortAgeText = ShortAgeText(*ref, now)
	return out
}

// AgeInMonths returns the whole-calendar-month age of t at now: the
// year/month difference, decremented by one if the day-of-month has not
// been reached yet.
func AgeInMonths(t, now time.Time) int {
	t, now = t.UTC(), now.UTC()
	months := (now.Year()-t.Year())*12 + int(now.Month()) - int(t.Month())
	if now.Day() < t.Day() {
		months--
	}
	return months
}

// AgeText renders a verbose human age: "5 days", "3 months", "3yr 4mo".
func AgeText(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	if days < 0 {
		return "Just now"
	}
	if days == 0 {
		return "Today"
	}
	if days == 1 {
		return "1 day"
	}

	months := AgeInMonths(t, now)
	if days < 30 || months < 1 {
		return fmt.Sprintf("%d days", days)
	}
	if months == 1 {
		return "1 month"
	}
	if months < 12 {
		return fmt.Sprintf("%d months", months)
	}

	years := months / 12
	rem := months % 12
	switch {
	case years == 1 && rem == 0:
		return "1 year"
	case years == 1:
		return fmt.Sprintf("1 year %dmo", rem)
	case rem == 0:
		return fmt.Sprintf("%d years", years)
	default:
		return fmt.Sprintf("%dyr %dmo", years, rem)
	}
}

// ShortAgeText renders the compact age used by layout-constrained badges:
// "5d", "3mo", "2yr".
func ShortAgeText(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	if days < 0 {
		return "now"
	}
	if days == 0 {
		return "<1d"
	}
	if days < 30 {
		return fmt.Sprintf("%dd", days)
	}

	months := AgeInMonths(t, now)
	if months < 1 {
		return fmt.Sprintf("%dd", days)
	}
	if months < 12 {
		return fmt.Sprintf("%dmo", months)
	}
	return fmt.Sprintf("%dyr", months/12)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.UTC().Format("January 2, 2006")
}
