// Package dateparse turns heterogeneous date strings and numbers into
// validated instants.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stalehq/staleness/internal/freshness"
)

const (
	// minYear filters placeholder and epoch-zero dates.
	minYear = 1995
	// futureTolerance absorbs clock skew between the document's origin
	// and this process.
	futureTolerance = 24 * time.Hour

	// epochMillisFloor disambiguates numeric epochs: anything above it is
	// taken as milliseconds rather than seconds.
	epochMillisFloor = 1e12
)

var (
	reMonthDayYear = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2}),?\s+(\d{4})$`)
	reDayMonthYear = regexp.MustCompile(`^(\d{1,2})\s+([a-z]+)\s+(\d{4})$`)
	reISODate      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reNumericDate  = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)
	reMonthYear    = regexp.MustCompile(`^([a-z]+)\s+(\d{4})$`)
	reEpochDigits  = regexp.MustCompile(`^\d{10}(\d{3})?$`)
	reRelativeAgo  = regexp.MustCompile(`^(\d+)\s+(minute|hour|day|week|month|year)s?\s+ago$`)
	reRelativeFR   = regexp.MustCompile(`^il\s+y\s+a\s+(\d+)\s+(minute|heure|jour|semaine|mois|an)s?$`)
)

// isoLayouts are tried in order for machine-readable timestamps, including
// the HTTP date forms carried by Last-Modified headers.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// Parser converts permissive date inputs into instants. The clock anchors
// relative phrases and the future-tolerance guard; with a fixed clock the
// parser is a pure function.
type Parser struct {
	clock freshness.Clock
}

// New builds a Parser.
func New(clock freshness.Clock) *Parser {
	return &Parser{clock: clock}
}

// Parse attempts every supported format and returns the parsed instant.
// Unparseable or implausible input yields ok == false, never an error:
// parse failures stop at this boundary.
func (p *Parser) Parse(input string) (time.Time, bool) {
	raw := strings.TrimSpace(input)
	base := normalizeBase(input)
	if base == "" {
		return time.Time{}, false
	}

	if d, ok := p.parseRelative(base); ok {
		return p.validated(d)
	}

	str := substituteMonths(base)

	if reEpochDigits.MatchString(str) {
		n, err := strconv.ParseInt(str, 10, 64)
		if err == nil {
			return p.ParseEpoch(n)
		}
	}

	// Machine-readable layouts run against the raw input: time.Parse is
	// case-sensitive for month and zone names, so the lowercased form
	// would not match.
	for _, layout := range isoLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return p.validated(d)
		}
	}

	if m := reMonthDayYear.FindStringSubmatch(str); m != nil {
		if d, ok := p.fromParts(m[3], m[1], m[2]); ok {
			return d, true
		}
	}
	if m := reDayMonthYear.FindStringSubmatch(str); m != nil {
		if d, ok := p.fromParts(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	if m := reISODate.FindStringSubmatch(str); m != nil {
		return p.validated(dateFromInts(m[1], m[2], m[3]))
	}
	if m := reNumericDate.FindStringSubmatch(str); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year := m[3]
		// Day/month ambiguity: prefer the reading where the first operand
		// is a month, fall back to the second.
		if a <= 12 {
			if d, ok := p.validated(dateFromInts(year, m[1], m[2])); ok {
				return d, true
			}
		}
		if b <= 12 {
			if d, ok := p.validated(dateFromInts(year, m[2], m[1])); ok {
				return d, true
			}
		}
		return time.Time{}, false
	}
	if m := reMonthYear.FindStringSubmatch(str); m != nil {
		if d, ok := p.fromParts(m[2], m[1], "1"); ok {
			return d, true
		}
	}

	return time.Time{}, false
}

// ParseEpoch interprets a numeric epoch, disambiguating seconds from
// milliseconds by magnitude, under the same validity guard.
func (p *Parser) ParseEpoch(n int64) (time.Time, bool) {
	var d time.Time
	if n > epochMillisFloor {
		d = time.UnixMilli(n).UTC()
	} else {
		d = time.Unix(n, 0).UTC()
	}
	return p.validated(d)
}

// Valid reports whether an instant passes the plausibility guard:
// year >= 1995 and not more than 24 hours in the future.
func (p *Parser) Valid(t time.Time) bool {
	if t.IsZero() || t.Year() < minYear {
		return false
	}
	return !t.After(p.clock.Now().Add(futureTolerance))
}

func (p *Parser) validated(t time.Time) (time.Time, bool) {
	if !p.Valid(t) {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (p *Parser) fromParts(yearStr, monthStr, dayStr string) (time.Time, bool) {
	month, ok := monthByName(monthStr)
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	return p.validated(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func (p *Parser) parseRelative(str string) (time.Time, bool) {
	now := p.clock.Now()

	m := reRelativeAgo.FindStringSubmatch(str)
	if m == nil {
		if fr := reRelativeFR.FindStringSubmatch(str); fr != nil {
			m = []string{fr[0], fr[1], frenchUnits[fr[2]]}
		}
	}
	if m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		case "year":
			return now.AddDate(-n, 0, 0), true
		}
		return time.Time{}, false
	}

	switch str {
	case "yesterday", "hier", "gestern", "ayer":
		return now.AddDate(0, 0, -1), true
	case "last week":
		return now.AddDate(0, 0, -7), true
	case "last month":
		return now.AddDate(0, -1, 0), true
	case "last year":
		return now.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

var frenchUnits = map[string]string{
	"minute":  "minute",
	"heure":   "hour",
	"jour":    "day",
	"semaine": "week",
	"mois":    "month",
	"an":      "year",
}

func dateFromInts(year, month, day string) time.Time {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}
