package dateparse

import (
	"regexp"
	"strings"
	"time"
)

// englishMonths maps lowercase English month names and abbreviations to
// their time.Month value.
var englishMonths = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "jun": time.June, "jul": time.July,
	"aug": time.August, "sep": time.September, "sept": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// localizedMonths substitutes French, German and Spanish month forms with
// English equivalents before pattern matching. Longer forms are listed
// before their prefixes so replacement stays unambiguous.
var localizedMonths = []struct{ from, to string }{
	// French
	{"janvier", "january"}, {"février", "february"}, {"fevrier", "february"},
	{"mars", "march"}, {"avril", "april"}, {"juillet", "july"},
	{"juin", "june"}, {"septembre", "september"}, {"octobre", "october"},
	{"novembre", "november"}, {"décembre", "december"}, {"decembre", "december"},
	{"janv", "jan"}, {"févr", "feb"}, {"fevr", "feb"}, {"avr", "apr"},
	{"juil", "jul"}, {"août", "august"}, {"aout", "august"}, {"déc", "dec"},
	{"mai", "may"},
	// German
	{"januar", "january"}, {"februar", "february"}, {"märz", "march"},
	{"marz", "march"}, {"mär", "mar"}, {"juni", "june"}, {"juli", "july"},
	{"oktober", "october"}, {"dezember", "december"}, {"okt", "oct"},
	{"dez", "dec"},
	// Spanish
	{"enero", "january"}, {"febrero", "february"}, {"marzo", "march"},
	{"abril", "april"}, {"mayo", "may"}, {"junio", "june"},
	{"julio", "july"}, {"agosto", "august"}, {"septiembre", "september"},
	{"setiembre", "september"}, {"octubre", "october"},
	{"noviembre", "november"}, {"diciembre", "december"},
	{"ene", "jan"}, {"abr", "apr"}, {"ago", "aug"}, {"dic", "dec"},
}

var localizedMonthRes = func() []struct {
	re *regexp.Regexp
	to string
} {
	out := make([]struct {
		re *regexp.Regexp
		to string
	}, 0, len(localizedMonths))
	for _, m := range localizedMonths {
		out = append(out, struct {
			re *regexp.Regexp
			to string
		}{regexp.MustCompile(`(?i)\b` + m.from + `\b`), m.to})
	}
	return out
}()

var trailingAbbrevDot = regexp.MustCompile(`(\b\w{3,5})\.(\s|$)`)

// normalizeBase lowercases the input and strips abbreviation dots
// ("oct." -> "oct"). Month substitution is a separate step because the
// Spanish abbreviation "ago" would otherwise clobber relative phrases
// like "3 days ago".
func normalizeBase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return trailingAbbrevDot.ReplaceAllString(s, "$1$2")
}

// substituteMonths rewrites localized month forms into English.
func substituteMonths(s string) string {
	for _, m := range localizedMonthRes {
		s = m.re.ReplaceAllString(s, m.to)
	}
	return s
}

// monthByName resolves a (already normalized) month token.
func monthByName(token string) (time.Month, bool) {
	m, ok := englishMonths[strings.ToLower(token)]
	return m, ok
}
