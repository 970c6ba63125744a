package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/stalehq/staleness/internal/freshness"
)

var urlDatePattern = regexp.MustCompile(`/(\d{4})/(\d{1,2})(?:/(\d{1,2}))?/`)

// URLPathExtractor reads publication dates embedded in the path, the
// /2024/01/15/ convention common to blogs and news sites. Day segment is
// optional; without it the first of the month is assumed.
type URLPathExtractor struct {
	clock freshness.Clock
}

// NewURLPathExtractor builds a URLPathExtractor.
func NewURLPathExtractor(clock freshness.Clock) *URLPathExtractor {
	return &URLPathExtractor{clock: clock}
}

// Name identifies the strategy in logs.
func (e *URLPathExtractor) Name() string { return "url-path" }

// Extract parses the document URL's path for a date segment.
func (e *URLPathExtractor) Extract(doc *Document) *freshness.DateCandidate {
	u, err := url.Parse(doc.URL)
	if err != nil {
		return nil
	}

	m := urlDatePattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day := 1
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
	}

	now := e.clock.Now()
	if year < 1995 || year > now.Year()+1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	published := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if published.After(now.Add(24 * time.Hour)) {
		return nil
	}

	return &freshness.DateCandidate{
		Published:  &published,
		Confidence: confidenceURLPath,
		Source:     freshness.SourceURLPath,
	}
}
