package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

// Selectors ordered by likelihood of holding the article date.
var timeSelectors = []string{
	"article time[datetime]",
	"header time[datetime]",
	".post-meta time[datetime]",
	".entry-date time[datetime]",
	".byline time[datetime]",
	`[class*="publish"] time[datetime]`,
	`[class*="date"] time[datetime]`,
	`[class*="time"] time[datetime]`,
	"main time[datetime]",
	"time[datetime]",
}

var modifiedKeywords = regexp.MustCompile(`\b(updated|modified|edited|revised)\b`)

// TimeElementExtractor reads <time datetime="..."> markup.
type TimeElementExtractor struct {
	parser *dateparse.Parser
}

// NewTimeElementExtractor builds a TimeElementExtractor.
func NewTimeElementExtractor(parser *dateparse.Parser) *TimeElementExtractor {
	return &TimeElementExtractor{parser: parser}
}

// Name identifies the strategy in logs.
func (e *TimeElementExtractor) Name() string { return "time-element" }

type foundTime struct {
	date       time.Time
	isModified bool
}

// Extract walks time elements in selector priority order. An element whose
// surrounding text or class mentions updating is classified as modified;
// with two or more times and no explicit modified marker, a later time
// than published is treated as the modified date.
func (e *TimeElementExtractor) Extract(doc *Document) *freshness.DateCandidate {
	seen := map[*html.Node]bool{}
	var found []foundTime

	for _, selector := range timeSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			node := sel.Get(0)
			if seen[node] {
				return
			}
			seen[node] = true

			raw, _ := sel.Attr("datetime")
			parsed, ok := e.parser.Parse(raw)
			if !ok {
				return
			}
			found = append(found, foundTime{
				date:       parsed,
				isModified: e.modifiedContext(sel),
			})
		})
	}

	if len(found) == 0 {
		return nil
	}

	var published, modified *time.Time
	for i := range found {
		if !found[i].isModified {
			published = &found[i].date
			break
		}
	}
	for i := range found {
		if found[i].isModified {
			modified = &found[i].date
			break
		}
	}

	if modified == nil && published != nil && len(found) >= 2 {
		for i := range found {
			if found[i].date.After(*published) {
				modified = &found[i].date
				break
			}
		}
	}

	// Only modified markers on the page: read the first as published.
	if published == nil && modified != nil {
		published = modified
		modified = nil
	}

	return &freshness.DateCandidate{
		Published:  published,
		Modified:   modified,
		Confidence: confidenceTimeMarkup,
		Source:     freshness.SourceInlineTimeMarkup,
	}
}

func (e *TimeElementExtractor) modifiedContext(sel *goquery.Selection) bool {
	parent := sel.Parent()
	if parent.Length() == 0 {
		return false
	}
	text := strings.ToLower(parent.Text())
	class, _ := parent.Attr("class")
	return modifiedKeywords.MatchString(text) ||
		modifiedKeywords.MatchString(strings.ToLower(class))
}
