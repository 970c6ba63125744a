package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

// Prioritized containers for free-text scanning. Generic containers short
// circuit on the first hit; the id- and footer-specific ones (Wikipedia's
// last-modified line lives there) are always scanned.
var heuristicContainers = []string{
	"article header",
	".post-meta",
	".entry-meta",
	".article-meta",
	".byline",
	`[class*="date"]`,
	`[class*="publish"]`,
	`[class*="author"]`,
	"header",
	"article",
	".post-header",
	".article-header",
	"#footer-info-lastmod",
	"#lastmod",
	`[id*="lastmod"]`,
	`footer [class*="date"]`,
	`footer [class*="modified"]`,
	"main",
}

// maxBlockSize skips huge text blocks; dates worth finding live in
// metadata-like areas, not article bodies.
const maxBlockSize = 2000

var heuristicDatePatterns = []*regexp.Regexp{
	// "January 15, 2024" / "Jan 15, 2024"
	regexp.MustCompile(`(?i)\b([a-zà-ü]{3,9})\s+(\d{1,2}),?\s+(\d{4})\b`),
	// "15 January 2024" / "15 janv. 2024"
	regexp.MustCompile(`(?i)\b(\d{1,2})\s+([a-zà-ü]{3,9})\.?\s+(\d{4})\b`),
	// "2024-01-15"
	regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
	// "01/15/2024" or "15/01/2024"
	regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
	// "3 days ago"
	regexp.MustCompile(`(?i)\b(\d+)\s+(minute|hour|day|week|month|year)s?\s+ago\b`),
	regexp.MustCompile(`(?i)\byesterday\b`),
}

var (
	publishedContext = regexp.MustCompile(`(?i)\b(published|posted|written|created|date)\b`)
	modifiedContext  = regexp.MustCompile(`(?i)\b(updated|modified|edited|revised|last\s+modified)\b`)
)

// HeuristicExtractor pattern-matches dates in visible text as a last
// resort. Inherently fuzzy; it carries the lowest document confidence.
type HeuristicExtractor struct {
	parser *dateparse.Parser
}

// NewHeuristicExtractor builds a HeuristicExtractor.
func NewHeuristicExtractor(parser *dateparse.Parser) *HeuristicExtractor {
	return &HeuristicExtractor{parser: parser}
}

// Name identifies the strategy in logs.
func (e *HeuristicExtractor) Name() string { return "heuristic" }

type textMatch struct {
	date       time.Time
	isModified bool
}

// Extract scans prioritized containers for regex date patterns and
// classifies each match published-vs-modified from a context window of
// nearby keywords.
func (e *HeuristicExtractor) Extract(doc *Document) *freshness.DateCandidate {
	var matches []textMatch

	for _, selector := range heuristicContainers {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := sel.Text()
			if len(text) == 0 || len(text) > maxBlockSize {
				return
			}
			matches = append(matches, e.fromText(text)...)
		})

		if len(matches) > 0 && !strings.HasPrefix(selector, "#") && !strings.HasPrefix(selector, "footer") {
			break
		}
	}

	if len(matches) == 0 {
		return nil
	}

	var published, modified *time.Time
	for i := range matches {
		m := matches[i]
		switch {
		case m.isModified && modified == nil:
			modified = &matches[i].date
		case !m.isModified && published == nil:
			published = &matches[i].date
		}
		if published != nil && modified != nil {
			break
		}
	}
	if published == nil && modified == nil {
		published = &matches[0].date
	}

	return &freshness.DateCandidate{
		Published:  published,
		Modified:   modified,
		Confidence: confidenceHeuristic,
		Source:     freshness.SourceHeuristicText,
	}
}

// fromText collects parseable date matches in a block, deduplicating
// matches that land within a day of each other.
func (e *HeuristicExtractor) fromText(text string) []textMatch {
	var results []textMatch

	for _, pattern := range heuristicDatePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			raw := text[loc[0]:loc[1]]
			parsed, ok := e.parser.Parse(raw)
			if !ok {
				continue
			}

			// Look 50 runes back and 20 forward for classification hints.
			start := loc[0] - 50
			if start < 0 {
				start = 0
			}
			end := loc[1] + 20
			if end > len(text) {
				end = len(text)
			}
			window := text[start:end]
			isModified := modifiedContext.MatchString(window) && !publishedContext.MatchString(window)

			duplicate := false
			for _, existing := range results {
				if absDuration(existing.date.Sub(parsed)) < 24*time.Hour {
					duplicate = true
					break
				}
			}
			if !duplicate {
				results = append(results, textMatch{date: parsed, isModified: isModified})
			}
		}
	}
	return results
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
