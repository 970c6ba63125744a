package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

// Meta names/properties carrying a published date, in priority order.
var metaPublishedAttrs = []string{
	"article:published_time",
	"datepublished",
	"pubdate",
	"publishdate",
	"date",
	"dc.date.created",
	"dc.date",
	"sailthru.date",
	"og:article:published_time",
}

// Meta names/properties carrying a modified date.
var metaModifiedAttrs = []string{
	"article:modified_time",
	"datemodified",
	"og:updated_time",
	"dc.date.modified",
	"last-modified",
	"revised",
}

// MetaExtractor reads machine-readable meta tags (Open Graph, Dublin Core,
// plain name/content pairs).
type MetaExtractor struct {
	parser *dateparse.Parser
}

// NewMetaExtractor builds a MetaExtractor.
func NewMetaExtractor(parser *dateparse.Parser) *MetaExtractor {
	return &MetaExtractor{parser: parser}
}

// Name identifies the strategy in logs.
func (e *MetaExtractor) Name() string { return "meta" }

// Extract scans all meta tags once, then resolves each field from its
// priority list; the first parseable value wins per field.
func (e *MetaExtractor) Extract(doc *Document) *freshness.DateCandidate {
	// name/property/itemprop are matched case-insensitively; publishers
	// are wildly inconsistent about casing.
	values := map[string][]string{}
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok || content == "" {
			return
		}
		for _, attr := range []string{"name", "property", "itemprop"} {
			if key, ok := sel.Attr(attr); ok {
				key = strings.ToLower(strings.TrimSpace(key))
				values[key] = append(values[key], content)
			}
		}
	})

	published := e.firstParseable(values, metaPublishedAttrs)
	modified := e.firstParseable(values, metaModifiedAttrs)
	if published == nil && modified == nil {
		return nil
	}
	return &freshness.DateCandidate{
		Published:  published,
		Modified:   modified,
		Confidence: confidenceStructured,
		Source:     freshness.SourceStructuredMetadata,
	}
}

func (e *MetaExtractor) firstParseable(values map[string][]string, attrs []string) *time.Time {
	for _, attr := range attrs {
		for _, raw := range values[attr] {
			if d, ok := e.parser.Parse(raw); ok {
				return &d
			}
		}
	}
	return nil
}
