package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

// maxJSONLDDepth bounds recursion into nested graph structures.
const maxJSONLDDepth = 8

var (
	jsonldPublishedKeys = []string{"datePublished", "dateCreated", "uploadDate"}
	jsonldModifiedKeys  = []string{"dateModified", "lastReviewed"}
)

// JSONLDExtractor reads schema.org linked-data blocks.
type JSONLDExtractor struct {
	parser *dateparse.Parser
}

// NewJSONLDExtractor builds a JSONLDExtractor.
func NewJSONLDExtractor(parser *dateparse.Parser) *JSONLDExtractor {
	return &JSONLDExtractor{parser: parser}
}

// Name identifies the strategy in logs.
func (e *JSONLDExtractor) Name() string { return "json-ld" }

// Extract parses every ld+json script block, searching recursively
// (including @graph nesting) for date keys; first found wins per field.
// Malformed blocks are skipped.
func (e *JSONLDExtractor) Extract(doc *Document) *freshness.DateCandidate {
	var published, modified *time.Time

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return true
		}
		p, m := e.findDates(data, 0)
		if published == nil {
			published = p
		}
		if modified == nil {
			modified = m
		}
		return published == nil || modified == nil
	})

	if published == nil && modified == nil {
		return nil
	}
	return &freshness.DateCandidate{
		Published:  published,
		Modified:   modified,
		Confidence: confidenceLinkedData,
		Source:     freshness.SourceLinkedData,
	}
}

func (e *JSONLDExtractor) findDates(node any, depth int) (published, modified *time.Time) {
	if depth > maxJSONLDDepth {
		return nil, nil
	}

	switch v := node.(type) {
	case []any:
		for _, item := range v {
			p, m := e.findDates(item, depth+1)
			published = firstOf(published, p)
			modified = firstOf(modified, m)
			if published != nil && modified != nil {
				return published, modified
			}
		}
	case map[string]any:
		published = e.firstKey(v, jsonldPublishedKeys)
		modified = e.firstKey(v, jsonldModifiedKeys)
		if published != nil && modified != nil {
			return published, modified
		}
		for _, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				p, m := e.findDates(val, depth+1)
				published = firstOf(published, p)
				modified = firstOf(modified, m)
				if published != nil && modified != nil {
					return published, modified
				}
			}
		}
	}
	return published, modified
}

func (e *JSONLDExtractor) firstKey(obj map[string]any, keys []string) *time.Time {
	for _, key := range keys {
		raw, ok := obj[key].(string)
		if !ok || raw == "" {
			continue
		}
		if d, ok := e.parser.Parse(raw); ok {
			return &d
		}
	}
	return nil
}

func firstOf(have, candidate *time.Time) *time.Time {
	if have != nil {
		return have
	}
	return candidate
}
