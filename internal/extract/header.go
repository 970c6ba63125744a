package extract

import (
	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
)

// HeaderExtractor falls back to the Last-Modified response header. Servers
// often report asset deploy times rather than content edits, so this is
// the weakest signal in the set.
type HeaderExtractor struct {
	parser *dateparse.Parser
}

// NewHeaderExtractor builds a HeaderExtractor.
func NewHeaderExtractor(parser *dateparse.Parser) *HeaderExtractor {
	return &HeaderExtractor{parser: parser}
}

// Name identifies the strategy in logs.
func (e *HeaderExtractor) Name() string { return "http-header" }

// Extract reads Last-Modified from the document's response headers. The
// value lands on Modified only; a header never asserts a publication date.
func (e *HeaderExtractor) Extract(doc *Document) *freshness.DateCandidate {
	if doc.Header == nil {
		return nil
	}
	raw := doc.Header.Get("Last-Modified")
	if raw == "" {
		return nil
	}
	parsed, ok := e.parser.Parse(raw)
	if !ok {
		return nil
	}
	return &freshness.DateCandidate{
		Modified:   &parsed,
		Confidence: confidenceHTTPHeader,
		Source:     freshness.SourceHTTPHeader,
	}
}
